package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"fundvault/crypto"
	"fundvault/native/vault"

	"github.com/BurntSushi/toml"
)

// Backend names accepted by the DataBackend field.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	RPCToken       string `toml:"RPCToken"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	DataBackend    string `toml:"DataBackend"`
	LogLevel       string `toml:"LogLevel"`
	LogFile        string `toml:"LogFile"`

	VaultAddress string   `toml:"VaultAddress"`
	FeeReceiver  string   `toml:"FeeReceiver"`
	Admins       []string `toml:"Admins"`
	Operators    []string `toml:"Operators"`
	Oracles      []string `toml:"Oracles"`

	StrictTransfers bool `toml:"StrictTransfers"`

	FeeRateBps      uint64 `toml:"FeeRateBps"`
	OnchainRateBps  uint64 `toml:"OnchainRateBps"`
	OffchainRateBps uint64 `toml:"OffchainRateBps"`

	MinDeposit          string `toml:"MinDeposit"`
	MinInitialDeposit   string `toml:"MinInitialDeposit"`
	MaxDepositPerEpoch  string `toml:"MaxDepositPerEpoch"`
	MinWithdraw         string `toml:"MinWithdraw"`
	MaxWithdrawPerEpoch string `toml:"MaxWithdrawPerEpoch"`
	MinTxFee            string `toml:"MinTxFee"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Addresses and amounts are validated eagerly so a typo
// fails at startup rather than on the first request.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalise(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise(path string) {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8561"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = filepath.Join(filepath.Dir(path), "fundvault-data")
	}
	if strings.TrimSpace(c.DataBackend) == "" {
		c.DataBackend = BackendLevelDB
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 50
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 100
	}
	if c.Admins == nil {
		c.Admins = []string{}
	}
	if c.Operators == nil {
		c.Operators = []string{}
	}
	if c.Oracles == nil {
		c.Oracles = []string{}
	}
}

// Validate checks every address and amount in the file.
func (c *Config) Validate() error {
	switch c.DataBackend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("config: unknown DataBackend %q", c.DataBackend)
	}
	if strings.TrimSpace(c.VaultAddress) == "" {
		return fmt.Errorf("config: VaultAddress is required")
	}
	if _, err := crypto.DecodeAddress(c.VaultAddress); err != nil {
		return fmt.Errorf("config: VaultAddress: %w", err)
	}
	if c.FeeReceiver != "" {
		if _, err := crypto.DecodeAddress(c.FeeReceiver); err != nil {
			return fmt.Errorf("config: FeeReceiver: %w", err)
		}
	}
	for _, group := range []struct {
		name  string
		addrs []string
	}{
		{"Admins", c.Admins},
		{"Operators", c.Operators},
		{"Oracles", c.Oracles},
	} {
		for _, raw := range group.addrs {
			if _, err := crypto.DecodeAddress(raw); err != nil {
				return fmt.Errorf("config: %s entry %q: %w", group.name, raw, err)
			}
		}
	}
	for _, amount := range []struct {
		name  string
		value string
	}{
		{"MinDeposit", c.MinDeposit},
		{"MinInitialDeposit", c.MinInitialDeposit},
		{"MaxDepositPerEpoch", c.MaxDepositPerEpoch},
		{"MinWithdraw", c.MinWithdraw},
		{"MaxWithdrawPerEpoch", c.MaxWithdrawPerEpoch},
		{"MinTxFee", c.MinTxFee},
	} {
		if _, err := parseAmount(amount.value); err != nil {
			return fmt.Errorf("config: %s: %w", amount.name, err)
		}
	}
	return nil
}

// VaultParams assembles the engine parameter set from the decoded file.
// Validate must have passed first.
func (c *Config) VaultParams() vault.Params {
	params := vault.Params{
		FeeRateBps:      c.FeeRateBps,
		OnchainRateBps:  c.OnchainRateBps,
		OffchainRateBps: c.OffchainRateBps,
	}
	params.MinDeposit, _ = parseAmount(c.MinDeposit)
	params.MinInitialDeposit, _ = parseAmount(c.MinInitialDeposit)
	params.MaxDepositPerEpoch, _ = parseAmount(c.MaxDepositPerEpoch)
	params.MinWithdraw, _ = parseAmount(c.MinWithdraw)
	params.MaxWithdrawPerEpoch, _ = parseAmount(c.MaxWithdrawPerEpoch)
	return params.Normalise()
}

// MinTxFeeAmount returns the configured per-transaction fee floor, or nil
// when the field is unset.
func (c *Config) MinTxFeeAmount() *big.Int {
	amount, _ := parseAmount(c.MinTxFee)
	return amount
}

// DecodeAddresses converts a validated bech32 list into addresses.
func DecodeAddresses(raw []string) ([]crypto.Address, error) {
	addrs := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := crypto.DecodeAddress(entry)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// parseAmount reads a non-negative base-10 integer amount. The empty string
// means unset and decodes to nil.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}

// createDefault creates and saves a default configuration file. The vault
// custody address is generated fresh so each new deployment gets its own.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		RPCAddress:   ":8561",
		DataDir:      filepath.Join(filepath.Dir(path), "fundvault-data"),
		DataBackend:  BackendLevelDB,
		LogLevel:     "info",
		VaultAddress: key.PubKey().Address().String(),
		Admins:       []string{},
		Operators:    []string{},
		Oracles:      []string{},

		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
