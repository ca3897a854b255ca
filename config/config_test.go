package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fundvault/crypto"
)

func testAddr(t *testing.T, b byte) string {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.FundPrefix, raw).String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesVaultParams(t *testing.T) {
	body := `
RPCAddress = ":9000"
DataBackend = "memory"
VaultAddress = "` + testAddr(t, 1) + `"
FeeReceiver = "` + testAddr(t, 2) + `"
Operators = ["` + testAddr(t, 3) + `"]
Oracles = ["` + testAddr(t, 4) + `"]
FeeRateBps = 5
OnchainRateBps = 100
MinDeposit = "1000000"
MaxDepositPerEpoch = "5000000000"
MinTxFee = "250000"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9000" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	params := cfg.VaultParams()
	if params.FeeRateBps != 5 || params.OnchainRateBps != 100 {
		t.Fatalf("unexpected rates %+v", params)
	}
	if params.MinDeposit.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected MinDeposit %s", params.MinDeposit)
	}
	if params.MaxDepositPerEpoch.Cmp(big.NewInt(5_000_000_000)) != 0 {
		t.Fatalf("unexpected MaxDepositPerEpoch %s", params.MaxDepositPerEpoch)
	}
	if params.MaxWithdrawPerEpoch != nil {
		t.Fatal("unset cap should stay nil (unbounded)")
	}
	if fee := cfg.MinTxFeeAmount(); fee == nil || fee.Cmp(big.NewInt(250_000)) != 0 {
		t.Fatalf("unexpected MinTxFee %v", fee)
	}
	if cfg.RateLimitPerSecond != 50 || cfg.RateLimitBurst != 100 {
		t.Fatalf("rate limit defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing vault address",
			body: `DataBackend = "memory"`,
			want: "VaultAddress",
		},
		{
			name: "malformed vault address",
			body: `VaultAddress = "not-bech32"`,
			want: "VaultAddress",
		},
		{
			name: "malformed operator",
			body: `VaultAddress = "` + testAddr(t, 1) + `"
Operators = ["bogus"]`,
			want: "Operators",
		},
		{
			name: "unknown backend",
			body: `VaultAddress = "` + testAddr(t, 1) + `"
DataBackend = "postgres"`,
			want: "DataBackend",
		},
		{
			name: "negative amount",
			body: `VaultAddress = "` + testAddr(t, 1) + `"
MinDeposit = "-5"`,
			want: "MinDeposit",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if _, err := crypto.DecodeAddress(cfg.VaultAddress); err != nil {
		t.Fatalf("generated vault address invalid: %v", err)
	}
	if cfg.DataBackend != BackendLevelDB {
		t.Fatalf("unexpected default backend %q", cfg.DataBackend)
	}
	// Reloading the generated file must round-trip cleanly.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.VaultAddress != cfg.VaultAddress {
		t.Fatal("vault address changed across reload")
	}
}
