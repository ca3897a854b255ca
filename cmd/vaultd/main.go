package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fundvault/config"
	"fundvault/core/events"
	"fundvault/crypto"
	"fundvault/native/compliance"
	"fundvault/native/token"
	"fundvault/native/vault"
	"fundvault/observability/logging"
	"fundvault/observability/metrics"
	"fundvault/rpc"
	"fundvault/storage"
)

const rpcTokenEnv = "FUNDVAULT_RPC_TOKEN"

// logEmitter mirrors every engine event into the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(event events.Event) {
	payload := event.Event()
	attrs := make([]any, 0, 2*len(payload.Attributes))
	for key, value := range payload.Attributes {
		attrs = append(attrs, key, value)
	}
	l.logger.Info(payload.Type, attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FUNDVAULT_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("fundvault", env, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	db, err := openDatabase(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()
	store := storage.NewStore(db)

	emitter := metrics.NewEmitter(logEmitter{logger: logger})

	registry := compliance.NewRegistry()
	registry.SetState(store)
	registry.SetEmitter(emitter)
	gate := compliance.NewGate(registry)
	reserve := token.NewReserveLedger(store)

	vaultAddr, err := crypto.DecodeAddress(cfg.VaultAddress)
	if err != nil {
		panic(fmt.Sprintf("Invalid vault address: %v", err))
	}
	shares := token.NewShareLedger(store, gate, vaultAddr)
	shares.SetEmitter(emitter)

	engine := vault.NewEngine(vaultAddr, cfg.VaultParams())
	engine.SetState(store)
	engine.SetReserve(reserve)
	engine.SetShares(shares)
	engine.SetEligibility(registry)
	engine.SetEmitter(emitter)
	if cfg.FeeReceiver != "" {
		feeReceiver, err := crypto.DecodeAddress(cfg.FeeReceiver)
		if err != nil {
			panic(fmt.Sprintf("Invalid fee receiver: %v", err))
		}
		engine.SetFeeReceiver(feeReceiver)
	}

	if err := grantRoles(engine, cfg); err != nil {
		panic(fmt.Sprintf("Failed to grant roles: %v", err))
	}
	if err := registry.SetStrict(cfg.StrictTransfers); err != nil {
		panic(fmt.Sprintf("Failed to set strict mode: %v", err))
	}
	if fee := cfg.MinTxFeeAmount(); fee != nil {
		admins, err := config.DecodeAddresses(cfg.Admins)
		if err != nil || len(admins) == 0 {
			panic("MinTxFee requires at least one admin in the config")
		}
		if err := engine.SetMinTxFee(admins[0], fee); err != nil {
			panic(fmt.Sprintf("Failed to set minimum transaction fee: %v", err))
		}
	}

	logger.Info("vault engine ready",
		"vault", vaultAddr.String(),
		"backend", cfg.DataBackend,
		"strictTransfers", cfg.StrictTransfers,
	)

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = cfg.RPCToken
	}
	server := rpc.NewServer(rpc.Options{
		Engine:        engine,
		Registry:      registry,
		Gate:          gate,
		Reserve:       reserve,
		Shares:        shares,
		Logger:        logger,
		AuthToken:     authToken,
		RatePerSecond: cfg.RateLimitPerSecond,
		Burst:         cfg.RateLimitBurst,
	})
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", "error", err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DataBackend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "fundvault.db"))
	default:
		return storage.NewLevelDB(cfg.DataDir)
	}
}

func grantRoles(engine *vault.Engine, cfg *config.Config) error {
	for _, grant := range []struct {
		role  vault.Role
		addrs []string
	}{
		{vault.RoleAdmin, cfg.Admins},
		{vault.RoleOperator, cfg.Operators},
		{vault.RoleOracle, cfg.Oracles},
	} {
		addrs, err := config.DecodeAddresses(grant.addrs)
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			engine.Roles().Grant(grant.role, addr)
		}
	}
	return nil
}
