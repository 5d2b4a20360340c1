package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"x402facilitator/internal/adminkey"
	"x402facilitator/internal/config"
	"x402facilitator/internal/db"
	"x402facilitator/internal/evmchain"
	"x402facilitator/internal/evmscheme"
	"x402facilitator/internal/facilitator"
	"x402facilitator/internal/httpapi"
	"x402facilitator/internal/keyderiv"
	"x402facilitator/internal/kvindex"
	"x402facilitator/internal/scanner"
	"x402facilitator/internal/settlement"
	"x402facilitator/internal/solanascheme"
	"x402facilitator/internal/sweep"
	"x402facilitator/internal/webhook"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	chains, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		slog.Error("failed to load chains file", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(&db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := database.Migrate(migrateCtx); err != nil {
		migrateCancel()
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	migrateCancel()

	kv := kvindex.NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.KV.Address,
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
	}))

	fac := facilitator.New()
	// Registered only to own the "exact-solana" identity so an unrecognized
	// Solana payload fails closed with InvalidScheme rather than
	// unsupported_scheme; its Create never emits requirements.
	sol, err := solanascheme.New("solana", "")
	if err != nil {
		slog.Error("failed to construct solana placeholder scheme", "error", err)
		os.Exit(1)
	}
	fac.Register(sol)

	var (
		settlementChains []settlement.ChainConfig
		sweepers         []sweep.Chain
	)
	settlementEvents := make(chan scanner.Event, 256)

	for i := range chains.Chains {
		entry := &chains.Chains[i]
		log := slog.With("chain", entry.ChainName)

		setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)

		client, err := evmchain.Dial(setupCtx, entry.RPC, log)
		if err != nil {
			setupCancel()
			log.Error("failed to dial chain RPC", "error", err)
			os.Exit(1)
		}

		admin, err := resolveAdminKey(cfg, entry)
		if err != nil {
			setupCancel()
			log.Error("failed to resolve admin key", "error", err)
			os.Exit(1)
		}

		scheme := evmscheme.New(entry.ChainName, client, admin)
		tokens, err := config.ParseTokens(entry.Tokens)
		if err != nil {
			setupCancel()
			log.Error("failed to parse token list", "error", err)
			os.Exit(1)
		}

		tokenMap := make(map[common.Address]settlement.Token, len(tokens))
		var contracts []common.Address
		for _, tk := range tokens {
			addr := common.HexToAddress(tk.Address)
			if err := scheme.RegisterAsset(setupCtx, addr, tk.Name, tk.Version); err != nil {
				setupCancel()
				log.Error("failed to register token asset", "token", tk.Name, "error", err)
				os.Exit(1)
			}
			decimals, err := client.TokenDecimals(setupCtx, addr)
			if err != nil {
				setupCancel()
				log.Error("failed to read token decimals", "token", tk.Name, "error", err)
				os.Exit(1)
			}
			tokenMap[addr] = settlement.Token{Address: addr, Decimals: decimals, Identity: tk.Name}
			contracts = append(contracts, addr)
		}

		lastScanned, err := database.GetScannedBlock(setupCtx, entry.ChainName)
		if err != nil {
			log.Warn("failed to load scan cursor, starting from chain tip", "error", err)
			lastScanned = 0
		}
		setupCancel()

		fac.Register(scheme)

		settlementChains = append(settlementChains, settlement.ChainConfig{
			Name:   entry.ChainName,
			Tokens: tokenMap,
			Commission: sweep.Commission{
				Rate: entry.Commission,
				Min:  big.NewInt(entry.CommissionMin),
				Max:  big.NewInt(entry.CommissionMax),
			},
		})
		sweepers = append(sweepers, client)

		events := make(chan scanner.Event, 64)
		sc := scanner.New(i, client, uint64(entry.Latency), contracts, uint64(lastScanned), events, log)
		go sc.Run(ctx)
		go forwardEvents(ctx, events, settlementEvents)
	}

	hooks := webhook.New(slog.Default())
	engine, err := settlement.New(database, kv, hooks, settlementChains, sweepers, cfg.Mnemonic, cfg.WebhookURL, cfg.WebhookKey, slog.Default())
	if err != nil {
		slog.Error("failed to construct settlement engine", "error", err)
		os.Exit(1)
	}
	go engine.Run(ctx, settlementEvents)

	srv := httpapi.New(cfg, database, kv, fac, cfg.Mnemonic, slog.Default())
	go func() {
		if err := srv.Listen(); err != nil {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited")
}

// resolveAdminKey picks the admin signing key for a chain: the chains file's
// explicit admin field wins when set, then a key stored in the OS keyring,
// then mnemonic derivation at (AdminMerchantID, AdminCustomerID).
func resolveAdminKey(cfg *config.Config, entry *config.ChainEntry) (*ecdsa.PrivateKey, error) {
	if entry.Admin != "" {
		return crypto.HexToECDSA(config.ParseAdminPrivateKey(entry.Admin))
	}
	if store, err := adminkey.Open(); err == nil {
		if priv, err := store.Load(entry.ChainName); err == nil {
			return priv, nil
		}
	}
	admin, err := keyderiv.Derive(cfg.Mnemonic, keyderiv.AdminMerchantID, keyderiv.AdminCustomerID)
	if err != nil {
		return nil, fmt.Errorf("derive admin account: %w", err)
	}
	return crypto.HexToECDSA(admin.PrivateKeyHex)
}

// forwardEvents fans one chain scanner's events into the single settlement
// engine consumer, per internal/settlement's one-consumer design.
func forwardEvents(ctx context.Context, in <-chan scanner.Event, out chan<- scanner.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// setupLogging configures the global slog logger: JSON for production,
// text for development.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}
