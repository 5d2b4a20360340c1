package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"x402facilitator/internal/adminkey"
	"x402facilitator/internal/config"
	"x402facilitator/internal/db"
	"x402facilitator/internal/decimal"
	"x402facilitator/internal/evmchain"
	"x402facilitator/internal/keyderiv"
	"x402facilitator/internal/sweep"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facilitatorctl",
		Short: "Operator CLI for the x402 payment facilitator",
		Long: `facilitatorctl is the operator-facing companion to facilitatord.

It validates configuration, reports chain scan health, retries a sweep that
failed inline, and manages the admin signing key stored in the OS keyring.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	rootCmd.AddCommand(
		newConfigCmd(),
		newChainCmd(),
		newSweepCmd(),
		newAdminKeyCmd(),
	)

	return rootCmd
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect facilitator configuration",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load configuration from the environment and report any errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			chainsFile, _ := cmd.Flags().GetString("chains-file")
			if chainsFile == "" {
				chainsFile = cfg.ChainsFile
			}
			chains, err := config.LoadChains(chainsFile)
			if err != nil {
				return err
			}
			fmt.Printf("configuration OK (%s environment)\n", cfg.Environment)
			fmt.Printf("%d chain(s) configured in %s:\n", len(chains.Chains), chainsFile)
			for _, c := range chains.Chains {
				fmt.Printf("  - %s (%s)\n", c.ChainName, c.ChainType)
			}
			return nil
		},
	}
	validateCmd.Flags().String("chains-file", "", "Override CHAINS_FILE")

	configCmd.AddCommand(validateCmd)
	return configCmd
}

func newChainCmd() *cobra.Command {
	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Inspect configured chains",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Compare each configured chain's tip against its last scanned block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChainStatus(cmd)
		},
	}
	statusCmd.Flags().String("chains-file", "", "Override CHAINS_FILE")

	chainCmd.AddCommand(statusCmd)
	return chainCmd
}

func runChainStatus(cmd *cobra.Command) error {
	cfg := config.Load()
	chainsFile, _ := cmd.Flags().GetString("chains-file")
	if chainsFile == "" {
		chainsFile = cfg.ChainsFile
	}
	chains, err := config.LoadChains(chainsFile)
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, entry := range chains.Chains {
		scanned, err := database.GetScannedBlock(ctx, entry.ChainName)
		if err != nil {
			fmt.Printf("%-20s scan cursor unavailable: %v\n", entry.ChainName, err)
			continue
		}

		client, err := evmchain.Dial(ctx, entry.RPC, slog.With("chain", entry.ChainName))
		if err != nil {
			fmt.Printf("%-20s rpc unreachable: %v\n", entry.ChainName, err)
			continue
		}
		latest, err := client.LatestBlock(ctx)
		client.Close()
		if err != nil {
			fmt.Printf("%-20s rpc error: %v\n", entry.ChainName, err)
			continue
		}

		lag := int64(latest) - scanned
		fmt.Printf("%-20s scanned=%d latest=%d lag=%d\n", entry.ChainName, scanned, latest, lag)
	}
	return nil
}

func newSweepCmd() *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Manage stuck or failed sweeps",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List unsettled deposits awaiting a sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cfg := config.Load()
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			deposits, err := database.GetUnsettledDeposits(ctx, limit)
			if err != nil {
				return err
			}
			if len(deposits) == 0 {
				fmt.Println("no unsettled deposits")
				return nil
			}
			for _, d := range deposits {
				fmt.Printf("%s  chain=%s  amount_minor=%d  tx=%s\n", d.ID, d.ChainName, d.AmountMinor, d.TxHash)
			}
			return nil
		},
	}
	listCmd.Flags().Int("limit", 50, "Maximum deposits to list")

	retryCmd := &cobra.Command{
		Use:   "retry <deposit-id>",
		Short: "Re-run the sweep for a deposit that was persisted but never settled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweepRetry(cmd, args[0])
		},
	}

	sweepCmd.AddCommand(listCmd, retryCmd)
	return sweepCmd
}

func runSweepRetry(cmd *cobra.Command, depositIDArg string) error {
	depositID, err := uuid.Parse(depositIDArg)
	if err != nil {
		return fmt.Errorf("invalid deposit id: %w", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	chains, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deposit, err := database.GetDeposit(ctx, depositID)
	if err != nil {
		return fmt.Errorf("load deposit: %w", err)
	}
	if deposit.SettledAt != nil {
		return fmt.Errorf("deposit %s is already settled", deposit.ID)
	}

	var entry *config.ChainEntry
	for i := range chains.Chains {
		if chains.Chains[i].ChainName == deposit.ChainName {
			entry = &chains.Chains[i]
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("deposit's chain %q is not present in the chains file", deposit.ChainName)
	}

	customer, err := database.GetCustomerByID(ctx, deposit.CustomerRef)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	merchantRef, err := uuid.Parse(customer.MerchantRef)
	if err != nil {
		return fmt.Errorf("customer's merchant_ref is not a merchant id: %w", err)
	}
	merchant, err := database.GetMerchantByID(ctx, merchantRef)
	if err != nil {
		return fmt.Errorf("load merchant: %w", err)
	}

	customerAccount, err := keyderiv.Derive(cfg.Mnemonic, merchant.MerchantSeq, customer.CustomerSeq)
	if err != nil {
		return fmt.Errorf("derive customer key: %w", err)
	}
	customerKey, err := crypto.HexToECDSA(customerAccount.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("parse customer key: %w", err)
	}

	var adminKey *ecdsa.PrivateKey
	if entry.Admin != "" {
		adminKey, err = crypto.HexToECDSA(config.ParseAdminPrivateKey(entry.Admin))
		if err != nil {
			return fmt.Errorf("parse chains-file admin key: %w", err)
		}
	} else {
		adminKey, err = resolveAdminKey(cfg, entry.ChainName)
		if err != nil {
			return err
		}
	}

	client, err := evmchain.Dial(ctx, entry.RPC, slog.With("chain", entry.ChainName))
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	defer client.Close()

	tokens, err := config.ParseTokens(entry.Tokens)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("chain %q has no tokens configured to sweep", entry.ChainName)
	}
	token := common.HexToAddress(tokens[0].Address)
	if deposit.TokenAddress != "" {
		token = common.HexToAddress(deposit.TokenAddress)
	}

	commission := sweep.Commission{
		Rate: entry.Commission,
		Min:  big.NewInt(entry.CommissionMin),
		Max:  big.NewInt(entry.CommissionMax),
	}

	adminAddress := crypto.PubkeyToAddress(adminKey.PublicKey)
	result, err := sweep.Sweep(ctx, client, token,
		common.HexToAddress(customerAccount.Address),
		common.HexToAddress(merchant.PayoutAddress),
		adminAddress,
		customerKey, adminKey, commission)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	decimals, err := client.TokenDecimals(ctx, token)
	if err != nil {
		return fmt.Errorf("read token decimals: %w", err)
	}
	settledMinor := int64(decimal.ToMinor(result.MerchantAmount, decimals))

	if err := database.SettleDeposit(ctx, deposit.ID, settledMinor, result.TxHash.Hex()); err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}

	fmt.Printf("swept deposit %s: tx=%s settled_amount_minor=%d\n", deposit.ID, result.TxHash.Hex(), settledMinor)
	return nil
}

func resolveAdminKey(cfg *config.Config, chainName string) (*ecdsa.PrivateKey, error) {
	store, err := adminkey.Open()
	if err == nil {
		if priv, kerr := store.Load(chainName); kerr == nil {
			return priv, nil
		}
	}
	admin, derr := keyderiv.Derive(cfg.Mnemonic, keyderiv.AdminMerchantID, keyderiv.AdminCustomerID)
	if derr != nil {
		return nil, fmt.Errorf("no stored admin key for %q and mnemonic derivation failed: %w", chainName, derr)
	}
	priv, perr := crypto.HexToECDSA(admin.PrivateKeyHex)
	if perr != nil {
		return nil, fmt.Errorf("parse derived admin key: %w", perr)
	}
	return priv, nil
}

func newAdminKeyCmd() *cobra.Command {
	adminKeyCmd := &cobra.Command{
		Use:   "admin-key",
		Short: "Manage the admin signing key stored in the OS keyring",
	}

	storeCmd := &cobra.Command{
		Use:   "store <chain-name> <private-key-hex>",
		Short: "Store a private key in the OS keyring, overriding the mnemonic-derived default",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := crypto.HexToECDSA(config.ParseAdminPrivateKey(args[1]))
			if err != nil {
				return fmt.Errorf("invalid private key: %w", err)
			}
			store, err := adminkey.Open()
			if err != nil {
				return err
			}
			if err := store.Store(args[0], priv); err != nil {
				return err
			}
			fmt.Printf("stored admin key for %q: %s\n", args[0], crypto.PubkeyToAddress(priv.PublicKey).Hex())
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <chain-name>",
		Short: "Print the address of the admin key stored for a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := adminkey.Open()
			if err != nil {
				return err
			}
			addr, err := store.Address(args[0])
			if err != nil {
				return err
			}
			fmt.Println(addr.Hex())
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <chain-name>",
		Short: "Remove the admin key stored for a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := adminkey.Open()
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	}

	adminKeyCmd.AddCommand(storeCmd, showCmd, deleteCmd)
	return adminKeyCmd
}

func openDB(cfg *config.Config) (*db.DB, error) {
	dbConfig := &db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	}
	return db.New(dbConfig)
}
