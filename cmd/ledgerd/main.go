package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/auth"
	"github.com/witnz/ledgerd/internal/config"
	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/logging"
	"github.com/witnz/ledgerd/internal/storage"
)

const dbFile = "ledger.db"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "ledgerd",
	Short:         "ledgerd - permissioned, audited key-value ledger",
	Long:          `A replicated key-value ledger with an admin registry, per-identity rate limits and a hash-chained audit log`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "ledgerd.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tokenCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "ledgerd v0.1.0")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and an empty ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		path := dbPath(cfg)
		store, err := storage.New(path)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Initialized ledgerd node: %s\n", cfg.Node.ID)
		fmt.Fprintf(out, "Owner: %s\n", cfg.Ledger.Owner)
		fmt.Fprintf(out, "Data directory: %s\n", cfg.Node.DataDir)
		fmt.Fprintf(out, "Database path: %s\n", path)
		return nil
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <identity>",
	Short: "Mint a bearer token for an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.TokenTTLDuration()
		}

		token, err := auth.NewJWTAuthority([]byte(cfg.Auth.JWTSecret)).Issue(args[0], ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
}

// openLedger opens the node's ledger database for commands that run while
// the node is stopped.
func openLedger(cfg *config.Config, logger *zap.Logger) (*storage.Storage, *ledger.Ledger, error) {
	store, err := storage.New(dbPath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	l, err := ledger.New(store, ledger.Options{
		Owner:      cfg.Ledger.Owner,
		RateWindow: cfg.Ledger.RateWindow,
		Logger:     logger,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, l, nil
}

func dbPath(cfg *config.Config) string {
	return filepath.Join(cfg.Node.DataDir, dbFile)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.Development)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
