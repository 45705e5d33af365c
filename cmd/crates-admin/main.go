// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the crates-admin CLI.
// It keeps the registry database and the git-backed index tree in step:
// git-import pulls fields the database is missing from index files, and
// regenerate-index rebuilds index files from the database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/crates-admin/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is built in PersistentPreRunE from log_level.
var logger = zap.NewNop()

// secretDefault returns fallback when set, otherwise the secret for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the crates-admin CLI.
var rootCmd = &cobra.Command{
	Use:   "crates-admin",
	Short: "Reconcile the package index with the registry database",
	Long: `crates-admin keeps the git-backed package index and the registry database
consistent in both directions.

git-import walks index files changed in a checkout and fills database fields
that are still NULL. regenerate-index normalizes every index file and then
rewrites the tree from the database. Every run asks for confirmation before
mutating anything and sleeps --delay before each crate.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./crates-admin.yaml or ~/.config/crates-admin/config.yaml)")
	flags.String("database-url", "", "registry database URL (postgres://... or a SQLite path)")
	flags.String("log-level", "info", "diagnostic log level (debug, info, warn, error)")

	mustBind("database_url", flags.Lookup("database-url"))
	mustBind("log_level", flags.Lookup("log-level"))
}

func initConfig() {
	loadEnvFiles()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("crates-admin")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "crates-admin"))
		}
	}

	viper.SetEnvPrefix("CRATES_ADMIN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadEnvFiles loads .env.local and then .env. godotenv never overrides a
// variable that is already set, so .env.local wins over .env and the real
// environment wins over both.
func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
