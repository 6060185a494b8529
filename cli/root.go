// Package cli implements the ponto command line.
package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/edufeq03/app-ponto-sub000/config"
	"github.com/edufeq03/app-ponto-sub000/i18n"
	"github.com/edufeq03/app-ponto-sub000/ledger"
	mongostore "github.com/edufeq03/app-ponto-sub000/store/mongo"
	"github.com/edufeq03/app-ponto-sub000/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "ponto",
	Short: "Attendance time bank",
	Long: `ponto records clock-in/clock-out punches and keeps a running time bank
per user: worked minutes against the daily standard, minus withdrawals,
since the last settlement date.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "ponto.toml", "Path to the TOML config file")
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: sqlite or mongo (overrides config)")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().String("timezone", "", "Ledger timezone (overrides config)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file, env overrides, then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if v, _ := cmd.Flags().GetString("db-driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.Database.Path = v
	}
	if v, _ := cmd.Flags().GetString("timezone"); v != "" {
		cfg.Ledger.Timezone = v
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	i18n.Init(cfg.Ledger.Locale)
	return cfg, nil
}

// openGateway connects to the configured database.
func openGateway(ctx context.Context, cfg config.Config) (ledger.Gateway, func(), error) {
	switch cfg.Database.Driver {
	case "mongo":
		s, err := mongostore.New(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("open mongodb: %w", err)
		}
		return s, func() {
			if err := s.Close(context.Background()); err != nil {
				log.Printf("Warning: closing mongodb: %v", err)
			}
		}, nil
	default:
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
}
