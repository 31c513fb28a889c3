package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"examintel/internal/app"
	"examintel/internal/app/observability"
	"examintel/internal/db"
)

var rootCmd = &cobra.Command{
	Use:           "examctl",
	Short:         "Operator tooling for the exam intelligence service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("dsn", "", "Postgres DSN (overrides DB_DSN and the config file)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(signalsCmd)
	rootCmd.AddCommand(reportCmd)
}

// env carries what every subcommand needs. close releases it.
type env struct {
	cfg app.Config
	db  *sql.DB
	log *zap.Logger
}

func (e *env) close() {
	_ = e.db.Close()
	_ = e.log.Sync()
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		cfg.DBDSN = dsn
	}

	log, err := observability.NewLogger(cfg.AppEnv)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	conn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &env{cfg: cfg, db: conn, log: log}, nil
}
