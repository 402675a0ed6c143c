package app

import (
	"fmt"
	"os"

	"postmark-backend/internal/migration"
	"postmark-backend/pkg/config"
	"postmark-backend/pkg/database"
	"postmark-backend/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

var (
	v   = config.New()
	cfg *config.Config
	log = logger.For("app")
)

var rootCmd = &cobra.Command{
	Use:   "postmark",
	Short: "Postmark mail backend",
	Long:  "Gmail sync backend: HTTP API, push-triggered and scheduled sync, schema management",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.FromViper(v)
		logger.Setup(cfg.LogLevel, cfg.LogFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: postgres or sqlite")
	rootCmd.PersistentFlags().String("database-url", "", "Database connection string")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	bindFlag("DB_DRIVER", rootCmd.PersistentFlags().Lookup("db-driver"))
	bindFlag("DATABASE_URL", rootCmd.PersistentFlags().Lookup("database-url"))
	bindFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, migrateCmd, syncCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase() (*gorm.DB, error) {
	db, err := database.Open(database.Options{
		Driver:   cfg.DatabaseDriver,
		DSN:      cfg.DatabaseURL,
		LogLevel: logrus.GetLevel(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openValidatedDatabase refuses to hand out a connection to a stale schema.
func openValidatedDatabase() (*gorm.DB, error) {
	db, err := openDatabase()
	if err != nil {
		return nil, err
	}
	if err := migration.Validate(db); err != nil {
		return nil, fmt.Errorf("%w (run `postmark migrate`)", err)
	}
	return db, nil
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
