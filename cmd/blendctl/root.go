package main

import (
	"fmt"
	"os"
	"time"

	"blendcloud/internal/config"
	"blendcloud/internal/infra"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "blendctl",
	Short: "Herramientas de operacion de BlendCloud",
	Long: `blendctl agrupa las tareas de operacion que no pasan por la API HTTP:
generar hashes bcrypt y sembrar tiendas y usuarios en una base local.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(level)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log de depuracion")
	rootCmd.AddCommand(genhashCmd, seedCmd, usuarioCmd)
}

// openDB loads the server configuration and connects the same way the server
// does, so migrations and the tenant filter are in place.
func openDB() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return cfg, db, nil
}
