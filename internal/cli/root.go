// Package cli holds the cobra commands of the celebdetect binary.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"celebdetect/internal/config"
	"celebdetect/pkg/logger"
)

// Version is the application version.
const Version = "0.1.0"

var envFile string

// app is the state shared by subcommands, set up in PersistentPreRunE.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

var current app

var rootCmd = &cobra.Command{
	Use:     "celebdetect",
	Short:   "Detect a face in a photo and ask an LLM who it is",
	Version: Version,
	// Without a subcommand the binary serves the web UI.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}

		cfg, err := config.Load(files...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log, err := logger.New(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if cfg.LLM.APIKey == "" {
			log.Warn("GROQ_API_KEY is not set; identification and questions will fall back to default answers")
		}
		if cfg.App.SecretKey == config.DefaultSecret {
			log.Warn("SECRET_KEY is not set; using the default signing secret")
		}

		current = app{cfg: cfg, log: log}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current.log != nil {
			_ = current.log.Sync()
		}
	},
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default: .env)")
}
