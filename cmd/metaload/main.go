package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognicore/metaload/internal/util"
	"github.com/cognicore/metaload/pkg/metaload/config"
	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/logger/console"
)

var (
	configPath string
	debug      bool
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "metaload",
		Short:         "Load SNAP amazon-meta corpora into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug: debug || util.GetEnvBool("DEBUG", false),
			}))
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", util.GetEnvString("METALOAD_CONFIG", ""), "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(fetchCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Fatal("[Main] Command failed", "error", err)
		// flag errors arrive before PersistentPreRun installs a logger
		fmt.Fprintln(os.Stderr, "metaload:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, then the environment. Flags set on the
// command line are applied by the caller afterwards.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}
