// Command ilp-connectord runs one Interledger connector node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/interledger/go-ilp-connector/config"
	"github.com/interledger/go-ilp-connector/connector"
	"github.com/interledger/go-ilp-connector/internal/buildlog"
)

// Version is the connector's release version, set at build time via
// -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	root := &cobra.Command{Use: "ilp-connectord", Short: "Interledger connector node"}
	root.AddCommand(startCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var configPath, logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "load the node configuration and start serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath, logLevel)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the node's YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level applied to every subsystem")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the connector version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}

func runStart(configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.LogFile != "" {
		if err := buildlog.InitRotator(cfg.LogFile, 10*1024, 3); err != nil {
			return fmt.Errorf("initializing log rotator: %w", err)
		}
		defer buildlog.Shutdown()
	}

	level := logLevel
	if cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	connector.SetLogLevels(level)

	node, err := connector.New(cfg)
	if err != nil {
		return fmt.Errorf("building connector: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return node.Run(ctx)
}
