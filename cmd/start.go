package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/gateway/config"
	"github.com/adamgarcia4/goLearning/gateway/gateway"
	"github.com/adamgarcia4/goLearning/gateway/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a gateway",
	Long: `Start a gateway.

Examples:
  # UDP gateway on 9000 with heartbeats on 9007
  gateway start

  # HTTP gateway on 9050 with metrics on 9100
  gateway start --transport=http --admin-http=127.0.0.1:9100

  # Line TCP and HTTP on one port, settings from a file
  gateway start --transport=mux --config=gateway.yaml`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	config.RegisterFlags(startCmd.Flags())
}

// loadConfig resolves the gateway config from the command's flags
func loadConfig(cmd *cobra.Command) (*gateway.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

func runStart(cmd *cobra.Command, args []string) error {
	// Initialize logger for non-interactive mode (write to stdout)
	logger.Init("", true)
	defer logger.Sync()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	g, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	if err := g.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if err := g.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	return nil
}
