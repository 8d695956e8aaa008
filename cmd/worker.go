package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/worker"
)

var (
	workerID        string
	workerTransport string
	workerAddress   string
	workerPorts     []int
	workerGateway   string
	workerInterval  time.Duration
	workerSilent    bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a stub worker",
	Long: `Start a loopback stub worker that heartbeats to a gateway and acknowledges
every well-formed request without executing it.

Examples:
  # UDP worker on the first free port of 9001-9005
  gateway worker

  # TCP worker for a tcp/http/mux gateway
  gateway worker --transport=tcp --gateway=127.0.0.1:9007`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVarP(&workerID, "id", "n", "worker-1", "Worker name used in logs")
	workerCmd.Flags().StringVarP(&workerTransport, "transport", "t", string(worker.TransportUDP), "Worker transport: udp or tcp")
	workerCmd.Flags().StringVarP(&workerAddress, "address", "a", worker.DefaultAddress, "Address to bind the worker to")
	workerCmd.Flags().IntSliceVarP(&workerPorts, "ports", "p", worker.DefaultCandidatePorts, "Candidate ports, tried in order")
	workerCmd.Flags().StringVarP(&workerGateway, "gateway", "g", worker.DefaultGatewayHeartbeatAddr, "Gateway heartbeat address")
	workerCmd.Flags().DurationVar(&workerInterval, "heartbeat-interval", worker.DefaultHeartbeatInterval, "Heartbeat period")
	workerCmd.Flags().BoolVar(&workerSilent, "silent", false, "Receive requests but never reply")
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger.Init("", true)
	defer logger.Sync()

	cfg := worker.DefaultConfig(workerID, worker.Transport(workerTransport))
	cfg.Address = workerAddress
	cfg.CandidatePorts = workerPorts
	cfg.GatewayHeartbeatAddr = workerGateway
	cfg.HeartbeatInterval = workerInterval
	cfg.Silent = workerSilent

	w, err := worker.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if err := w.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	return nil
}
