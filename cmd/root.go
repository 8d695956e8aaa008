package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Request-routing gateway for account workers",
	Long: `A gateway that accepts client requests over UDP, line TCP or HTTP and
forwards each one to a live worker, chosen round robin among the workers
that announced themselves with heartbeats.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
