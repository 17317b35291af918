package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/fmukit/fmukit/internal/core/models"
	"github.com/fmukit/fmukit/internal/core/observability/log"
)

var (
	// Global flags
	debug   bool
	jsonOut bool

	// Logger
	logger *log.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fmukit",
	Short: "fmukit - FMI 2.0 co-simulation toolkit",
	Long: `fmukit inspects, runs and serves FMI 2.0 co-simulation models.

Models register in-process through the driver registry; .fmu archives
resolve their declared model identifier against it. The serve command
exposes the registry to remote masters over websocket and quic.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := log.LevelInfo
		if debug {
			level = log.LevelDebug
		}
		logger = log.New(level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON instead of tables")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
