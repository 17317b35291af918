package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/server"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve registered models to remote masters",
	Long: `Starts the co-simulation server and blocks until interrupted.

Remote masters connect over WebSocket or QUIC, instantiate any model in
the registry and drive it through the usual slave lifecycle.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Server config YAML file")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := server.DefaultConfig()
	if serveConfigPath != "" {
		loaded, err := server.LoadConfig(serveConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	srv := server.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("Server is up", log.String("addrs", strings.Join(srv.Addrs(), ", ")))
	fmt.Printf("serving on %s\n", strings.Join(srv.Addrs(), ", "))

	<-ctx.Done()
	stop()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return srv.Close()
}
