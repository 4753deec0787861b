package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cybertrainer/internal/app"
	"cybertrainer/internal/observability"
)

var (
	port          string
	runMigrations bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.NewLogger()

		runtime, err := app.Build(app.Options{LoadDotEnv: loadDotEnv, RunMigrations: runMigrations})
		if err != nil {
			logger.Error("bootstrap_failed", map[string]any{"error": err.Error()})
			return err
		}
		defer func() {
			if err := runtime.Close(); err != nil {
				logger.Error("shutdown_close_failed", map[string]any{"error": err.Error()})
			}
		}()

		addr := runtime.Config.Addr()
		if port != "" {
			addr = ":" + port
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           runtime.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server_start", map[string]any{"addr": addr, "env": runtime.Config.AppEnv})

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("server_stopping", map[string]any{"signal": sig.String()})
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&runMigrations, "migrate", false, "Apply pending migrations before serving")

	// serve is what a bare invocation runs
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
}
