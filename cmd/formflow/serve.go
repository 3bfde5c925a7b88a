package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/formflow/internal/server"
	"github.com/tjfontaine/formflow/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP extraction API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		cfg := a.cfg

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		store, err := openTaskStore(cfg.Tasks)
		if err != nil {
			return err
		}
		defer store.Close()

		notifier := service.NewCallbackNotifier(service.CallbackConfig{
			Timeout:      cfg.Callback.Timeout,
			Retries:      cfg.Callback.Retries,
			AllowPrivate: cfg.Callback.AllowPrivate,
		})
		async := service.NewAsync(a.svc, store,
			service.WithTaskTTL(cfg.Tasks.TTL),
			service.WithWorkers(cfg.Tasks.Workers),
			service.WithPurgeSchedule(cfg.Tasks.PurgeSchedule),
			service.WithNotifier(notifier),
			service.WithAsyncLogger(a.logger),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := async.Start(ctx); err != nil {
			return err
		}
		defer async.Close()

		srv := server.New(port, a.logger, server.Deps{
			Service:        a.svc,
			Async:          async,
			Metrics:        a.metrics.Handler(),
			RequestTimeout: cfg.Server.RequestTimeout,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown error", slog.String("error", err.Error()))
			return err
		}
		a.logger.Info("server shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
