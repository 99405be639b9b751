package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/V4T54L/fieldlog/internal/adapter/api"
	"github.com/V4T54L/fieldlog/internal/adapter/api/handler"
	"github.com/V4T54L/fieldlog/internal/pkg/logger"
)

func main() {
	logger := logger.New(os.Getenv("FIELDLOG_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "fieldlog",
		Short:        "Read and export FieldLog files",
		SilenceUsage: true,
	}
	root.AddCommand(
		newReadCommand(logger),
		newExportCommand(logger),
		newConfigCommand(logger),
	)
	return root
}

// serveAdmin exposes health, status and the metrics of reg on addr until ctx
// is done.
func serveAdmin(ctx context.Context, addr string, reg *prometheus.Registry, status handler.StatusFunc, logger *slog.Logger) {
	server := &http.Server{
		Addr:    addr,
		Handler: api.NewAdminRouter(reg, status, logger),
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin & metrics server shutdown failed", "error", err)
		}
	}()
}
