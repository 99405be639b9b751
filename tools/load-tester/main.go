package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/V4T54L/fieldlog/internal/adapter/api"
	"github.com/V4T54L/fieldlog/internal/adapter/api/handler"
	"github.com/V4T54L/fieldlog/pkg/fieldlog"
)

func main() {
	basePath := flag.String("path", filepath.Join("loadtest", "loadtest"), "Base path of the log files to write")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 1000, "Items per second limit")
	metricsAddr := flag.String("metrics", "", "Serve pipeline metrics on this address")
	flag.Parse()

	log.Printf("Starting load test writing to %s", *basePath)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var successCount, errorCount atomic.Int64
	reg := prometheus.NewRegistry()
	start := time.Now()
	if *metricsAddr != "" {
		status := func() handler.Status {
			return handler.Status{BasePath: *basePath, Items: successCount.Load(), StartedAt: start}
		}
		router := api.NewAdminRouter(reg, status, slog.Default())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server failed: %v", err)
			}
		}()
	}

	cfg := fieldlog.DefaultConfig()
	cfg.Path = *basePath
	engine, err := fieldlog.New(fieldlog.Options{Config: cfg, ExePath: "loadtest", Registerer: reg})
	if err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *concurrency; i++ {
		workerID := i
		g.Go(func() error {
			tctx, thread := engine.StartThread(gctx, fmt.Sprintf("worker-%d", workerID))
			defer thread.Leave()
			for {
				if err := limiter.Wait(tctx); err != nil {
					return nil // deadline reached
				}
				if err := emit(tctx, engine, workerID); err != nil {
					errorCount.Add(1)
					continue
				}
				successCount.Add(1)
			}
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	shutdownStart := time.Now()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Minute)
	defer cancelShutdown()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown reported: %v", err)
	}

	total := successCount.Load() + errorCount.Load()
	log.Println("Load test finished.")
	log.Printf("Total Items: %d", total)
	log.Printf("Logged: %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", float64(total)/elapsed.Seconds())
	log.Printf("Drain time: %s", time.Since(shutdownStart))
}

// emit logs one random item, sometimes wrapped in a scope.
func emit(ctx context.Context, engine *fieldlog.Engine, workerID int) error {
	prio := fieldlog.Priority(rand.IntN(int(fieldlog.Critical) + 1))
	switch n := rand.IntN(100); {
	case n < 60:
		return engine.Text(ctx, prio, fmt.Sprintf("load test event from worker %d", workerID), uuid.NewString())
	case n < 85:
		return engine.Data(ctx, prio, "request_id", uuid.NewString())
	case n < 95:
		scope := engine.Enter(ctx, "handle-request")
		err := engine.Text(ctx, fieldlog.Trace, "inside scope")
		return errors.Join(err, scope.Leave())
	default:
		return engine.Exception(ctx, fieldlog.Warning, fmt.Errorf("simulated failure in worker %d: %w", workerID, context.DeadlineExceeded), "load test")
	}
}
