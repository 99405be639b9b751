package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/V4T54L/fieldlog/internal/adapter/api/handler"
	"github.com/V4T54L/fieldlog/internal/adapter/export"
	"github.com/V4T54L/fieldlog/internal/adapter/filter"
	"github.com/V4T54L/fieldlog/internal/domain"
	"github.com/V4T54L/fieldlog/internal/pkg/config"
	"github.com/V4T54L/fieldlog/pkg/fieldlog"
)

func openGroup(ctx context.Context, basePath string, follow bool, reg prometheus.Registerer, logger *slog.Logger) (*fieldlog.GroupReader, error) {
	g, err := fieldlog.OpenGroup(basePath, fieldlog.ReadOptions{
		Follow:     follow,
		Registerer: reg,
		Logger:     logger,
		OnFormatError: func(path string, err error) {
			logger.Warn("skipping unreadable log data", "path", path, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log group: %w", err)
	}
	// Closing ends a following read once the command is interrupted.
	go func() {
		<-ctx.Done()
		_ = g.Close()
	}()
	return g, nil
}

func newReadCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <basePath>",
		Short: "Print the items of a log group in time order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			expr, _ := cmd.Flags().GetString("filter")
			asJSON, _ := cmd.Flags().GetBool("json")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			f, err := filter.New(expr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reg := prometheus.NewRegistry()
			g, err := openGroup(ctx, args[0], follow, reg, logger)
			if err != nil {
				return err
			}
			defer g.Close()

			var printed atomic.Int64
			if metricsAddr != "" {
				started := time.Now()
				serveAdmin(ctx, metricsAddr, reg, func() handler.Status {
					return handler.Status{
						BasePath:  args[0],
						Following: follow,
						CaughtUp:  isClosed(g.CaughtUp()),
						Items:     printed.Load(),
						StartedAt: started,
					}
				}, logger)
			}
			if follow {
				go func() {
					select {
					case <-g.CaughtUp():
						logger.Debug("caught up with the log files, following")
					case <-ctx.Done():
					}
				}()
			}
			return printItems(ctx, g, cmd.OutOrStdout(), f, asJSON, follow, &printed)
		},
	}
	cmd.Flags().BoolP("follow", "f", false, "keep reading as the files grow")
	cmd.Flags().String("filter", "", "CEL expression selecting the items to print")
	cmd.Flags().Bool("json", false, "print one JSON object per line")
	cmd.Flags().String("metrics-addr", "", "serve reader metrics on this address")
	return cmd
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func printItems(ctx context.Context, src export.ItemSource, out io.Writer, f filter.Filter, asJSON, follow bool, printed *atomic.Int64) error {
	var jw *export.JSONWriter
	if asJSON {
		jw = export.NewJSONWriter(out)
		defer jw.Flush()
	}
	for {
		item, err := src.ReadLogItem(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if !f.Match(item) {
			continue
		}
		printed.Add(1)
		if jw == nil {
			if _, err := fmt.Fprintln(out, export.FormatText(item)); err != nil {
				return err
			}
			continue
		}
		if err := jw.Write(item); err != nil {
			return err
		}
		if follow {
			if err := jw.Flush(); err != nil {
				return err
			}
		}
	}
}

func newExportCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <basePath>",
		Short: "Write a log group to a zstd-compressed NDJSON archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")
			expr, _ := cmd.Flags().GetString("filter")
			f, err := filter.New(expr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, err := openGroup(ctx, args[0], false, nil, logger)
			if err != nil {
				return err
			}
			defer g.Close()

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create archive: %w", err)
			}
			n, err := export.Archive(ctx, g, out, func(item domain.Item) bool { return f.Match(item) })
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			logger.Info("export finished", "items", n, "out", outPath)
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "fieldlog.ndjson.zst", "archive file to write")
	cmd.Flags().String("filter", "", "CEL expression selecting the items to export")
	return cmd
}

func newConfigCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration of an application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, _ := cmd.Flags().GetString("exe")
			if exe == "" {
				exe, _ = os.Executable()
			}
			cfg, err := config.Load(exe)
			if errors.Is(err, config.ErrMalformed) {
				logger.Warn("configuration file is malformed, showing defaults", "file", config.FileName(exe), "error", err)
			} else if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", config.FileName(exe))
			for i, p := range cfg.BasePaths(exe) {
				fmt.Fprintf(out, "# base path %d: %s\n", i+1, p)
			}
			_, err = cfg.WriteTo(out)
			return err
		},
	}
	cmd.Flags().String("exe", "", "application executable (default: this program)")
	return cmd
}
