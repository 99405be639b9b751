package logfile

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// Catalog discovers the files of one log group, identified by its base path.
type Catalog struct {
	basePath string
	poll     time.Duration
	rescan   time.Duration
	logger   *slog.Logger
}

// NewCatalog returns a catalog for basePath. Readers it opens poll their file
// every poll interval while waiting.
func NewCatalog(basePath string, poll time.Duration, logger *slog.Logger) *Catalog {
	return &Catalog{
		basePath: basePath,
		poll:     poll,
		rescan:   time.Second,
		logger:   logger.With("component", "logfile_catalog"),
	}
}

func (c *Catalog) Scan() ([]domain.LogFile, error) {
	return listFiles(c.basePath, -1)
}

func (c *Catalog) OpenReader(f domain.LogFile, wait bool) domain.ItemReader {
	return NewFileReader(f.Path, wait, c.poll)
}

// Watch reports files created after the call until ctx is done. It relies on
// directory notifications and falls back to periodic rescans when those are
// unavailable. A file may be reported more than once.
func (c *Catalog) Watch(ctx context.Context, found func(domain.LogFile)) error {
	dir, baseName := filepath.Split(c.basePath)
	if dir == "" {
		dir = "."
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(dir)
		if err != nil {
			watcher.Close()
		}
	}
	if err != nil {
		c.logger.Warn("directory notifications unavailable, polling instead", "dir", dir, "error", err)
		return c.pollDir(ctx, found)
	}
	defer watcher.Close()

	// Files created between the caller's scan and the watch being armed.
	c.report(found)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			p, created, ok := ParseName(baseName, filepath.Base(ev.Name))
			if !ok {
				continue
			}
			found(domain.LogFile{Path: ev.Name, Priority: p, Created: created})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Overflow drops events; a rescan catches up.
			c.logger.Warn("directory watch error, rescanning", "error", err)
			c.report(found)
		}
	}
}

func (c *Catalog) pollDir(ctx context.Context, found func(domain.LogFile)) error {
	ticker := time.NewTicker(c.rescan)
	defer ticker.Stop()
	for {
		c.report(found)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Catalog) report(found func(domain.LogFile)) {
	files, err := c.Scan()
	if err != nil {
		c.logger.Debug("rescan failed", "error", err)
		return
	}
	for _, f := range files {
		found(f)
	}
}
