package logfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// HardFileCap closes a file regardless of the configured size limit.
const HardFileCap int64 = 1 << 30

// StoreOptions configures a Store.
type StoreOptions struct {
	// BasePaths are tried in order when a file cannot be created; the first
	// one is the configured location, the rest are fallbacks.
	BasePaths    []string
	MaxFileSize  int64
	MaxTotalSize int64
	// Keep is the retention per priority. Zero means the priority is not persisted.
	Keep [domain.PriorityCount]time.Duration
}

// Store implements domain.FileStore on a directory of .fl files. Files of a
// group are named {base}-{priority}-{ticks}.fl.
type Store struct {
	opts   StoreOptions
	logger *slog.Logger

	mu        sync.Mutex
	active    int
	lastTicks int64
}

// NewStore creates a store. Directories are created lazily when a file is opened.
func NewStore(opts StoreOptions, logger *slog.Logger) (*Store, error) {
	if len(opts.BasePaths) == 0 {
		return nil, errors.New("logfile: at least one base path is required")
	}
	if opts.MaxFileSize <= 0 || opts.MaxFileSize > HardFileCap {
		opts.MaxFileSize = HardFileCap
	}
	return &Store{
		opts:   opts,
		logger: logger.With("component", "logfile_store"),
	}, nil
}

// BasePath is the base path currently written to.
func (s *Store) BasePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.BasePaths[s.active]
}

// OpenWriter returns a writer for the newest file of prio if it was created
// today and is still under the size cap, or for a newly created file. When a
// location fails the next fallback location is tried.
func (s *Store) OpenWriter(prio domain.Priority, now time.Time) (domain.FileWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bases := s.opts.BasePaths
	var errs []error
	for i := range bases {
		idx := (s.active + i) % len(bases)
		w, err := s.openIn(bases[idx], prio, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", bases[idx], err))
			continue
		}
		if idx != s.active {
			s.logger.Warn("switched log location", "from", bases[s.active], "to", bases[idx])
			s.active = idx
		}
		return w, nil
	}
	return nil, &domain.IOTransientError{Op: "open " + prio.String() + " log file", Err: errors.Join(errs...)}
}

func (s *Store) ForceWriter(prio domain.Priority, now time.Time) (domain.FileWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.opts.BasePaths[len(s.opts.BasePaths)-1]
	if err := os.MkdirAll(filepath.Dir(base), dirPerm); err != nil {
		return nil, &domain.IOTransientError{Op: "force " + prio.String() + " log file", Err: err}
	}
	w, err := s.create(base, prio, now, 0)
	if err != nil {
		return nil, &domain.IOTransientError{Op: "force " + prio.String() + " log file", Err: err}
	}
	s.logger.Warn("forced a log file in the last fallback location", "path", w.Path())
	return w, nil
}

func (s *Store) openIn(base string, prio domain.Priority, now time.Time) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(base), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	files, err := listFiles(base, int(prio))
	if err != nil {
		return nil, err
	}

	var minTicks int64
	if len(files) > 0 {
		latest := files[len(files)-1]
		minTicks = latest.Created.UnixNano() + 1
		if sameDay(latest.Created, now) && latest.Size < s.opts.MaxFileSize {
			w, err := ReopenWriter(latest.Path, latest.Created)
			if err == nil {
				s.logger.Debug("reopened log file", "path", latest.Path, "size", latest.Size)
				return w, nil
			}
			if errors.Is(err, ErrLocked) {
				s.logger.Debug("log file held by another writer, starting a new one", "path", latest.Path)
			} else {
				s.logger.Warn("cannot append to existing log file, starting a new one", "path", latest.Path, "error", err)
			}
		}
	}
	return s.create(base, prio, now, minTicks)
}

func (s *Store) create(base string, prio domain.Priority, now time.Time, minTicks int64) (*FileWriter, error) {
	ticks := max(now.UnixNano(), minTicks, s.lastTicks+1)
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		path := FileName(base, prio, ticks)
		w, err := CreateWriter(path, time.Unix(0, ticks).UTC())
		if err == nil {
			s.lastTicks = ticks
			s.logger.Info("created log file", "path", path)
			return w, nil
		}
		lastErr = err
		if !errors.Is(err, fs.ErrExist) && !errors.Is(err, ErrLocked) {
			break
		}
		ticks++
	}
	return nil, lastErr
}

// Expired reports whether w reached a size cap or was created before today.
func (s *Store) Expired(w domain.FileWriter, now time.Time) bool {
	size := w.Size()
	return size >= s.opts.MaxFileSize || size >= HardFileCap || !sameDay(w.Created(), now)
}

func (s *Store) Persists(prio domain.Priority) bool {
	return prio.Valid() && s.opts.Keep[prio] > 0
}

// Purge deletes files older than their priority's keep time, then the oldest
// files across all priorities until the total size is under the cap. Open
// files are skipped. Failed deletions are reported and retried next pass.
func (s *Store) Purge(open []string, now time.Time) (domain.PurgeResult, error) {
	var res domain.PurgeResult
	files, err := listFiles(s.BasePath(), -1)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return res, err
	}
	isOpen := make(map[string]bool, len(open))
	for _, p := range open {
		isOpen[p] = true
	}

	var errs []error
	kept := files[:0]
	var total int64
	for _, f := range files {
		keep := s.opts.Keep[f.Priority]
		if !isOpen[f.Path] && (keep <= 0 || now.Sub(f.ModTime) > keep) {
			if err := remove(f.Path); err != nil {
				errs = append(errs, err)
			} else {
				res.Expired++
				res.Bytes += f.Size
				continue
			}
		}
		kept = append(kept, f)
		total += f.Size
	}

	for _, f := range kept {
		if total <= s.opts.MaxTotalSize || s.opts.MaxTotalSize <= 0 {
			break
		}
		if isOpen[f.Path] {
			continue
		}
		if err := remove(f.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		res.OverCap++
		res.Bytes += f.Size
		total -= f.Size
	}
	if res.Expired+res.OverCap > 0 {
		s.logger.Debug("purged log files", "expired", res.Expired, "over_cap", res.OverCap, "bytes", res.Bytes)
	}
	return res, errors.Join(errs...)
}

func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove log file %s: %w", path, err)
	}
	return nil
}
