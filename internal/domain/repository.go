package domain

import (
	"context"
	"time"
)

// FileWriter appends encoded items to one log file. It is used by a single
// goroutine only.
type FileWriter interface {
	Path() string
	// Fresh reports whether the file was created empty by this writer.
	Fresh() bool
	Size() int64
	Created() time.Time

	// WriteItem encodes and buffers one item. A *CapacityError means the item
	// was dropped and the file is unchanged.
	WriteItem(item Item) (int, error)
	// WriteRepeated writes a copy of a still-open scope.
	WriteRepeated(scope *ScopeItem) (int, error)
	Flush() error
	Close() error
}

// PurgeResult summarises one purge pass.
type PurgeResult struct {
	Expired int
	OverCap int
	Bytes   int64
}

// FileStore selects, creates and purges the files of one log group.
type FileStore interface {
	// OpenWriter returns a writer for the newest usable file of the priority
	// or creates a new one. Failures are *IOTransientError.
	OpenWriter(prio Priority, now time.Time) (FileWriter, error)
	// ForceWriter creates a new file in the last fallback location without
	// reopening anything. It is the last resort at shutdown.
	ForceWriter(prio Priority, now time.Time) (FileWriter, error)
	// Expired reports whether a writer must be closed and replaced.
	Expired(w FileWriter, now time.Time) bool
	// Persists reports whether items of the priority are written at all.
	Persists(prio Priority) bool
	// Purge deletes expired files and, above the total cap, the oldest files.
	// Files in open are never deleted.
	Purge(open []string, now time.Time) (PurgeResult, error)
}

// LogFile describes one file of a log group on disk.
type LogFile struct {
	Path     string
	Priority Priority
	Created  time.Time
	Size     int64
	ModTime  time.Time
}

// ItemReader decodes items from one file.
type ItemReader interface {
	Path() string
	// ReadItem returns the next item. io.EOF means no more data, ErrNotReady
	// means a successor is linked and the caller should switch to it.
	ReadItem() (Item, error)
	SetNext(next ItemReader)
	Next() ItemReader
	// SetWaitHook installs a callback run whenever the reader starts waiting
	// at the live end of its file.
	SetWaitHook(fn func())
	Close() error
}

// FileCatalog discovers the files of one log group.
type FileCatalog interface {
	// Scan lists the group's files ordered by creation.
	Scan() ([]LogFile, error)
	OpenReader(f LogFile, wait bool) ItemReader
	// Watch reports newly created files until ctx is done.
	Watch(ctx context.Context, found func(LogFile)) error
}
