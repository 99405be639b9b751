package mocks

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// MockFileWriter is an in-memory domain.FileWriter that records what was written.
type MockFileWriter struct {
	mu       sync.Mutex
	path     string
	fresh    bool
	created  time.Time
	size     int64
	Items    []domain.Item
	Repeated []*domain.ScopeItem
	// Order records every write in sequence, repeated scopes included.
	Order    []domain.Item
	Flushes  int
	Closed   bool
	WriteErr error
	// MaxItem makes WriteItem fail with a CapacityError above the given estimate.
	MaxItem int
}

func NewMockFileWriter(path string, fresh bool, created time.Time) *MockFileWriter {
	return &MockFileWriter{path: path, fresh: fresh, created: created, size: 10}
}

func (m *MockFileWriter) Path() string       { return m.path }
func (m *MockFileWriter) Fresh() bool        { return m.fresh }
func (m *MockFileWriter) Created() time.Time { return m.created }

func (m *MockFileWriter) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *MockFileWriter) WriteItem(item domain.Item) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	n := item.EstimatedSize()
	if m.MaxItem > 0 && n > m.MaxItem {
		return 0, &domain.CapacityError{Size: n, Max: m.MaxItem}
	}
	m.Items = append(m.Items, item)
	m.Order = append(m.Order, item)
	m.size += int64(n)
	return n, nil
}

func (m *MockFileWriter) WriteRepeated(scope *domain.ScopeItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	r := scope.Repeat()
	m.Repeated = append(m.Repeated, r)
	m.Order = append(m.Order, r)
	n := scope.EstimatedSize()
	m.size += int64(n)
	return n, nil
}

func (m *MockFileWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Flushes++
	return nil
}

func (m *MockFileWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Snapshot returns a copy of the write sequence.
func (m *MockFileWriter) Snapshot() []domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Item(nil), m.Order...)
}

// MockFileStore is a domain.FileStore handing out MockFileWriters.
type MockFileStore struct {
	mu       sync.Mutex
	Writers  []*MockFileWriter
	OpenErr  error
	ForceErr error
	// Forced counts ForceWriter calls.
	Forced   int
	Dropped  map[domain.Priority]bool
	MaxSize  int64
	MaxItem  int
	Purges   int
	PurgeErr error
	// LastOpen is the open set passed to the latest Purge call.
	LastOpen []string
}

func (m *MockFileStore) OpenWriter(prio domain.Priority, now time.Time) (domain.FileWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	w := NewMockFileWriter(prio.String(), true, now)
	w.MaxItem = m.MaxItem
	m.Writers = append(m.Writers, w)
	return w, nil
}

func (m *MockFileStore) ForceWriter(prio domain.Priority, now time.Time) (domain.FileWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Forced++
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}
	w := NewMockFileWriter("forced-"+prio.String(), true, now)
	w.MaxItem = m.MaxItem
	m.Writers = append(m.Writers, w)
	return w, nil
}

func (m *MockFileStore) Expired(w domain.FileWriter, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MaxSize > 0 && w.Size() >= m.MaxSize
}

func (m *MockFileStore) Persists(prio domain.Priority) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Dropped[prio]
}

func (m *MockFileStore) Purge(open []string, now time.Time) (domain.PurgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purges++
	m.LastOpen = append([]string(nil), open...)
	return domain.PurgeResult{}, m.PurgeErr
}

// SetOpenErr changes the open failure while the pipeline is running.
func (m *MockFileStore) SetOpenErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenErr = err
}

// AllWriters returns the writers opened so far.
func (m *MockFileStore) AllWriters() []*MockFileWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockFileWriter(nil), m.Writers...)
}

// MockItemReader is a domain.ItemReader over an in-memory item list. In wait
// mode it behaves like a file being tailed: Append adds items, and at the end
// it blocks until more items, a successor or Close.
type MockItemReader struct {
	mu     sync.Mutex
	path   string
	wait   bool
	items  []domain.Item
	pos    int
	next   domain.ItemReader
	hook   func()
	closed bool
	signal chan struct{}
	// Err is returned once instead of io.EOF when the items run out.
	Err error
}

func NewMockItemReader(path string, wait bool, items ...domain.Item) *MockItemReader {
	return &MockItemReader{path: path, wait: wait, items: items, signal: make(chan struct{}, 1)}
}

func (m *MockItemReader) Path() string { return m.path }

func (m *MockItemReader) Append(items ...domain.Item) {
	m.mu.Lock()
	m.items = append(m.items, items...)
	m.mu.Unlock()
	m.notify()
}

func (m *MockItemReader) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *MockItemReader) ReadItem() (domain.Item, error) {
	hooked := false
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, io.EOF
		}
		if m.pos < len(m.items) {
			item := m.items[m.pos]
			m.pos++
			m.mu.Unlock()
			return item, nil
		}
		if m.Err != nil {
			err := m.Err
			m.Err = nil
			m.mu.Unlock()
			return nil, err
		}
		next, hook := m.next, m.hook
		m.mu.Unlock()
		if !m.wait {
			return nil, io.EOF
		}
		if next != nil {
			return nil, domain.ErrNotReady
		}
		if !hooked && hook != nil {
			hooked = true
			hook()
		}
		<-m.signal
	}
}

func (m *MockItemReader) SetNext(next domain.ItemReader) {
	m.mu.Lock()
	m.next = next
	m.mu.Unlock()
	m.notify()
}

func (m *MockItemReader) Next() domain.ItemReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

func (m *MockItemReader) SetWaitHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

func (m *MockItemReader) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notify()
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockItemReader) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockFileCatalog serves MockItemReaders keyed by path.
type MockFileCatalog struct {
	mu      sync.Mutex
	Files   []domain.LogFile
	Readers map[string]*MockItemReader
	found   func(domain.LogFile)
	ready   chan struct{}
}

func NewMockFileCatalog() *MockFileCatalog {
	return &MockFileCatalog{Readers: map[string]*MockItemReader{}, ready: make(chan struct{})}
}

// Add registers a file already present at scan time.
func (m *MockFileCatalog) Add(f domain.LogFile, r *MockItemReader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files = append(m.Files, f)
	m.Readers[f.Path] = r
}

// Create simulates a file appearing while the catalog is watched.
func (m *MockFileCatalog) Create(f domain.LogFile, r *MockItemReader) {
	<-m.ready
	m.mu.Lock()
	m.Readers[f.Path] = r
	found := m.found
	m.mu.Unlock()
	found(f)
}

func (m *MockFileCatalog) Scan() ([]domain.LogFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogFile(nil), m.Files...), nil
}

func (m *MockFileCatalog) OpenReader(f domain.LogFile, wait bool) domain.ItemReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Readers[f.Path]
}

func (m *MockFileCatalog) Watch(ctx context.Context, found func(domain.LogFile)) error {
	m.mu.Lock()
	m.found = found
	m.mu.Unlock()
	close(m.ready)
	<-ctx.Done()
	return nil
}
