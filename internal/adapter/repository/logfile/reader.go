package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/V4T54L/fieldlog/internal/adapter/codec"
	"github.com/V4T54L/fieldlog/internal/domain"
)

// DefaultPollInterval is how often a waiting reader checks its file for growth.
const DefaultPollInterval = 100 * time.Millisecond

const readChunk = 64 << 10

// needMore is returned internally when the file ends before the next record
// is complete.
type needMore struct{ partial bool }

func (needMore) Error() string { return "need more data" }

// FileReader decodes the items of one file sequentially. The file is opened
// on first read. In wait mode the end of the file is not final: ReadItem
// polls for growth until a successor is linked or the reader is closed.
type FileReader struct {
	path string
	wait bool
	poll time.Duration

	ioMu   sync.Mutex
	f      *os.File
	opened bool
	pos    int64
	win    []byte
	winOff int64
	dec    *codec.Decoder
	failed error

	mu   sync.Mutex
	next domain.ItemReader
	hook func()

	wake      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

// NewFileReader returns a reader for path. A poll of zero uses DefaultPollInterval.
func NewFileReader(path string, wait bool, poll time.Duration) *FileReader {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &FileReader{
		path:    path,
		wait:    wait,
		poll:    poll,
		dec:     codec.NewDecoder(),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
}

func (r *FileReader) Path() string { return r.path }

func (r *FileReader) SetNext(next domain.ItemReader) {
	r.mu.Lock()
	r.next = next
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *FileReader) Next() domain.ItemReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

func (r *FileReader) SetWaitHook(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

func (r *FileReader) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// ReadItem returns the next item, io.EOF when there is no more data, or
// domain.ErrNotReady once a successor is linked and this file is drained.
// Format errors are sticky.
func (r *FileReader) ReadItem() (domain.Item, error) {
	waiting := false
	for {
		if r.isClosing() {
			return nil, io.EOF
		}
		item, err := r.tryRead()
		var more needMore
		if !errors.As(err, &more) {
			return item, err
		}
		if !r.wait {
			if more.partial {
				return nil, r.fail(&domain.FormatError{Path: r.path, Offset: r.pos, Reason: "truncated record"})
			}
			return nil, io.EOF
		}

		if r.Next() != nil {
			// The successor is created after the last write to this file,
			// so one more attempt sees everything.
			item, err = r.tryRead()
			if !errors.As(err, &more) {
				return item, err
			}
			return nil, domain.ErrNotReady
		}
		if !waiting {
			waiting = true
			r.mu.Lock()
			hook := r.hook
			r.mu.Unlock()
			if hook != nil {
				hook()
			}
		}
		timer := time.NewTimer(r.poll)
		select {
		case <-r.closing:
			timer.Stop()
			return nil, io.EOF
		case <-r.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (r *FileReader) fail(err error) error {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	r.failed = err
	return err
}

func (r *FileReader) tryRead() (domain.Item, error) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	if r.failed != nil {
		return nil, r.failed
	}
	if r.isClosing() {
		return nil, io.EOF
	}
	if !r.opened {
		if err := r.open(); err != nil {
			return nil, err
		}
	}

	for {
		hdr, avail, err := r.ensure(r.pos, codec.RecordHeaderSize)
		if err != nil {
			return nil, err
		}
		if hdr == nil {
			return nil, needMore{partial: avail > 0}
		}
		t, size, err := codec.ParseRecordHeader(hdr)
		if err != nil {
			return nil, r.sticky(err)
		}
		payload, _, err := r.ensure(r.pos+codec.RecordHeaderSize, size)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return nil, needMore{partial: true}
		}
		item, err := r.dec.Decode(r.pos, t, payload)
		if err != nil {
			return nil, r.sticky(err)
		}
		r.pos += int64(codec.RecordHeaderSize + size)
		if item != nil {
			return item, nil
		}
	}
}

func (r *FileReader) sticky(err error) error {
	var fe *domain.FormatError
	if errors.As(err, &fe) {
		fe.Path = r.path
		if fe.Offset == 0 {
			fe.Offset = r.pos
		}
	}
	r.failed = err
	return err
}

func (r *FileReader) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", r.path, err)
	}
	r.f = f
	hdr, avail, err := r.ensure(0, codec.HeaderSize)
	if err != nil {
		r.closeFile()
		return err
	}
	if hdr == nil {
		// The writer may not have flushed its header yet.
		r.closeFile()
		return needMore{partial: avail > 0}
	}
	if err := codec.CheckFileHeader(hdr); err != nil {
		r.closeFile()
		return r.sticky(err)
	}
	r.opened = true
	r.pos = int64(codec.HeaderSize)
	return nil
}

func (r *FileReader) closeFile() {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	r.win = r.win[:0]
}

// ensure returns n bytes at off, reading from the file when the window does
// not cover them. It returns nil and the number of available bytes when the
// file is shorter.
func (r *FileReader) ensure(off int64, n int) ([]byte, int, error) {
	if off >= r.winOff && off+int64(n) <= r.winOff+int64(len(r.win)) {
		start := int(off - r.winOff)
		return r.win[start : start+n], n, nil
	}
	size := max(n, readChunk)
	if cap(r.win) < size {
		r.win = make([]byte, size)
	}
	r.win = r.win[:size]
	m, err := r.f.ReadAt(r.win, off)
	r.win = r.win[:m]
	r.winOff = off
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	if m < n {
		return nil, m, nil
	}
	return r.win[:n], n, nil
}

// Reset rewinds to the first record and clears a previous format error.
func (r *FileReader) Reset() {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	r.failed = nil
	r.dec.Reset()
	r.win = r.win[:0]
	if r.opened {
		r.pos = int64(codec.HeaderSize)
	}
}

// Close stops any pending wait and releases the file handle.
func (r *FileReader) Close() error {
	r.closeOnce.Do(func() { close(r.closing) })
	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
