package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/V4T54L/fieldlog/internal/adapter/codec"
	"github.com/V4T54L/fieldlog/internal/domain"
)

// ErrLocked means another writer holds the file.
var ErrLocked = errors.New("log file is in use by another writer")

// FileWriter appends records to one log file through a write buffer. Only the
// pipeline's sender goroutine uses it.
type FileWriter struct {
	path    string
	created time.Time
	fresh   bool

	f       *os.File
	bw      *bufio.Writer
	enc     *codec.Encoder
	scratch []byte
}

// CreateWriter creates a new file and writes the file header. It fails if the
// file already exists.
func CreateWriter(path string, created time.Time) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock log file %s: %w", path, err)
	}
	w := &FileWriter{
		path:    path,
		created: created,
		fresh:   true,
		f:       f,
		bw:      bufio.NewWriterSize(f, 64<<10),
	}
	header := codec.AppendFileHeader(nil)
	if _, err := w.bw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	w.enc = codec.NewEncoder(int64(len(header)))
	return w, nil
}

// ReopenWriter opens an existing file for appending. The whole file is
// scanned first so the intern cache matches what is on disk; a file that does
// not decode cleanly up to its end is refused, and so is a file another
// writer holds (ErrLocked).
func ReopenWriter(path string, created time.Time) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s for append: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock log file %s: %w", path, err)
	}

	rf, err := os.Open(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	enc, err := codec.Rebuild(rf)
	rf.Close()
	if err != nil {
		f.Close()
		var fe *domain.FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}

	// Seek to the scanned end rather than O_APPEND so offsets stay exact.
	if _, err := f.Seek(enc.Offset(), io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek in %s: %w", path, err)
	}
	return &FileWriter{
		path:    path,
		created: created,
		f:       f,
		bw:      bufio.NewWriterSize(f, 64<<10),
		enc:     enc,
	}, nil
}

func (w *FileWriter) Path() string       { return w.path }
func (w *FileWriter) Fresh() bool        { return w.fresh }
func (w *FileWriter) Created() time.Time { return w.created }

// Size is the file size including buffered bytes.
func (w *FileWriter) Size() int64 { return w.enc.Offset() }

// Interned exposes the intern cache.
func (w *FileWriter) Interned() map[string]int32 { return w.enc.Interned() }

func (w *FileWriter) WriteItem(item domain.Item) (int, error) {
	buf, err := w.enc.Append(w.scratch[:0], item)
	if err != nil {
		return 0, err
	}
	w.scratch = buf
	n, err := w.bw.Write(buf)
	if err != nil {
		return n, fmt.Errorf("failed to write to %s: %w", w.path, err)
	}
	return n, nil
}

func (w *FileWriter) WriteRepeated(scope *domain.ScopeItem) (int, error) {
	return w.WriteItem(scope.Repeat())
}

func (w *FileWriter) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", w.path, err)
	}
	return nil
}

// Close flushes, syncs and closes the file.
func (w *FileWriter) Close() error {
	if w.f == nil {
		return nil
	}
	ferr := w.bw.Flush()
	serr := w.f.Sync()
	cerr := w.f.Close()
	w.f = nil
	return errors.Join(ferr, serr, cerr)
}
