package logfile

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/fieldlog/internal/adapter/codec"
	"github.com/V4T54L/fieldlog/internal/domain"
)

var (
	testLogger  = slog.New(slog.NewTextHandler(io.Discard, nil))
	testSession = uuid.MustParse("0b7f4a0e-95c1-4b9e-8f2d-7f0a3c1d2e4f")
	testNow     = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
)

func keepAll(d time.Duration) [domain.PriorityCount]time.Duration {
	var k [domain.PriorityCount]time.Duration
	for i := range k {
		k[i] = d
	}
	return k
}

func setupTestStore(t *testing.T, maxFileSize, maxTotalSize int64) (*Store, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "logs", "app")
	s, err := NewStore(StoreOptions{
		BasePaths:    []string{base},
		MaxFileSize:  maxFileSize,
		MaxTotalSize: maxTotalSize,
		Keep:         keepAll(24 * time.Hour),
	}, testLogger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s, base
}

func text(counter uint32, msg string) *domain.TextItem {
	return &domain.TextItem{
		Meta: domain.Meta{
			EventCounter: counter,
			Time:         testNow.Add(time.Duration(counter) * time.Millisecond),
			Priority:     domain.PriorityInfo,
			SessionID:    testSession,
			ThreadID:     1,
		},
		Text: msg,
	}
}

func writeItems(t *testing.T, w domain.FileWriter, items ...domain.Item) {
	t.Helper()
	for _, item := range items {
		if _, err := w.WriteItem(item); err != nil {
			t.Fatalf("failed to write item: %v", err)
		}
	}
}

func readAll(t *testing.T, r *FileReader) []domain.Item {
	t.Helper()
	var items []domain.Item
	for {
		item, err := r.ReadItem()
		if errors.Is(err, io.EOF) {
			return items
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		items = append(items, item)
	}
}

func TestParseName(t *testing.T) {
	name := filepath.Base(FileName("/var/log/my-app", domain.PriorityWarning, 1717408800000000000))
	p, created, ok := ParseName("my-app", name)
	if !ok {
		t.Fatalf("failed to parse %q", name)
	}
	if p != domain.PriorityWarning || created.UnixNano() != 1717408800000000000 {
		t.Errorf("unexpected parse result: %v %v", p, created)
	}
	for _, bad := range []string{"my-app-4-123.fl", "my-app-9-1717408800000000000.fl", "other-4-1717408800000000000.fl", "my-app-4-1717408800000000000.log"} {
		if _, _, ok := ParseName("my-app", bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestStore_WriteAndRead(t *testing.T) {
	s, _ := setupTestStore(t, 1<<20, 1<<30)

	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatalf("failed to open writer: %v", err)
	}
	if !w.Fresh() {
		t.Error("expected a fresh file")
	}
	writeItems(t, w, text(1, "one"), text(2, "two"), text(3, "one"))
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	got := readAll(t, NewFileReader(w.Path(), false, 0))
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if msg := got[2].(*domain.TextItem).Text; msg != "one" {
		t.Errorf("expected interned text to resolve, got %q", msg)
	}
}

func TestStore_ReopenRebuildsInternCache(t *testing.T) {
	s, _ := setupTestStore(t, 1<<20, 1<<30)

	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatal(err)
	}
	writeItems(t, w, text(1, "alpha"), text(2, "beta"))
	want := w.(*FileWriter).Interned()
	w.Close()

	reopened, err := s.OpenWriter(domain.PriorityInfo, testNow.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Fresh() || reopened.Path() != w.Path() {
		t.Fatalf("expected to reopen %s, got %s (fresh=%v)", w.Path(), reopened.Path(), reopened.Fresh())
	}
	got := reopened.(*FileWriter).Interned()
	if len(got) != len(want) {
		t.Fatalf("expected %d cached strings, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("cache mismatch for %q: want %d, got %d", k, v, got[k])
		}
	}

	writeItems(t, reopened, text(3, "alpha"), text(4, "gamma"))
	reopened.Close()

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := codec.ReadFileHeader(f); err != nil {
		t.Fatal(err)
	}
	rr := codec.NewRecordReader(f, int64(codec.HeaderSize))
	seen := map[string]int{}
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if rec.Type == codec.RecordString {
			seen[string(rec.Payload)]++
		}
	}
	for s, n := range seen {
		if n != 1 {
			t.Errorf("string %q interned %d times", s, n)
		}
	}
	if seen["gamma"] != 1 {
		t.Error("expected the new string to be interned once")
	}
}

func TestStore_SharedBasePath(t *testing.T) {
	a, base := setupTestStore(t, 1<<20, 1<<30)
	b, err := NewStore(StoreOptions{
		BasePaths:    []string{base},
		MaxFileSize:  1 << 20,
		MaxTotalSize: 1 << 30,
		Keep:         keepAll(24 * time.Hour),
	}, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	wa, err := a.OpenWriter(domain.PriorityWarning, testNow)
	if err != nil {
		t.Fatal(err)
	}
	writeItems(t, wa, text(1, "first"))
	if err := wa.Flush(); err != nil {
		t.Fatal(err)
	}

	wb, err := b.OpenWriter(domain.PriorityWarning, testNow.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if wb.Path() == wa.Path() {
		t.Fatalf("second store reopened %s while it was held", wa.Path())
	}
	if !wb.Fresh() {
		t.Error("expected the second store to create a fresh file")
	}
	if _, err := ReopenWriter(wa.Path(), testNow); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked for a held file, got %v", err)
	}

	writeItems(t, wa, text(2, "from-a"))
	writeItems(t, wb, text(3, "from-b-longer-string"))
	if err := wa.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wb.Close(); err != nil {
		t.Fatal(err)
	}

	texts := func(path string) []string {
		var out []string
		for _, item := range readAll(t, NewFileReader(path, false, 0)) {
			out = append(out, item.(*domain.TextItem).Text)
		}
		return out
	}
	if got := texts(wa.Path()); len(got) != 2 || got[0] != "first" || got[1] != "from-a" {
		t.Errorf("unexpected items in first file: %q", got)
	}
	if got := texts(wb.Path()); len(got) != 1 || got[0] != "from-b-longer-string" {
		t.Errorf("unexpected items in second file: %q", got)
	}

	// Closing releases the lock.
	w, err := ReopenWriter(wa.Path(), testNow)
	if err != nil {
		t.Fatalf("expected to reopen a released file: %v", err)
	}
	w.Close()
}

func TestStore_RefusesCorruptTail(t *testing.T) {
	s, _ := setupTestStore(t, 1<<20, 1<<30)

	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatal(err)
	}
	writeItems(t, w, text(1, "partial"))
	w.Close()

	f, err := os.OpenFile(w.Path(), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{0x20, 0x00})
	f.Close()

	next, err := s.OpenWriter(domain.PriorityInfo, testNow.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer next.Close()
	if next.Path() == w.Path() || !next.Fresh() {
		t.Errorf("expected a new file next to the corrupt one, got %s", next.Path())
	}
	if next.Path() <= w.Path() {
		t.Errorf("new file %s must sort after %s", next.Path(), w.Path())
	}
}

func TestStore_Expired(t *testing.T) {
	s, _ := setupTestStore(t, 200, 1<<30)

	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if s.Expired(w, testNow) {
		t.Fatal("fresh file should not be expired")
	}
	if !s.Expired(w, testNow.Add(24*time.Hour)) {
		t.Error("file from a previous day should be expired")
	}
	for i := uint32(0); !s.Expired(w, testNow); i++ {
		if i > 100 {
			t.Fatal("file never reached the size cap")
		}
		writeItems(t, w, text(i, "some text to grow the file"))
	}
	if w.Size() < 200 {
		t.Errorf("expired below the cap at %d bytes", w.Size())
	}
}

func TestStore_NewDayStartsNewFile(t *testing.T) {
	s, _ := setupTestStore(t, 1<<20, 1<<30)
	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatal(err)
	}
	writeItems(t, w, text(1, "yesterday"))
	w.Close()

	tomorrow, err := s.OpenWriter(domain.PriorityInfo, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer tomorrow.Close()
	if tomorrow.Path() == w.Path() {
		t.Error("expected a new file on a new day")
	}
}

func TestStore_ForceWriter(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary", "app")
	last := filepath.Join(dir, "last", "app")
	s, err := NewStore(StoreOptions{
		BasePaths:    []string{primary, last},
		MaxFileSize:  1 << 20,
		MaxTotalSize: 1 << 30,
		Keep:         keepAll(time.Hour),
	}, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	w, err := s.OpenWriter(domain.PriorityError, testNow)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	forced, err := s.ForceWriter(domain.PriorityError, testNow)
	if err != nil {
		t.Fatalf("force failed: %v", err)
	}
	defer forced.Close()
	if filepath.Dir(forced.Path()) != filepath.Dir(last) || !forced.Fresh() {
		t.Errorf("expected a fresh file under %s, got %s (fresh=%v)", filepath.Dir(last), forced.Path(), forced.Fresh())
	}
	if s.BasePath() != primary {
		t.Errorf("forcing must not move the active location, got %s", s.BasePath())
	}
}

func TestStore_FallbackLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0644); err != nil {
		t.Fatal(err)
	}
	fallback := filepath.Join(dir, "fallback", "app")
	s, err := NewStore(StoreOptions{
		BasePaths:    []string{filepath.Join(blocker, "app"), fallback},
		MaxFileSize:  1 << 20,
		MaxTotalSize: 1 << 30,
		Keep:         keepAll(time.Hour),
	}, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	w, err := s.OpenWriter(domain.PriorityError, testNow)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	defer w.Close()
	if filepath.Dir(w.Path()) != filepath.Dir(fallback) {
		t.Errorf("expected file under %s, got %s", filepath.Dir(fallback), w.Path())
	}
	if s.BasePath() != fallback {
		t.Errorf("expected active base %s, got %s", fallback, s.BasePath())
	}

	s2, _ := NewStore(StoreOptions{BasePaths: []string{filepath.Join(blocker, "app")}, Keep: keepAll(time.Hour)}, testLogger)
	if _, err := s2.OpenWriter(domain.PriorityError, testNow); !errors.Is(err, domain.ErrIOTransient) {
		t.Errorf("expected transient i/o error, got %v", err)
	}
}

func TestStore_Purge(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "app")
	keep := keepAll(30 * 24 * time.Hour)
	keep[domain.PriorityTrace] = 3 * time.Hour
	s, err := NewStore(StoreOptions{BasePaths: []string{base}, MaxFileSize: 1 << 20, MaxTotalSize: 300, Keep: keep}, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	mk := func(prio domain.Priority, age time.Duration, size int) string {
		created := testNow.Add(-age)
		path := FileName(base, prio, created.UnixNano())
		if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, created, created); err != nil {
			t.Fatal(err)
		}
		return path
	}
	oldTrace := mk(domain.PriorityTrace, 5*time.Hour, 10)
	freshTrace := mk(domain.PriorityTrace, time.Hour, 100)
	oldestInfo := mk(domain.PriorityInfo, 4*time.Hour, 100)
	openInfo := mk(domain.PriorityInfo, 3*time.Hour, 100)
	newestError := mk(domain.PriorityError, 10*time.Minute, 100)

	res, err := s.Purge([]string{openInfo}, testNow)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if res.Expired != 1 || res.OverCap != 1 {
		t.Errorf("expected 1 expired and 1 over-cap deletion, got %+v", res)
	}
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}
	if exists(oldTrace) {
		t.Error("expired trace file survived")
	}
	if exists(oldestInfo) {
		t.Error("oldest file should be deleted to get under the total cap")
	}
	for _, p := range []string{freshTrace, openInfo, newestError} {
		if !exists(p) {
			t.Errorf("%s should have been kept", filepath.Base(p))
		}
	}
}

func TestFileReader_WaitMode(t *testing.T) {
	s, _ := setupTestStore(t, 1<<20, 1<<30)
	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	writeItems(t, w, text(1, "first"))
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := NewFileReader(w.Path(), true, 10*time.Millisecond)
	defer r.Close()
	waits := make(chan struct{}, 10)
	r.SetWaitHook(func() { waits <- struct{}{} })

	if item, err := r.ReadItem(); err != nil || item.(*domain.TextItem).Text != "first" {
		t.Fatalf("unexpected first read: %v, %v", item, err)
	}

	t.Run("blocks until data arrives", func(t *testing.T) {
		done := make(chan domain.Item, 1)
		go func() {
			item, _ := r.ReadItem()
			done <- item
		}()
		<-waits
		writeItems(t, w, text(2, "second"))
		w.Flush()
		select {
		case item := <-done:
			if item == nil || item.(*domain.TextItem).Text != "second" {
				t.Errorf("unexpected item %v", item)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("reader did not pick up appended data")
		}
	})

	t.Run("successor makes it not ready", func(t *testing.T) {
		r.SetNext(NewFileReader(w.Path()+".next", true, 0))
		if _, err := r.ReadItem(); !errors.Is(err, domain.ErrNotReady) {
			t.Errorf("expected ErrNotReady, got %v", err)
		}
	})

	t.Run("reset rewinds", func(t *testing.T) {
		r.Reset()
		item, err := r.ReadItem()
		if err != nil || item.(*domain.TextItem).Text != "first" {
			t.Errorf("expected first item after reset, got %v, %v", item, err)
		}
	})
}

func TestFileReader_CloseStopsWaiting(t *testing.T) {
	s, _ := setupTestStore(t, 1<<20, 1<<30)
	w, err := s.OpenWriter(domain.PriorityInfo, testNow)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Flush()

	r := NewFileReader(w.Path(), true, DefaultPollInterval)
	done := make(chan error, 1)
	go func() {
		_, err := r.ReadItem()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	r.Close()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF after close, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > DefaultPollInterval+50*time.Millisecond {
			t.Errorf("close took %v", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("reader did not stop after close")
	}
	if _, err := r.ReadItem(); !errors.Is(err, io.EOF) {
		t.Errorf("expected permanent io.EOF, got %v", err)
	}
}

func TestFileReader_FormatErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad version", func(t *testing.T) {
		path := filepath.Join(dir, "bad-version.fl")
		hdr := codec.AppendFileHeader(nil)
		hdr[len(hdr)-1] = 99
		os.WriteFile(path, hdr, 0644)
		_, err := NewFileReader(path, false, 0).ReadItem()
		if !errors.Is(err, domain.ErrFormat) {
			t.Errorf("expected format error, got %v", err)
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		path := filepath.Join(dir, "truncated.fl")
		b := codec.AppendFileHeader(nil)
		enc := codec.NewEncoder(int64(len(b)))
		b, _ = enc.Append(b, text(1, "cut short"))
		os.WriteFile(path, b[:len(b)-2], 0644)

		r := NewFileReader(path, false, 0)
		_, err := r.ReadItem()
		var fe *domain.FormatError
		if !errors.As(err, &fe) || fe.Path != path {
			t.Fatalf("expected format error for %s, got %v", path, err)
		}
		if _, err2 := r.ReadItem(); !errors.Is(err2, domain.ErrFormat) {
			t.Errorf("expected sticky format error, got %v", err2)
		}
	})

	t.Run("truncated record waits in wait mode", func(t *testing.T) {
		path := filepath.Join(dir, "growing.fl")
		b := codec.AppendFileHeader(nil)
		enc := codec.NewEncoder(int64(len(b)))
		b, _ = enc.Append(b, text(1, "arrives in two parts"))
		os.WriteFile(path, b[:len(b)-2], 0644)

		r := NewFileReader(path, true, 5*time.Millisecond)
		defer r.Close()
		done := make(chan domain.Item, 1)
		go func() {
			item, _ := r.ReadItem()
			done <- item
		}()
		time.Sleep(20 * time.Millisecond)
		f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		f.Write(b[len(b)-2:])
		f.Close()
		select {
		case item := <-done:
			if item == nil {
				t.Error("expected the completed item")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("reader did not complete the record")
		}
	})
}
