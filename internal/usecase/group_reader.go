package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/fieldlog/internal/adapter/metrics"
	"github.com/V4T54L/fieldlog/internal/domain"
)

const seenScopeLimit = 1 << 16

// GroupReaderOptions configures a GroupReader.
type GroupReaderOptions struct {
	// Wait keeps the reader at the live end of the files instead of stopping
	// at the end of the data.
	Wait bool
	// OnFormatError is told about every file abandoned because it could not
	// be decoded. Reading continues with the other files.
	OnFormatError func(path string, err error)
	Metrics       *metrics.ReaderMetrics
}

type advanceResult struct {
	chain *chain
	item  domain.Item
	err   error
}

type scopeKey struct {
	session uuid.UUID
	counter uint32
	time    int64
}

// GroupReader merges the files of every priority of a log group into one
// stream ordered by time. Each priority is advanced by its own goroutine; the
// merge only runs inside ReadLogItem.
type GroupReader struct {
	catalog domain.FileCatalog
	opts    GroupReaderOptions
	logger  *slog.Logger
	metrics *metrics.ReaderMetrics

	chains [domain.PriorityCount]*chain

	// Merge state, guarded by readMu.
	readMu   sync.Mutex
	heads    [domain.PriorityCount]domain.Item
	inflight [domain.PriorityCount]bool
	retired  [domain.PriorityCount]bool
	seen     map[scopeKey]struct{}
	seenFIFO []scopeKey

	results  chan advanceResult
	wake     chan struct{}
	newFile  chan struct{}
	caughtUp chan struct{}
	caught   bool

	mu          sync.Mutex
	closed      bool
	closing     chan struct{}
	wg          sync.WaitGroup
	cancelWatch context.CancelFunc
}

// NewGroupReader scans the catalog and, in wait mode, starts watching it for
// new files.
func NewGroupReader(catalog domain.FileCatalog, opts GroupReaderOptions, logger *slog.Logger) (*GroupReader, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewReaderMetrics(nil)
	}
	g := &GroupReader{
		catalog:  catalog,
		opts:     opts,
		logger:   logger.With("component", "group_reader"),
		metrics:  opts.Metrics,
		seen:     make(map[scopeKey]struct{}),
		results:  make(chan advanceResult, domain.PriorityCount),
		wake:     make(chan struct{}, 1),
		newFile:  make(chan struct{}, 1),
		caughtUp: make(chan struct{}),
		closing:  make(chan struct{}),
	}
	for _, p := range domain.Priorities() {
		g.chains[p] = newChain(p, opts.Wait)
	}

	files, err := catalog.Scan()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		g.addFile(f)
	}
	g.logger.Debug("opened log group", "files", len(files), "wait", opts.Wait)

	if opts.Wait {
		ctx, cancel := context.WithCancel(context.Background())
		g.cancelWatch = cancel
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if err := catalog.Watch(ctx, g.addFile); err != nil {
				g.logger.Warn("file watch stopped", "error", err)
			}
		}()
	}
	return g, nil
}

func (g *GroupReader) addFile(f domain.LogFile) {
	if !f.Priority.Valid() {
		return
	}
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}
	c := g.chains[f.Priority]
	r := g.catalog.OpenReader(f, g.opts.Wait)
	r.SetWaitHook(func() { g.idle(c) })
	if !c.add(f.Path, r) {
		r.Close()
		return
	}
	g.metrics.FilesOpened.WithLabelValues(f.Priority.String()).Inc()
	select {
	case g.newFile <- struct{}{}:
	default:
	}
}

func (g *GroupReader) idle(c *chain) {
	c.markIdle()
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// CaughtUp is closed once every priority has been read to its live end at
// least once.
func (g *GroupReader) CaughtUp() <-chan struct{} { return g.caughtUp }

// ReadLogItem returns the next item in time order. It returns io.EOF when all
// files are exhausted or the reader was closed. In wait mode it blocks until
// an item is available. Calls must not overlap.
func (g *GroupReader) ReadLogItem(ctx context.Context) (domain.Item, error) {
	g.readMu.Lock()
	defer g.readMu.Unlock()

	for {
		select {
		case <-g.closing:
			return nil, io.EOF
		default:
		}
		if !g.launch() {
			return nil, io.EOF
		}
		g.checkCaughtUp()

		if item, ok := g.pick(); ok {
			return item, nil
		}
		if g.activeCount() == 0 {
			g.checkCaughtUp()
			return nil, io.EOF
		}

		select {
		case res := <-g.results:
			g.accept(res)
		case <-g.wake:
		case <-g.newFile:
		case <-g.closing:
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// All ranges over the remaining items. The sequence ends at io.EOF; any other
// error is yielded once and ends it.
func (g *GroupReader) All(ctx context.Context) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		for {
			item, err := g.ReadLogItem(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// launch starts an advance for every active priority without a head. It
// reports false once the reader is closed.
func (g *GroupReader) launch() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	for p, c := range g.chains {
		if g.retired[p] || g.inflight[p] || g.heads[p] != nil {
			continue
		}
		g.inflight[p] = true
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			item, err := c.advance(g.closing, func() { g.idle(c) })
			g.results <- advanceResult{chain: c, item: item, err: err}
		}()
	}
	return true
}

func (g *GroupReader) accept(res advanceResult) {
	p := res.chain.prio
	g.inflight[p] = false
	switch {
	case res.err == nil:
		g.heads[p] = res.item
	case errors.Is(res.err, io.EOF):
		g.retired[p] = true
		res.chain.reached.Store(true)
	default:
		path := ""
		var fe *domain.FormatError
		if errors.As(res.err, &fe) {
			path = fe.Path
		}
		g.metrics.FormatErrors.WithLabelValues(p.String()).Inc()
		g.logger.Warn("abandoning unreadable log file", "priority", p, "path", path, "error", res.err)
		if g.opts.OnFormatError != nil {
			g.opts.OnFormatError(path, res.err)
		}
	}
}

// pick returns the smallest head once no active priority could still produce
// an earlier item: every active priority must have a head or be idle at its
// live end. Ties go to the lower priority.
func (g *GroupReader) pick() (domain.Item, bool) {
	best := -1
	for p, c := range g.chains {
		if g.retired[p] {
			continue
		}
		head := g.heads[p]
		if head == nil {
			if g.inflight[p] && c.idle.Load() {
				continue
			}
			return nil, false
		}
		if best < 0 || before(head, g.heads[best]) {
			best = p
		}
	}
	if best < 0 {
		return nil, false
	}
	item := g.heads[best]
	g.heads[best] = nil
	if g.suppress(item) {
		g.metrics.ScopesSuppressed.Inc()
		return g.pickAgain()
	}
	g.metrics.ItemsRead.WithLabelValues(domain.Priority(best).String()).Inc()
	return item, true
}

// before orders two heads. On a tie an original record goes ahead of a
// repeated copy so that the copy is the one suppressed.
func before(a, b domain.Item) bool {
	if c := domain.Compare(a, b); c != 0 {
		return c < 0
	}
	return isRepeated(b) && !isRepeated(a)
}

func isRepeated(item domain.Item) bool {
	s, ok := item.(*domain.ScopeItem)
	return ok && s.IsRepeated
}

// pickAgain relaunches the advance whose head was suppressed before picking.
func (g *GroupReader) pickAgain() (domain.Item, bool) {
	if !g.launch() {
		return nil, false
	}
	return g.pick()
}

// suppress reports whether item is a repeated scope whose original was
// already yielded. Scopes are remembered by identity; the memory is bounded.
func (g *GroupReader) suppress(item domain.Item) bool {
	s, ok := item.(*domain.ScopeItem)
	if !ok {
		return false
	}
	key := scopeKey{session: s.SessionID, counter: s.EventCounter, time: s.Time.UnixNano()}
	if _, dup := g.seen[key]; dup {
		return true
	}
	g.seen[key] = struct{}{}
	g.seenFIFO = append(g.seenFIFO, key)
	if len(g.seenFIFO) > seenScopeLimit {
		delete(g.seen, g.seenFIFO[0])
		g.seenFIFO = g.seenFIFO[1:]
	}
	return false
}

func (g *GroupReader) activeCount() int {
	n := 0
	for p := range g.chains {
		if !g.retired[p] {
			n++
		}
	}
	return n
}

func (g *GroupReader) checkCaughtUp() {
	if g.caught {
		return
	}
	for p, c := range g.chains {
		if !g.retired[p] && !c.reached.Load() {
			return
		}
	}
	g.caught = true
	close(g.caughtUp)
	g.logger.Debug("caught up with live log files")
}

// Close stops the reader: pending and future ReadLogItem calls return io.EOF.
// It waits for the background goroutines and releases every file handle.
func (g *GroupReader) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.closing)
	g.mu.Unlock()

	if g.cancelWatch != nil {
		g.cancelWatch()
	}
	for _, c := range g.chains {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		g.logger.Warn("timed out waiting for reader goroutines")
	}
	// Readers linked by the watcher while closing.
	for _, c := range g.chains {
		c.close()
	}
	return nil
}
