package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/V4T54L/fieldlog/internal/adapter/metrics"
	"github.com/V4T54L/fieldlog/internal/domain"
)

const (
	defaultBufferLimit   = 4096
	defaultIdleFlush     = 200 * time.Millisecond
	defaultThrottleAt    = 20
	defaultThrottleUntil = 40
	defaultThrottleSleep = time.Second
	defaultRetryInterval = time.Second
)

// PipelineOptions tunes the writer pipeline. Zero fields take the defaults.
type PipelineOptions struct {
	// BufferLimit is the estimated byte size at which the current buffer is
	// handed to the sender.
	BufferLimit int
	// IdleFlush hands the buffer over when no item was logged for this long.
	IdleFlush time.Duration
	// ThrottleAt counts buffers waiting for the sender, not items: each buffer
	// holds up to BufferLimit bytes of items. At ThrottleAt queued buffers Log
	// puts the caller to sleep once, and it keeps sleeping while ThrottleUntil
	// or more are queued.
	ThrottleAt      int
	ThrottleUntil   int
	ThrottleSleep   time.Duration
	DisableThrottle bool
	// RetryInterval is the delay before retrying batches kept in memory.
	RetryInterval time.Duration
	Now           func() time.Time
}

func (o *PipelineOptions) withDefaults() {
	if o.BufferLimit <= 0 {
		o.BufferLimit = defaultBufferLimit
	}
	if o.IdleFlush <= 0 {
		o.IdleFlush = defaultIdleFlush
	}
	if o.ThrottleAt <= 0 {
		o.ThrottleAt = defaultThrottleAt
	}
	if o.ThrottleUntil <= 0 {
		o.ThrottleUntil = defaultThrottleUntil
	}
	if o.ThrottleSleep <= 0 {
		o.ThrottleSleep = defaultThrottleSleep
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type batch struct {
	items []domain.Item
	// ack, when set, marks a Sync barrier.
	ack chan error
}

// Pipeline buffers items from any number of producers and writes them to
// per-priority files from a single background goroutine.
type Pipeline struct {
	store   domain.FileStore
	opts    PipelineOptions
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
	warn    rate.Sometimes

	bufMu   sync.Mutex
	buf     []domain.Item
	bufSize int
	timer   *time.Timer
	closed  bool
	scopes  openScopes

	queueMu sync.Mutex
	queue   []batch
	queued  int

	wake         chan struct{}
	stop         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	// Owned by the sender goroutine.
	writers map[domain.Priority]domain.FileWriter
	pending []domain.Item
	forcing bool
}

// NewPipeline starts the background sender.
func NewPipeline(store domain.FileStore, opts PipelineOptions, m *metrics.PipelineMetrics, logger *slog.Logger) *Pipeline {
	opts.withDefaults()
	if m == nil {
		m = metrics.NewPipelineMetrics(nil)
	}
	p := &Pipeline{
		store:   store,
		opts:    opts,
		logger:  logger.With("component", "writer_pipeline"),
		metrics: m,
		warn:    rate.Sometimes{First: 1, Interval: 10 * time.Second},
		scopes:  newOpenScopes(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		writers: make(map[domain.Priority]domain.FileWriter),
	}
	go p.run()
	return p
}

// Log appends an item to the current buffer. It fails with domain.ErrShutdown
// once shutdown has begun. When the send queue is long the caller is slowed down.
func (p *Pipeline) Log(item domain.Item) error {
	p.bufMu.Lock()
	if p.closed {
		p.bufMu.Unlock()
		return domain.ErrShutdown
	}
	p.scopes.track(item)
	p.buf = append(p.buf, item)
	p.bufSize += item.EstimatedSize()
	if p.bufSize > p.opts.BufferLimit {
		p.rotateLocked()
	} else {
		p.armTimerLocked()
	}
	p.bufMu.Unlock()

	p.throttle()
	return nil
}

// Flush hands the current buffer to the sender regardless of its size.
func (p *Pipeline) Flush() {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	p.rotateLocked()
}

// Sync flushes and waits until everything logged before the call has been
// handed to the files. It returns the error that kept items in memory, if any.
func (p *Pipeline) Sync(ctx context.Context) error {
	ack := make(chan error, 1)
	p.bufMu.Lock()
	if p.closed {
		p.bufMu.Unlock()
		return domain.ErrShutdown
	}
	p.rotateLocked()
	p.enqueue(batch{ack: ack})
	p.bufMu.Unlock()

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown rejects further items, drains every buffer, closes all files and
// stops the sender. It is safe to call more than once.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.bufMu.Lock()
		p.closed = true
		if p.timer != nil {
			p.timer.Stop()
		}
		p.rotateLocked()
		p.bufMu.Unlock()
		close(p.stop)
	})
	select {
	case <-p.done:
		return p.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenScopes returns the Enter scopes that were never left.
func (p *Pipeline) OpenScopes() []*domain.ScopeItem {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return p.scopes.entered()
}

func (p *Pipeline) armTimerLocked() {
	if p.timer == nil {
		p.timer = time.AfterFunc(p.opts.IdleFlush, p.Flush)
		return
	}
	p.timer.Reset(p.opts.IdleFlush)
}

// rotateLocked moves the current buffer to the send queue. It does nothing
// when the buffer is empty, so the timer and the size check may race freely.
func (p *Pipeline) rotateLocked() {
	if len(p.buf) == 0 {
		return
	}
	items := p.buf
	p.buf = nil
	p.bufSize = 0
	p.enqueue(batch{items: items})
}

func (p *Pipeline) enqueue(b batch) {
	p.queueMu.Lock()
	p.queue = append(p.queue, b)
	if len(b.items) > 0 {
		p.queued++
		p.metrics.BuffersEnqueued.Inc()
	}
	p.metrics.QueueDepth.Set(float64(p.queued))
	p.queueMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) queueLen() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return p.queued
}

func (p *Pipeline) takeQueue() []batch {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	q := p.queue
	p.queue = nil
	p.queued = 0
	p.metrics.QueueDepth.Set(0)
	return q
}

func (p *Pipeline) throttle() {
	if p.opts.DisableThrottle || p.queueLen() < p.opts.ThrottleAt {
		return
	}
	p.metrics.ThrottleSleeps.Inc()
	time.Sleep(p.opts.ThrottleSleep)
	for p.queueLen() >= p.opts.ThrottleUntil {
		p.metrics.ThrottleSleeps.Inc()
		time.Sleep(p.opts.ThrottleSleep)
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	var retry <-chan time.Time
	for {
		select {
		case <-p.wake:
		case <-retry:
		case <-p.stop:
			p.shutdownErr = p.drain()
			return
		}
		retry = nil
		p.send(p.takeQueue(), false)
		if len(p.pending) > 0 {
			retry = time.After(p.opts.RetryInterval)
		}
	}
}

func (p *Pipeline) send(batches []batch, final bool) error {
	var err error
	for _, b := range batches {
		p.pending = append(p.pending, b.items...)
		if b.ack != nil {
			err = p.writePending(final)
			p.flushWriters()
			b.ack <- err
		}
	}
	if len(p.pending) > 0 {
		err = p.writePending(final)
	}
	p.flushWriters()
	p.purge()
	return err
}

// writePending writes the items kept for the sender. When no file can be
// opened the remaining items stay in memory for the next attempt; a final
// attempt, which already tried a forced file, drops them instead.
func (p *Pipeline) writePending(final bool) error {
	items := p.pending
	for i, item := range items {
		err := p.writeItem(item)
		if err == nil {
			continue
		}
		p.metrics.SendFailures.Inc()
		if final {
			for _, dropped := range items[i:] {
				p.count(dropped, "dropped_shutdown")
			}
			p.pending = nil
			p.logger.Error("dropping log items at shutdown, no log file could be written", "count", len(items)-i, "error", err)
			return err
		}
		p.pending = append([]domain.Item(nil), items[i:]...)
		p.warn.Do(func() {
			p.logger.Warn("cannot write log items, keeping them in memory", "count", len(p.pending), "error", err)
		})
		return err
	}
	p.pending = nil
	return nil
}

func (p *Pipeline) writeItem(item domain.Item) error {
	prio := item.ItemMeta().Priority
	if !p.store.Persists(prio) {
		p.count(item, "dropped_priority")
		return nil
	}
	w, err := p.writerFor(prio)
	if err != nil {
		return err
	}
	n, err := w.WriteItem(item)
	if err != nil {
		if errors.Is(err, domain.ErrCapacity) {
			p.count(item, "dropped_size")
			p.logger.Warn("dropping log item too large to encode", "priority", prio, "error", err)
			return nil
		}
		p.closeWriter(prio)
		return &domain.IOTransientError{Op: "write " + prio.String() + " log file", Err: err}
	}
	p.count(item, "written")
	p.metrics.BytesWritten.Add(float64(n))
	if s, ok := item.(*domain.ScopeItem); ok {
		s.MarkWritten()
	}
	if p.store.Expired(w, p.opts.Now()) {
		p.closeWriter(prio)
	}
	return nil
}

// writerFor returns the cached writer for prio or opens one. A file created
// empty first receives the open scopes as repeated records.
func (p *Pipeline) writerFor(prio domain.Priority) (domain.FileWriter, error) {
	now := p.opts.Now()
	if w, ok := p.writers[prio]; ok {
		if !p.store.Expired(w, now) {
			return w, nil
		}
		p.closeWriter(prio)
	}

	w, err := p.store.OpenWriter(prio, now)
	if err != nil && p.forcing {
		p.logger.Warn("no log location usable at shutdown, forcing the last fallback", "priority", prio, "error", err)
		w, err = p.store.ForceWriter(prio, now)
	}
	if err != nil {
		return nil, err
	}
	if w.Fresh() {
		p.metrics.FilesCreated.WithLabelValues(prio.String()).Inc()
		p.bufMu.Lock()
		open := p.scopes.replay()
		p.bufMu.Unlock()
		for _, s := range open {
			if _, err := w.WriteRepeated(s); err != nil {
				w.Close()
				return nil, &domain.IOTransientError{Op: "repeat open scopes", Err: err}
			}
		}
	}
	p.writers[prio] = w
	return w, nil
}

func (p *Pipeline) closeWriter(prio domain.Priority) {
	w, ok := p.writers[prio]
	if !ok {
		return
	}
	delete(p.writers, prio)
	if err := w.Close(); err != nil {
		p.logger.Warn("failed to close log file", "path", w.Path(), "error", err)
	}
}

func (p *Pipeline) flushWriters() {
	for prio, w := range p.writers {
		if err := w.Flush(); err != nil {
			p.logger.Warn("failed to flush log file, closing it", "path", w.Path(), "error", err)
			p.closeWriter(prio)
		}
	}
}

func (p *Pipeline) purge() {
	open := make([]string, 0, len(p.writers))
	for _, w := range p.writers {
		open = append(open, w.Path())
	}
	res, err := p.store.Purge(open, p.opts.Now())
	p.metrics.FilesPurged.WithLabelValues("expired").Add(float64(res.Expired))
	p.metrics.FilesPurged.WithLabelValues("total_size").Add(float64(res.OverCap))
	if err != nil {
		// Locked files are retried on the next pass.
		p.logger.Debug("purge incomplete", "error", err)
	}
}

// drain writes whatever is left and closes every file. Files that cannot be
// opened normally are forced into the last fallback location.
func (p *Pipeline) drain() error {
	p.forcing = true
	sendErr := p.send(p.takeQueue(), true)

	var g errgroup.Group
	for prio, w := range p.writers {
		g.Go(func() error {
			if err := w.Close(); err != nil {
				p.logger.Warn("failed to close log file", "path", w.Path(), "priority", prio, "error", err)
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	clear(p.writers)
	return errors.Join(sendErr, err)
}

func (p *Pipeline) count(item domain.Item, status string) {
	p.metrics.ItemsTotal.WithLabelValues(item.ItemMeta().Priority.String(), status).Inc()
}
