package fieldlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/fieldlog/internal/adapter/environment"
	"github.com/V4T54L/fieldlog/internal/adapter/exception"
	"github.com/V4T54L/fieldlog/internal/adapter/metrics"
	"github.com/V4T54L/fieldlog/internal/adapter/pii"
	"github.com/V4T54L/fieldlog/internal/adapter/repository/logfile"
	"github.com/V4T54L/fieldlog/internal/domain"
	"github.com/V4T54L/fieldlog/internal/pkg/config"
	"github.com/V4T54L/fieldlog/internal/pkg/logger"
	"github.com/V4T54L/fieldlog/internal/usecase"
)

// Options configures an Engine. Every field is optional.
type Options struct {
	// Config is loaded from the .flconfig file of ExePath and the
	// environment when nil.
	Config *Config
	// ExePath names the application. It defaults to the running executable.
	ExePath string
	// Logger receives the engine's own diagnostics. The default is built
	// from the configured level and diagnostic file.
	Logger *slog.Logger
	// Registerer receives the pipeline metrics; nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Exceptions turns errors into exceptions; defaults to exception.Default.
	Exceptions *exception.Registry
	// Presenter is told about errors passed to ShowError.
	Presenter ErrorPresenter
	Pipeline  PipelineOptions
}

// Engine is a log session. It stamps items with a session id, a counter and
// the calling thread and hands them to the writer pipeline.
type Engine struct {
	session    uuid.UUID
	store      *logfile.Store
	pipeline   *usecase.Pipeline
	logger     *slog.Logger
	diagCloser io.Closer
	exceptions *exception.Registry
	presenter  ErrorPresenter
	redactor   *pii.Redactor
	now        func() time.Time

	counter atomic.Uint32
	threads atomic.Int32

	levelsMu sync.Mutex
	levels   map[int32]int32

	shutdownOnce sync.Once
	shutdownErr  error
}

// New starts a log session and writes its LogStart scope.
func New(opts Options) (*Engine, error) {
	exe := opts.ExePath
	if exe == "" {
		exe, _ = os.Executable()
	}

	cfg := opts.Config
	var cfgErr error
	if cfg == nil {
		var err error
		cfg, err = config.Load(exe)
		if err != nil && !errors.Is(err, config.ErrMalformed) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfgErr = err
	}

	e := &Engine{
		session:    uuid.New(),
		logger:     opts.Logger,
		exceptions: opts.Exceptions,
		presenter:  opts.Presenter,
		now:        opts.Pipeline.Now,
		levels:     make(map[int32]int32),
	}
	if e.logger == nil {
		if cfg.DiagFile != "" {
			e.logger, e.diagCloser = logger.NewWithFile(cfg.LogLevel, cfg.DiagFile)
		} else {
			e.logger = logger.New(cfg.LogLevel)
		}
	}
	if cfgErr != nil {
		e.logger.Warn("ignoring malformed configuration file, using defaults", "error", cfgErr)
	}
	if e.exceptions == nil {
		e.exceptions = exception.Default
	}
	if e.presenter == nil {
		e.presenter = logPresenter{logger: e.logger}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if len(cfg.Redact) > 0 {
		e.redactor = pii.NewRedactor(cfg.Redact, e.logger)
	}
	e.threads.Store(1)

	store, err := logfile.NewStore(logfile.StoreOptions{
		BasePaths:    cfg.BasePaths(exe),
		MaxFileSize:  int64(cfg.MaxFileSize),
		MaxTotalSize: int64(cfg.MaxTotalSize),
		Keep:         cfg.Keep(),
	}, e.logger)
	if err != nil {
		e.closeDiag()
		return nil, fmt.Errorf("failed to create file store: %w", err)
	}
	e.store = store
	e.pipeline = usecase.NewPipeline(store, opts.Pipeline, metrics.NewPipelineMetrics(opts.Registerer), e.logger)

	name := strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
	start := &domain.ScopeItem{
		Meta:        e.meta(context.Background(), domain.PriorityInfo),
		Type:        domain.ScopeLogStart,
		Name:        name,
		Environment: environment.Capture(),
	}
	if err := e.pipeline.Log(start); err != nil {
		return nil, err
	}
	e.logger.Info("log session started", "session", e.session, "base_path", store.BasePath())
	return e, nil
}

// SessionID identifies this run in every item it logs.
func (e *Engine) SessionID() uuid.UUID { return e.session }

// BasePath is the base path the engine currently writes to.
func (e *Engine) BasePath() string { return e.store.BasePath() }

func (e *Engine) meta(ctx context.Context, prio Priority) domain.Meta {
	return domain.Meta{
		EventCounter: e.counter.Add(1),
		Time:         e.now().UTC(),
		Priority:     prio,
		SessionID:    e.session,
		ThreadID:     ThreadID(ctx),
	}
}

// Text logs a message. An empty details argument is stored as null.
func (e *Engine) Text(ctx context.Context, prio Priority, text string, details ...string) error {
	item := &domain.TextItem{Meta: e.meta(ctx, prio), Text: text}
	if d := strings.Join(details, "\n"); d != "" {
		item.Details = &d
	}
	return e.pipeline.Log(item)
}

// Data logs a named value.
func (e *Engine) Data(ctx context.Context, prio Priority, name, value string) error {
	item := &domain.DataItem{Meta: e.meta(ctx, prio), Name: name, Value: &value}
	if e.redactor != nil {
		// A value that fails to parse is logged unredacted; the redactor warns.
		_, _ = e.redactor.Redact(item)
	}
	return e.pipeline.Log(item)
}

// Exception logs err with its wrapped causes, the caller's stack and the
// current environment. info describes what was being done; empty is stored
// as null.
func (e *Engine) Exception(ctx context.Context, prio Priority, err error, info string) error {
	return e.pipeline.Log(e.exceptionItem(ctx, prio, err, info, 1))
}

func (e *Engine) exceptionItem(ctx context.Context, prio Priority, err error, info string, skip int) *domain.ExceptionItem {
	item := &domain.ExceptionItem{
		Meta:        e.meta(ctx, prio),
		Exception:   e.exceptions.Build(err, skip+1),
		Environment: environment.Capture(),
	}
	if info != "" {
		item.Context = &info
	}
	return item
}

// ShowError logs err at Error, or at Critical when the application cannot
// continue, and passes the logged item to the error presenter.
func (e *Engine) ShowError(ctx context.Context, err error, continuable bool) error {
	prio := domain.PriorityCritical
	if continuable {
		prio = domain.PriorityError
	}
	item := e.exceptionItem(ctx, prio, err, "", 1)
	logErr := e.pipeline.Log(item)
	e.presenter.PresentError(ctx, item, continuable)
	return logErr
}

// Flush hands buffered items to the writer without waiting.
func (e *Engine) Flush() { e.pipeline.Flush() }

// Sync waits until everything logged so far has been written.
func (e *Engine) Sync(ctx context.Context) error { return e.pipeline.Sync(ctx) }

// Shutdown writes the LogShutdown scope, drains the pipeline and closes every
// file. Scopes that were entered and never left are reported as a warning.
// Later calls return the first result.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		if open := e.pipeline.OpenScopes(); len(open) > 0 {
			names := make([]string, len(open))
			for i, s := range open {
				names[i] = s.Name
			}
			e.logger.Warn("scopes still open at shutdown", "count", len(open), "names", names)
		}
		stop := &domain.ScopeItem{Meta: e.meta(context.Background(), domain.PriorityInfo), Type: domain.ScopeLogShutdown}
		logErr := e.pipeline.Log(stop)
		e.shutdownErr = errors.Join(logErr, e.pipeline.Shutdown(ctx))
		e.logger.Info("log session ended", "session", e.session)
		e.closeDiag()
	})
	return e.shutdownErr
}

func (e *Engine) closeDiag() {
	if e.diagCloser != nil {
		_ = e.diagCloser.Close()
	}
}
