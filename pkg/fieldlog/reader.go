package fieldlog

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/fieldlog/internal/adapter/metrics"
	"github.com/V4T54L/fieldlog/internal/adapter/repository/logfile"
	"github.com/V4T54L/fieldlog/internal/usecase"
)

// ReadOptions configures OpenGroup.
type ReadOptions struct {
	// Follow keeps reading as the files grow and new files appear.
	Follow bool
	// OnFormatError is told about files abandoned as undecodable.
	OnFormatError func(path string, err error)
	// PollInterval is how often a following reader checks for new data.
	PollInterval time.Duration
	Registerer   prometheus.Registerer
	Logger       *slog.Logger
}

// OpenGroup opens every file of the log group at basePath and merges them into
// one time-ordered stream.
func OpenGroup(basePath string, opts ReadOptions) (*GroupReader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = logfile.DefaultPollInterval
	}
	catalog := logfile.NewCatalog(basePath, opts.PollInterval, opts.Logger)
	return usecase.NewGroupReader(catalog, usecase.GroupReaderOptions{
		Wait:          opts.Follow,
		OnFormatError: opts.OnFormatError,
		Metrics:       metrics.NewReaderMetrics(opts.Registerer),
	}, opts.Logger)
}

// FileReader reads the items of a single file.
type FileReader interface {
	ReadItem() (Item, error)
	Close() error
}

// OpenFile reads one log file from start to end.
func OpenFile(path string) FileReader {
	return logfile.NewFileReader(path, false, logfile.DefaultPollInterval)
}
