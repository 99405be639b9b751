package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldlog"

// PipelineMetrics holds the Prometheus metrics of the writer pipeline.
type PipelineMetrics struct {
	ItemsTotal      *prometheus.CounterVec
	BytesWritten    prometheus.Counter
	BuffersEnqueued prometheus.Counter
	QueueDepth      prometheus.Gauge
	FilesCreated    *prometheus.CounterVec
	FilesPurged     *prometheus.CounterVec
	ThrottleSleeps  prometheus.Counter
	SendFailures    prometheus.Counter
}

// NewPipelineMetrics registers the pipeline metrics with reg. A nil reg
// creates unregistered collectors, which is what tests and embedded engines
// without a metrics endpoint use.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	f := promauto.With(reg)
	return &PipelineMetrics{
		ItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "items_total",
			Help:      "Total number of log items handled by the writer, by priority and status.",
		}, []string{"priority", "status"}), // status: written, dropped_size, dropped_priority, dropped_shutdown
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "bytes_total",
			Help:      "Total number of bytes appended to log files.",
		}),
		BuffersEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "buffers_enqueued_total",
			Help:      "Total number of buffers handed to the background sender.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "queue_depth",
			Help:      "Number of buffers waiting for the background sender.",
		}),
		FilesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "files_created_total",
			Help:      "Total number of log files created, by priority.",
		}, []string{"priority"}),
		FilesPurged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "files_purged_total",
			Help:      "Total number of log files deleted by the purge pass, by reason.",
		}, []string{"reason"}), // reason: expired, total_size
		ThrottleSleeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "throttle_sleeps_total",
			Help:      "Total number of times a producer was put to sleep because the send queue was long.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "send_failures_total",
			Help:      "Total number of batches kept in memory because no log file could be opened.",
		}),
	}
}

// ReaderMetrics holds the Prometheus metrics of the group reader.
type ReaderMetrics struct {
	ItemsRead        *prometheus.CounterVec
	FilesOpened      *prometheus.CounterVec
	FormatErrors     *prometheus.CounterVec
	ScopesSuppressed prometheus.Counter
}

// NewReaderMetrics registers the reader metrics with reg; nil leaves them unregistered.
func NewReaderMetrics(reg prometheus.Registerer) *ReaderMetrics {
	f := promauto.With(reg)
	return &ReaderMetrics{
		ItemsRead: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "items_total",
			Help:      "Total number of items yielded by the group reader, by priority.",
		}, []string{"priority"}),
		FilesOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "files_total",
			Help:      "Total number of log files added to the reader chains, by priority.",
		}, []string{"priority"}),
		FormatErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "format_errors_total",
			Help:      "Total number of files abandoned because of a format error, by priority.",
		}, []string{"priority"}),
		ScopesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "repeated_scopes_suppressed_total",
			Help:      "Total number of repeated scope records skipped because the original was already read.",
		}),
	}
}
