// Package fieldlog is the public entry point: an Engine that producers log
// through and readers that merge the written files back into one stream.
package fieldlog

import (
	"github.com/V4T54L/fieldlog/internal/domain"
	"github.com/V4T54L/fieldlog/internal/pkg/config"
	"github.com/V4T54L/fieldlog/internal/usecase"
)

type (
	Priority            = domain.Priority
	Item                = domain.Item
	Meta                = domain.Meta
	TextItem            = domain.TextItem
	DataItem            = domain.DataItem
	ExceptionItem       = domain.ExceptionItem
	ScopeItem           = domain.ScopeItem
	ScopeType           = domain.ScopeType
	Exception           = domain.Exception
	StackFrame          = domain.StackFrame
	EnvironmentSnapshot = domain.EnvironmentSnapshot
	FormatError         = domain.FormatError

	Config          = config.Config
	PipelineOptions = usecase.PipelineOptions
	GroupReader     = usecase.GroupReader
)

const (
	Trace      = domain.PriorityTrace
	Checkpoint = domain.PriorityCheckpoint
	Info       = domain.PriorityInfo
	Notice     = domain.PriorityNotice
	Warning    = domain.PriorityWarning
	Error      = domain.PriorityError
	Critical   = domain.PriorityCritical
)

var (
	// ErrShutdown is returned for items logged after Shutdown began.
	ErrShutdown = domain.ErrShutdown
	// ErrFormat matches every *FormatError.
	ErrFormat = domain.ErrFormat

	DefaultConfig = config.Default
	LoadConfig    = config.Load
	ParsePriority = domain.ParsePriority
)
