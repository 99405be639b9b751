package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the concrete type behind an Item.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindData
	KindException
	KindScope
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindData:
		return "data"
	case KindException:
		return "exception"
	case KindScope:
		return "scope"
	default:
		return "unknown"
	}
}

// Meta holds the fields shared by every log item.
type Meta struct {
	EventCounter uint32
	Time         time.Time
	Priority     Priority
	SessionID    uuid.UUID
	ThreadID     int32
}

// ItemMeta gives access to the shared fields of any item embedding Meta.
func (m *Meta) ItemMeta() *Meta { return m }

// Item is one logged event. Items are immutable once handed to the writer.
type Item interface {
	ItemMeta() *Meta
	Kind() Kind
	// EstimatedSize approximates the encoded size in bytes. It drives buffer rotation.
	EstimatedSize() int
}

const metaEstimate = 48

// TextItem is a plain message with optional details.
type TextItem struct {
	Meta
	Text    string
	Details *string
}

func (*TextItem) Kind() Kind { return KindText }

func (t *TextItem) EstimatedSize() int {
	return metaEstimate + len(t.Text) + optLen(t.Details) + 16
}

// DataItem is a named value.
type DataItem struct {
	Meta
	Name  string
	Value *string
}

func (*DataItem) Kind() Kind { return KindData }

func (d *DataItem) EstimatedSize() int {
	return metaEstimate + len(d.Name) + optLen(d.Value) + 16
}

// StackFrame is one frame of an exception's stack trace.
type StackFrame struct {
	Module   string
	Function string
	File     string
	Line     int32
	Column   int32
}

// Exception is the structured form of an error, including its inner causes.
type Exception struct {
	Type            string
	Message         string
	Code            int32
	Data            *string
	StackFrames     []StackFrame
	InnerExceptions []Exception
}

func (e *Exception) estimatedSize() int {
	n := 32 + len(e.Type) + len(e.Message) + optLen(e.Data)
	for _, f := range e.StackFrames {
		n += 24 + len(f.Module) + len(f.Function) + len(f.File)
	}
	for i := range e.InnerExceptions {
		n += e.InnerExceptions[i].estimatedSize()
	}
	return n
}

// ExceptionItem records an error together with the environment at the time it happened.
type ExceptionItem struct {
	Meta
	Exception   Exception
	Context     *string
	Environment *EnvironmentSnapshot
}

func (*ExceptionItem) Kind() Kind { return KindException }

func (e *ExceptionItem) EstimatedSize() int {
	n := metaEstimate + e.Exception.estimatedSize() + optLen(e.Context) + 8
	if e.Environment != nil {
		n += e.Environment.estimatedSize()
	}
	return n
}

// ScopeType tells what a ScopeItem marks.
type ScopeType uint8

const (
	ScopeEnter ScopeType = iota
	ScopeLeave
	ScopeThreadStart
	ScopeThreadEnd
	ScopeLogStart
	ScopeLogShutdown
)

var scopeTypeNames = [...]string{"enter", "leave", "thread-start", "thread-end", "log-start", "log-shutdown"}

func (s ScopeType) Valid() bool { return int(s) < len(scopeTypeNames) }

func (s ScopeType) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return scopeTypeNames[s]
}

// ScopeItem brackets a region of execution: a function, a thread's life or the
// whole process run.
type ScopeItem struct {
	Meta
	Type        ScopeType
	Level       int32
	Name        string
	Environment *EnvironmentSnapshot
	// IsRepeated is set on copies of still-open scopes written at the start of
	// a new file.
	IsRepeated bool

	written atomic.Bool
}

func (*ScopeItem) Kind() Kind { return KindScope }

func (s *ScopeItem) EstimatedSize() int {
	n := metaEstimate + len(s.Name) + 16
	if s.Environment != nil {
		n += s.Environment.estimatedSize()
	}
	return n
}

// MarkWritten records that the original record of this scope reached a file.
func (s *ScopeItem) MarkWritten() { s.written.Store(true) }

// WasWritten reports whether the original record of this scope reached a file.
// Only written scopes are repeated into new files.
func (s *ScopeItem) WasWritten() bool { return s.written.Load() }

// Repeat returns a copy of the scope flagged as repeated.
func (s *ScopeItem) Repeat() *ScopeItem {
	return &ScopeItem{
		Meta:        s.Meta,
		Type:        s.Type,
		Level:       s.Level,
		Name:        s.Name,
		Environment: s.Environment,
		IsRepeated:  true,
	}
}

// EnvironmentSnapshot is a point-in-time capture of process and host facts.
// It is attached to LogStart scopes and to exceptions only.
type EnvironmentSnapshot struct {
	OS          string
	Arch        string
	Runtime     string
	Hostname    string
	UserName    string
	Culture     string
	TimeZone    string
	WorkingDir  string
	Executable  string
	CommandLine string
	ProcessID   int32
	CPUCount    int32
	StartTime   time.Time
	HeapAlloc   uint64
	SysMemory   uint64
}

func (e *EnvironmentSnapshot) estimatedSize() int {
	return 64 + len(e.OS) + len(e.Arch) + len(e.Runtime) + len(e.Hostname) + len(e.UserName) +
		len(e.Culture) + len(e.TimeZone) + len(e.WorkingDir) + len(e.Executable) + len(e.CommandLine)
}

func optLen(s *string) int {
	if s == nil {
		return 0
	}
	return len(*s)
}

// StringPtr is a helper for the optional string fields.
func StringPtr(s string) *string { return &s }
