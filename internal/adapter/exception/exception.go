// Package exception turns Go errors into structured domain.Exception values.
//
// A Registry holds Adapters for the error kinds it knows. Errors no adapter
// claims are described generically from their dynamic type and message.
// Wrapped errors become inner exceptions, following both Unwrap() error and
// Unwrap() []error.
package exception

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/V4T54L/fieldlog/internal/domain"
)

const (
	// MaxDepth bounds how many levels of wrapped errors are kept.
	MaxDepth  = 16
	maxFrames = 64
)

// Adapter describes one kind of error. It reports false for errors it does
// not handle. Adapters fill Type, Message, Code and Data; the registry adds
// stack frames and inner exceptions.
type Adapter interface {
	Adapt(err error) (domain.Exception, bool)
}

// AdapterFunc lets a plain function serve as an Adapter.
type AdapterFunc func(err error) (domain.Exception, bool)

func (f AdapterFunc) Adapt(err error) (domain.Exception, bool) { return f(err) }

// Registry selects the adapter for an error.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry returns a registry with the built-in adapters.
func NewRegistry() *Registry {
	return &Registry{adapters: builtins()}
}

// Register adds an adapter that takes precedence over those already present.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append([]Adapter{a}, r.adapters...)
}

// Build describes err. The stack frames are the ones recorded by the error
// itself when it carries a stack, otherwise the caller's stack with skip
// frames above Build omitted.
func (r *Registry) Build(err error, skip int) domain.Exception {
	if err == nil {
		return domain.Exception{Type: "<nil>"}
	}
	ex := r.build(err, 0)
	if ex.StackFrames == nil {
		ex.StackFrames = callers(skip + 2)
	}
	return ex
}

func (r *Registry) build(err error, depth int) domain.Exception {
	ex, ok := r.adapt(err)
	if !ok {
		ex = domain.Exception{Type: fmt.Sprintf("%T", err), Message: err.Error()}
	}
	if st, ok := err.(interface{ StackTrace() pkgerrors.StackTrace }); ok {
		ex.StackFrames = stackFrames(st.StackTrace())
	}
	if depth+1 >= MaxDepth {
		return ex
	}
	for _, inner := range unwrap(err) {
		if inner == nil {
			continue
		}
		ex.InnerExceptions = append(ex.InnerExceptions, r.build(inner, depth+1))
	}
	return ex
}

func (r *Registry) adapt(err error) (domain.Exception, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if ex, ok := a.Adapt(err); ok {
			return ex, true
		}
	}
	return domain.Exception{}, false
}

func unwrap(err error) []error {
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		return u.Unwrap()
	case interface{ Unwrap() error }:
		return []error{u.Unwrap()}
	}
	return nil
}

func callers(skip int) []domain.StackFrame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []domain.StackFrame
	for {
		f, more := frames.Next()
		out = append(out, frame(f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return out
}

func stackFrames(st pkgerrors.StackTrace) []domain.StackFrame {
	out := make([]domain.StackFrame, 0, min(len(st), maxFrames))
	for _, f := range st[:min(len(st), maxFrames)] {
		pc := uintptr(f) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			out = append(out, domain.StackFrame{Function: "unknown"})
			continue
		}
		file, line := fn.FileLine(pc)
		out = append(out, frame(fn.Name(), file, line))
	}
	return out
}

// frame splits a qualified function name such as
// github.com/a/b.(*T).Method into its package path and local name.
func frame(qualified, file string, line int) domain.StackFrame {
	module, function := "", qualified
	slash := strings.LastIndex(qualified, "/")
	if dot := strings.Index(qualified[slash+1:], "."); dot >= 0 {
		module = qualified[:slash+1+dot]
		function = qualified[slash+1+dot+1:]
	}
	return domain.StackFrame{Module: module, Function: function, File: file, Line: int32(line)}
}

// Default is the registry used by the package-level Build.
var Default = NewRegistry()

// Build describes err with the default registry.
func Build(err error, skip int) domain.Exception {
	return Default.Build(err, skip+1)
}

// Is reports whether the exception or any inner exception has the given type.
func Is(ex domain.Exception, typ string) bool {
	if ex.Type == typ {
		return true
	}
	for _, inner := range ex.InnerExceptions {
		if Is(inner, typ) {
			return true
		}
	}
	return false
}
