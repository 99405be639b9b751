package exception

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	pkgerrors "github.com/pkg/errors"

	"github.com/V4T54L/fieldlog/internal/domain"
)

func hasFunction(frames []domain.StackFrame, name string) bool {
	for _, f := range frames {
		if strings.Contains(f.Function, name) {
			return true
		}
	}
	return false
}

func TestBuild_PathError(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "missing"))
	wrapped := fmt.Errorf("failed to load settings: %w", err)

	ex := NewRegistry().Build(wrapped, 0)

	if ex.Type != "*fmt.wrapError" {
		t.Errorf("expected generic wrapper type, got %q", ex.Type)
	}
	if !hasFunction(ex.StackFrames, "TestBuild_PathError") {
		t.Errorf("expected the caller in the stack, got %+v", ex.StackFrames)
	}
	if ex.StackFrames[0].Module != "github.com/V4T54L/fieldlog/internal/adapter/exception" {
		t.Errorf("unexpected module %q", ex.StackFrames[0].Module)
	}
	if len(ex.InnerExceptions) != 1 {
		t.Fatalf("expected one inner exception, got %d", len(ex.InnerExceptions))
	}
	inner := ex.InnerExceptions[0]
	if inner.Type != "*fs.PathError" || inner.Code != int32(syscall.ENOENT) {
		t.Errorf("unexpected path error %+v", inner)
	}
	if inner.Data == nil || !strings.Contains(*inner.Data, "op=open") {
		t.Errorf("expected op in data, got %v", inner.Data)
	}
	if len(inner.InnerExceptions) != 1 || inner.InnerExceptions[0].Type != "syscall.Errno" {
		t.Errorf("expected the errno as innermost exception, got %+v", inner.InnerExceptions)
	}
	if !Is(ex, "syscall.Errno") {
		t.Error("expected Is to search inner exceptions")
	}
}

func TestBuild_JoinedErrors(t *testing.T) {
	err := errors.Join(context.Canceled, errors.New("second"))
	ex := NewRegistry().Build(err, 0)

	if len(ex.InnerExceptions) != 2 {
		t.Fatalf("expected two inner exceptions, got %d", len(ex.InnerExceptions))
	}
	if ex.InnerExceptions[0].Type != "context.Canceled" {
		t.Errorf("expected context adapter, got %q", ex.InnerExceptions[0].Type)
	}
	if ex.InnerExceptions[1].Message != "second" {
		t.Errorf("unexpected message %q", ex.InnerExceptions[1].Message)
	}
}

func TestBuild_DepthIsBounded(t *testing.T) {
	err := errors.New("root")
	for i := 0; i < 3*MaxDepth; i++ {
		err = fmt.Errorf("level %d: %w", i, err)
	}
	ex := NewRegistry().Build(err, 0)

	depth := 1
	for cur := ex; len(cur.InnerExceptions) > 0; cur = cur.InnerExceptions[0] {
		depth++
	}
	if depth != MaxDepth {
		t.Errorf("expected depth %d, got %d", MaxDepth, depth)
	}
}

func TestBuild_RecordedStack(t *testing.T) {
	err := recordedFailure()
	ex := NewRegistry().Build(err, 0)

	if !hasFunction(ex.StackFrames, "recordedFailure") {
		t.Errorf("expected the recorded stack, got %+v", ex.StackFrames)
	}
}

func recordedFailure() error {
	return pkgerrors.New("recorded")
}

func TestRegister_TakesPrecedence(t *testing.T) {
	r := NewRegistry()
	r.Register(AdapterFunc(func(err error) (domain.Exception, bool) {
		if !errors.Is(err, context.Canceled) {
			return domain.Exception{}, false
		}
		return domain.Exception{Type: "cancelled", Message: "request abandoned", Code: 499}, true
	}))

	ex := r.Build(context.Canceled, 0)
	if ex.Type != "cancelled" || ex.Code != 499 {
		t.Errorf("expected the registered adapter to win, got %+v", ex)
	}
}

func TestBuild_ExitError(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	err := exec.Command("sh", "-c", "echo broken >&2; exit 3").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected an exit error, got %v", err)
	}
	exitErr.Stderr = []byte("broken\n")

	ex := NewRegistry().Build(exitErr, 0)
	if ex.Type != "*exec.ExitError" || ex.Code != 3 {
		t.Errorf("unexpected exception %+v", ex)
	}
	if ex.Data == nil || *ex.Data != "stderr=broken" {
		t.Errorf("unexpected data %v", ex.Data)
	}
}

func TestBuild_Nil(t *testing.T) {
	if ex := Build(nil, 0); ex.Type != "<nil>" {
		t.Errorf("unexpected exception for nil error: %+v", ex)
	}
}
