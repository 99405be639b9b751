package exception

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/V4T54L/fieldlog/internal/domain"
)

func builtins() []Adapter {
	return []Adapter{
		AdapterFunc(pathError),
		AdapterFunc(linkError),
		AdapterFunc(syscallError),
		AdapterFunc(errnoError),
		AdapterFunc(exitError),
		AdapterFunc(netOpError),
		AdapterFunc(contextError),
	}
}

// data renders key=value pairs, skipping empty values.
func data(kv ...string) *string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	if b.Len() == 0 {
		return nil
	}
	return domain.StringPtr(b.String())
}

func errnoCode(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return 0
}

func pathError(err error) (domain.Exception, bool) {
	e, ok := err.(*fs.PathError)
	if !ok {
		return domain.Exception{}, false
	}
	return domain.Exception{
		Type:    "*fs.PathError",
		Message: err.Error(),
		Code:    errnoCode(e.Err),
		Data:    data("op", e.Op, "path", e.Path),
	}, true
}

func linkError(err error) (domain.Exception, bool) {
	e, ok := err.(*os.LinkError)
	if !ok {
		return domain.Exception{}, false
	}
	return domain.Exception{
		Type:    "*os.LinkError",
		Message: err.Error(),
		Code:    errnoCode(e.Err),
		Data:    data("op", e.Op, "old", e.Old, "new", e.New),
	}, true
}

func syscallError(err error) (domain.Exception, bool) {
	e, ok := err.(*os.SyscallError)
	if !ok {
		return domain.Exception{}, false
	}
	return domain.Exception{
		Type:    "*os.SyscallError",
		Message: err.Error(),
		Code:    errnoCode(e.Err),
		Data:    data("syscall", e.Syscall),
	}, true
}

func errnoError(err error) (domain.Exception, bool) {
	e, ok := err.(syscall.Errno)
	if !ok {
		return domain.Exception{}, false
	}
	return domain.Exception{Type: "syscall.Errno", Message: e.Error(), Code: int32(e)}, true
}

func exitError(err error) (domain.Exception, bool) {
	e, ok := err.(*exec.ExitError)
	if !ok {
		return domain.Exception{}, false
	}
	return domain.Exception{
		Type:    "*exec.ExitError",
		Message: err.Error(),
		Code:    int32(e.ExitCode()),
		Data:    data("stderr", strings.TrimSpace(string(e.Stderr))),
	}, true
}

func netOpError(err error) (domain.Exception, bool) {
	e, ok := err.(*net.OpError)
	if !ok {
		return domain.Exception{}, false
	}
	var source, addr string
	if e.Source != nil {
		source = e.Source.String()
	}
	if e.Addr != nil {
		addr = e.Addr.String()
	}
	return domain.Exception{
		Type:    "*net.OpError",
		Message: err.Error(),
		Code:    errnoCode(e.Err),
		Data:    data("op", e.Op, "net", e.Net, "source", source, "addr", addr),
	}, true
}

func contextError(err error) (domain.Exception, bool) {
	switch err {
	case context.Canceled:
		return domain.Exception{Type: "context.Canceled", Message: err.Error()}, true
	case context.DeadlineExceeded:
		return domain.Exception{Type: "context.DeadlineExceeded", Message: err.Error()}, true
	}
	return domain.Exception{}, false
}
