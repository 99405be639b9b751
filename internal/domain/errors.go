package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is returned when an item is logged after shutdown began.
	ErrShutdown = errors.New("fieldlog: already shut down")
	// ErrNotReady is returned by a waiting reader once a successor file has
	// been linked in and the caller should switch to it.
	ErrNotReady = errors.New("fieldlog: reader not ready, switch to next file")

	ErrFormat      = errors.New("fieldlog: invalid file format")
	ErrCapacity    = errors.New("fieldlog: item exceeds encodable size")
	ErrIOTransient = errors.New("fieldlog: transient i/o failure")
)

// FormatError reports a file that cannot be decoded. It is fatal to the
// reader of that file only.
type FormatError struct {
	Path   string
	Offset int64
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("fieldlog: format error at offset %d: %s", e.Offset, e.Reason)
	if e.Path != "" {
		msg = fmt.Sprintf("fieldlog: format error in %s at offset %d: %s", e.Path, e.Offset, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// CapacityError reports an item whose payload does not fit the record header.
type CapacityError struct {
	Size int
	Max  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("fieldlog: item payload of %d bytes exceeds the limit of %d", e.Size, e.Max)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }

// IOTransientError reports a failure to create or open a log file.
type IOTransientError struct {
	Op  string
	Err error
}

func (e *IOTransientError) Error() string {
	return fmt.Sprintf("fieldlog: %s: %v", e.Op, e.Err)
}

func (e *IOTransientError) Unwrap() error { return e.Err }

func (e *IOTransientError) Is(target error) bool { return target == ErrIOTransient }
