package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority is the severity of a log item. It also partitions the files on disk:
// every priority is written to its own sequence of files.
type Priority uint8

const (
	PriorityTrace Priority = iota
	PriorityCheckpoint
	PriorityInfo
	PriorityNotice
	PriorityWarning
	PriorityError
	PriorityCritical
)

// PriorityCount is the number of defined priorities.
const PriorityCount = int(PriorityCritical) + 1

var priorityNames = [PriorityCount]string{
	"trace", "checkpoint", "info", "notice", "warning", "error", "critical",
}

// Priorities lists every priority from the lowest to the highest.
func Priorities() []Priority {
	out := make([]Priority, PriorityCount)
	for i := range out {
		out[i] = Priority(i)
	}
	return out
}

func (p Priority) Valid() bool { return int(p) < PriorityCount }

func (p Priority) String() string {
	if !p.Valid() {
		return "priority(" + strconv.Itoa(int(p)) + ")"
	}
	return priorityNames[p]
}

// ParsePriority accepts either the priority name (case-insensitive) or its number.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range priorityNames {
		if s == name {
			return Priority(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= PriorityCount {
		return 0, fmt.Errorf("unknown priority %q", s)
	}
	return Priority(n), nil
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
