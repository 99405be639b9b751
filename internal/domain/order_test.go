package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCompareCounters(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		want int
	}{
		{"equal", 7, 7, 0},
		{"plain less", 1, 2, -1},
		{"plain greater", 5000, 10, 1},
		{"wrapped counter is later", math.MaxUint32 - 5, 3, -1},
		{"wrapped counter is later reversed", 3, math.MaxUint32 - 5, 1},
		{"edge of window", math.MaxUint32, 0, -1},
		{"outside window is numeric", math.MaxUint32 - 20000, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareCounters(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareCounters(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	session := uuid.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	item := func(counter uint32, at time.Time) Item {
		return &TextItem{Meta: Meta{EventCounter: counter, Time: at, SessionID: session}}
	}

	t.Run("time dominates counter", func(t *testing.T) {
		a := item(500, base)
		b := item(1, base.Add(time.Second))
		if !Less(a, b) {
			t.Error("expected earlier item to sort first")
		}
	})

	t.Run("equal time uses counter across wrap", func(t *testing.T) {
		a := item(math.MaxUint32-1, base)
		b := item(2, base)
		if !Less(a, b) {
			t.Error("expected counter before wrap to sort first")
		}
		if Compare(b, a) != 1 {
			t.Error("expected reversed comparison to be positive")
		}
	})

	t.Run("different sessions stay total", func(t *testing.T) {
		a := &TextItem{Meta: Meta{Time: base, SessionID: uuid.UUID{1}}}
		b := &TextItem{Meta: Meta{Time: base, SessionID: uuid.UUID{2}}}
		if Compare(a, b) != -Compare(b, a) || Compare(a, b) == 0 {
			t.Error("expected antisymmetric non-zero comparison")
		}
	})
}

func TestParsePriority(t *testing.T) {
	for _, p := range Priorities() {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %v, %v", p.String(), got, err)
		}
	}
	if got, err := ParsePriority("WARNING"); err != nil || got != PriorityWarning {
		t.Errorf("expected case-insensitive parse, got %v, %v", got, err)
	}
	if got, err := ParsePriority("5"); err != nil || got != PriorityError {
		t.Errorf("expected numeric parse, got %v, %v", got, err)
	}
	if _, err := ParsePriority("7"); err == nil {
		t.Error("expected out-of-range priority to fail")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &FormatError{Path: "x.fl", Offset: 10, Reason: "bad tag"}
	if !errors.Is(err, ErrFormat) {
		t.Error("FormatError should match ErrFormat")
	}
	err = &IOTransientError{Op: "create", Err: errors.New("disk full")}
	if !errors.Is(err, ErrIOTransient) {
		t.Error("IOTransientError should match ErrIOTransient")
	}
	if !errors.Is(&CapacityError{Size: 1, Max: 0}, ErrCapacity) {
		t.Error("CapacityError should match ErrCapacity")
	}
}

func TestScopeRepeat(t *testing.T) {
	s := &ScopeItem{Meta: Meta{EventCounter: 3}, Type: ScopeEnter, Name: "outer", Level: 1}
	s.MarkWritten()
	r := s.Repeat()
	if !r.IsRepeated || r.WasWritten() {
		t.Errorf("unexpected repeat flags: repeated=%v written=%v", r.IsRepeated, r.WasWritten())
	}
	if r.Name != "outer" || r.EventCounter != 3 {
		t.Errorf("repeat lost fields: %+v", r)
	}
}
