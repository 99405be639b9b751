package domain

import (
	"bytes"
	"math"
)

// CounterWindow is the distance around the 32-bit boundary inside which a
// small counter is taken to have wrapped past a large one.
const CounterWindow = 10000

// CompareCounters compares two event counters, treating values within
// CounterWindow of each other across the wrap boundary as consecutive.
func CompareCounters(a, b uint32) int {
	switch {
	case a == b:
		return 0
	case a > b:
		if a-b > math.MaxUint32-CounterWindow {
			return -1
		}
		return 1
	default:
		if b-a > math.MaxUint32-CounterWindow {
			return 1
		}
		return -1
	}
}

// Compare orders two items by time, then by event counter. Items of different
// sessions with the same time are ordered by session so the order stays total.
func Compare(a, b Item) int {
	ma, mb := a.ItemMeta(), b.ItemMeta()
	if c := ma.Time.Compare(mb.Time); c != 0 {
		return c
	}
	if ma.SessionID != mb.SessionID {
		return bytes.Compare(ma.SessionID[:], mb.SessionID[:])
	}
	return CompareCounters(ma.EventCounter, mb.EventCounter)
}

// Less reports whether a sorts before b.
func Less(a, b Item) bool { return Compare(a, b) < 0 }
