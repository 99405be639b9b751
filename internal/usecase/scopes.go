package usecase

import (
	"slices"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// openScopes is the set of scopes entered and not yet left: the last LogStart,
// the live thread starts and one stack of Enter scopes per thread.
type openScopes struct {
	logStart *domain.ScopeItem
	threads  map[int32]*domain.ScopeItem
	stacks   map[int32][]*domain.ScopeItem
}

func newOpenScopes() openScopes {
	return openScopes{
		threads: make(map[int32]*domain.ScopeItem),
		stacks:  make(map[int32][]*domain.ScopeItem),
	}
}

func (o *openScopes) track(item domain.Item) {
	s, ok := item.(*domain.ScopeItem)
	if !ok || s.IsRepeated {
		return
	}
	tid := s.ThreadID
	switch s.Type {
	case domain.ScopeLogStart:
		o.logStart = s
	case domain.ScopeLogShutdown:
		o.logStart = nil
		clear(o.threads)
		clear(o.stacks)
	case domain.ScopeThreadStart:
		o.threads[tid] = s
	case domain.ScopeThreadEnd:
		delete(o.threads, tid)
		delete(o.stacks, tid)
	case domain.ScopeEnter:
		o.stacks[tid] = append(o.stacks[tid], s)
	case domain.ScopeLeave:
		st := o.stacks[tid]
		// Scopes deeper than the one being left were never closed.
		for len(st) > 0 && st[len(st)-1].Level > s.Level {
			st = st[:len(st)-1]
		}
		if len(st) > 0 && st[len(st)-1].Level == s.Level {
			st = st[:len(st)-1]
		}
		if len(st) == 0 {
			delete(o.stacks, tid)
		} else {
			o.stacks[tid] = st
		}
	}
}

// replay lists the open scopes to repeat at the start of a new file: the log
// start, then thread starts, then each thread's stack from outer to inner.
// Scopes whose original record has not been written yet are left out; they
// will still be written in order.
func (o *openScopes) replay() []*domain.ScopeItem {
	var out []*domain.ScopeItem
	add := func(s *domain.ScopeItem) {
		if s != nil && s.WasWritten() {
			out = append(out, s)
		}
	}
	add(o.logStart)
	for _, tid := range sortedKeys(o.threads) {
		add(o.threads[tid])
	}
	for _, tid := range sortedKeys(o.stacks) {
		for _, s := range o.stacks[tid] {
			add(s)
		}
	}
	return out
}

// entered lists the Enter scopes still open, outer to inner per thread.
func (o *openScopes) entered() []*domain.ScopeItem {
	var out []*domain.ScopeItem
	for _, tid := range sortedKeys(o.stacks) {
		out = append(out, o.stacks[tid]...)
	}
	return out
}

func sortedKeys[V any](m map[int32]V) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
