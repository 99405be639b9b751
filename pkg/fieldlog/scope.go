package fieldlog

import (
	"context"
	"sync"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// MainThread is the thread id of contexts not derived from StartThread.
const MainThread int32 = 1

type threadKey struct{}

// ThreadID returns the logical thread ctx belongs to.
func ThreadID(ctx context.Context) int32 {
	if id, ok := ctx.Value(threadKey{}).(int32); ok {
		return id
	}
	return MainThread
}

// Scope is an entered region that must be left, usually with defer.
type Scope struct {
	e     *Engine
	ctx   context.Context
	end   domain.ScopeType
	level int32
	name  string
	once  sync.Once
	err   error
}

// Enter logs entering a named region on the thread of ctx.
//
//	defer log.Enter(ctx, "LoadSettings").Leave()
func (e *Engine) Enter(ctx context.Context, name string) *Scope {
	tid := ThreadID(ctx)
	e.levelsMu.Lock()
	e.levels[tid]++
	level := e.levels[tid]
	e.levelsMu.Unlock()

	s := &Scope{e: e, ctx: ctx, end: domain.ScopeLeave, level: level, name: name}
	s.err = e.pipeline.Log(&domain.ScopeItem{
		Meta:  e.meta(ctx, domain.PriorityTrace),
		Type:  domain.ScopeEnter,
		Level: level,
		Name:  name,
	})
	return s
}

// StartThread derives a context for a new logical thread and logs its start.
// Leaving the returned scope logs the thread's end.
func (e *Engine) StartThread(ctx context.Context, name string) (context.Context, *Scope) {
	tid := e.threads.Add(1)
	ctx = context.WithValue(ctx, threadKey{}, tid)
	s := &Scope{e: e, ctx: ctx, end: domain.ScopeThreadEnd, name: name}
	s.err = e.pipeline.Log(&domain.ScopeItem{
		Meta: e.meta(ctx, domain.PriorityTrace),
		Type: domain.ScopeThreadStart,
		Name: name,
	})
	return ctx, s
}

// Leave logs leaving the scope. Only the first call has an effect. It
// returns the error of entering or leaving.
func (s *Scope) Leave() error {
	s.once.Do(func() {
		e := s.e
		tid := ThreadID(s.ctx)
		e.levelsMu.Lock()
		if s.end == domain.ScopeThreadEnd {
			delete(e.levels, tid)
		} else if e.levels[tid] >= s.level {
			// Inner scopes left open are closed along with this one.
			e.levels[tid] = s.level - 1
		}
		if e.levels[tid] <= 0 {
			delete(e.levels, tid)
		}
		e.levelsMu.Unlock()

		err := e.pipeline.Log(&domain.ScopeItem{
			Meta:  e.meta(s.ctx, domain.PriorityTrace),
			Type:  s.end,
			Level: s.level,
			Name:  s.name,
		})
		if s.err == nil {
			s.err = err
		}
	})
	return s.err
}
