package usecase

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// chain is the sequence of files of one priority, oldest to newest. It reads
// through the files as if they were one stream.
type chain struct {
	prio domain.Priority
	wait bool

	mu       sync.Mutex
	current  domain.ItemReader
	tail     domain.ItemReader
	tailPath string
	broken   bool
	appended chan struct{}

	// idle is set while the chain waits at the live end of its data.
	idle atomic.Bool
	// reached is set once the chain has been idle or exhausted at least once.
	reached atomic.Bool
}

func newChain(prio domain.Priority, wait bool) *chain {
	return &chain{prio: prio, wait: wait, appended: make(chan struct{}, 1)}
}

// add links r after the newest file. Files older than the newest one are
// ignored, as are duplicates.
func (c *chain) add(path string, r domain.ItemReader) bool {
	c.mu.Lock()
	if c.tail != nil && path <= c.tailPath {
		c.mu.Unlock()
		return false
	}
	if c.tail != nil {
		c.tail.SetNext(r)
	}
	c.tail = r
	c.tailPath = path
	if c.current == nil {
		c.current = r
	}
	c.mu.Unlock()

	select {
	case c.appended <- struct{}{}:
	default:
	}
	return true
}

func (c *chain) markIdle() {
	c.idle.Store(true)
	c.reached.Store(true)
}

// advance returns the next item of the chain, switching files as needed. It
// returns io.EOF when the chain is exhausted, or closed in wait mode. A format
// error abandons the current file; the next call continues with its successor.
func (c *chain) advance(closing <-chan struct{}, onIdle func()) (domain.Item, error) {
	for {
		c.mu.Lock()
		r, broken := c.current, c.broken
		c.mu.Unlock()

		if r == nil || broken {
			if r != nil {
				if next := r.Next(); next != nil {
					c.switchTo(r, next)
					continue
				}
			}
			if !c.wait {
				return nil, io.EOF
			}
			onIdle()
			select {
			case <-c.appended:
				continue
			case <-closing:
				return nil, io.EOF
			}
		}

		item, err := r.ReadItem()
		switch {
		case err == nil:
			c.idle.Store(false)
			return item, nil
		case errors.Is(err, domain.ErrNotReady):
			c.switchTo(r, r.Next())
		case errors.Is(err, io.EOF):
			if next := r.Next(); next != nil {
				c.switchTo(r, next)
				continue
			}
			return nil, io.EOF
		default:
			c.mu.Lock()
			c.broken = true
			c.mu.Unlock()
			return nil, err
		}
	}
}

func (c *chain) switchTo(old, next domain.ItemReader) {
	if next == nil {
		return
	}
	c.mu.Lock()
	c.current = next
	c.broken = false
	c.mu.Unlock()
	old.Close()
}

// close releases every reader of the chain.
func (c *chain) close() {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	for ; r != nil; r = r.Next() {
		r.Close()
	}
}
