package eventbus

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Counter tallies events by type and remembers when each type was last
// seen. /status renders it.
type Counter struct {
	mu    sync.Mutex
	total map[string]int
	last  map[string]time.Time
}

type Count struct {
	Type   string
	N      int
	LastAt time.Time
}

func NewCounter() *Counter {
	return &Counter{total: map[string]int{}, last: map[string]time.Time{}}
}

// Run consumes bus events until ctx ends.
func (c *Counter) Run(ctx context.Context, bus Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Add(e)
		}
	}
}

func (c *Counter) Add(e Event) {
	c.mu.Lock()
	c.total[e.Type]++
	if e.Time.After(c.last[e.Type]) {
		c.last[e.Type] = e.Time
	}
	c.mu.Unlock()
}

// Counts returns tallies sorted by type.
func (c *Counter) Counts() []Count {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Count, 0, len(c.total))
	for typ, n := range c.total {
		out = append(out, Count{Type: typ, N: n, LastAt: c.last[typ]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
