// Package pool selects among equivalent connections to one endpoint.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Poolable represents any client that can be connected and closed.
type Poolable interface {
	Connect(ctx context.Context) error
	Close() error
}

// ErrEmpty is returned when a pool is built from no connections.
var ErrEmpty = errors.New("pool: no connections")

// RoundRobin hands out items in strict rotation. The counter increment and
// the read of its previous value are a single atomic step, so concurrent
// callers never pick the same slot for the same tick.
type RoundRobin[T any] struct {
	items []T
	next  atomic.Uint64
	picks []atomic.Int64
}

// NewRoundRobin creates a rotation over items.
func NewRoundRobin[T any](items []T) (*RoundRobin[T], error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	return &RoundRobin[T]{
		items: items,
		picks: make([]atomic.Int64, len(items)),
	}, nil
}

// Next returns the next item in rotation.
func (r *RoundRobin[T]) Next() T {
	_, item := r.NextIndexed()
	return item
}

// NextIndexed returns the next item and its index.
func (r *RoundRobin[T]) NextIndexed() (int, T) {
	i := int((r.next.Add(1) - 1) % uint64(len(r.items)))
	r.picks[i].Add(1)
	return i, r.items[i]
}

func (r *RoundRobin[T]) Len() int { return len(r.items) }

// Items returns the underlying items in index order.
func (r *RoundRobin[T]) Items() []T { return r.items }

// Picks returns how many times each index was selected.
func (r *RoundRobin[T]) Picks() []int64 {
	out := make([]int64, len(r.picks))
	for i := range r.picks {
		out[i] = r.picks[i].Load()
	}
	return out
}

// Dial builds n clients with factory and connects them in parallel. If any
// client fails to connect, every client built so far is closed and the
// first error is returned.
func Dial[T Poolable](ctx context.Context, n int, factory func(i int) (T, error)) ([]T, error) {
	if n <= 0 {
		return nil, ErrEmpty
	}
	clients := make([]T, n)
	built := make([]bool, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			c, err := factory(i)
			if err != nil {
				return fmt.Errorf("connection %d: %w", i, err)
			}
			clients[i] = c
			built[i] = true
			if err := c.Connect(gctx); err != nil {
				return fmt.Errorf("connection %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var opened []T
		for i, ok := range built {
			if ok {
				opened = append(opened, clients[i])
			}
		}
		_ = CloseAll(opened)
		return nil, err
	}
	return clients, nil
}

// CloseAll closes every client and reports all close errors together.
func CloseAll[T Poolable](clients []T) error {
	var errs []string
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
