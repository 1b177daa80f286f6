package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type mockClient struct {
	connected   atomic.Bool
	closed      atomic.Bool
	failConnect bool
	failClose   bool
}

func (m *mockClient) Connect(ctx context.Context) error {
	if m.failConnect {
		return fmt.Errorf("connection failed")
	}
	m.connected.Store(true)
	return nil
}

func (m *mockClient) Close() error {
	m.closed.Store(true)
	m.connected.Store(false)
	if m.failClose {
		return fmt.Errorf("close failed")
	}
	return nil
}

func TestRoundRobin_EvenDistribution(t *testing.T) {
	for _, k := range []int{1, 2, 3, 7} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			items := make([]int, k)
			for i := range items {
				items[i] = i
			}
			rr, err := NewRoundRobin(items)
			if err != nil {
				t.Fatalf("NewRoundRobin: %v", err)
			}

			n := k * 1000
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := w; i < n; i += 8 {
						rr.Next()
					}
				}(w)
			}
			wg.Wait()

			for i, picks := range rr.Picks() {
				if picks != int64(n/k) {
					t.Errorf("index %d picked %d times, want %d", i, picks, n/k)
				}
			}
		})
	}
}

func TestRoundRobin_Rotation(t *testing.T) {
	rr, err := NewRoundRobin([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}
	var got []string
	for i := 0; i < 7; i++ {
		got = append(got, rr.Next())
	}
	if strings.Join(got, "") != "abcabca" {
		t.Fatalf("rotation = %v", got)
	}
	if rr.Len() != 3 {
		t.Fatalf("Len() = %d", rr.Len())
	}
}

func TestRoundRobin_Empty(t *testing.T) {
	if _, err := NewRoundRobin[int](nil); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDial_ConnectsAll(t *testing.T) {
	clients, err := Dial(context.Background(), 4, func(int) (*mockClient, error) {
		return &mockClient{}, nil
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if len(clients) != 4 {
		t.Fatalf("got %d clients", len(clients))
	}
	for i, c := range clients {
		if !c.connected.Load() {
			t.Errorf("client %d not connected", i)
		}
	}
}

func TestDial_ClosesAllOnFailure(t *testing.T) {
	var mu sync.Mutex
	var made []*mockClient
	_, err := Dial(context.Background(), 5, func(i int) (*mockClient, error) {
		c := &mockClient{failConnect: i == 3}
		mu.Lock()
		made = append(made, c)
		mu.Unlock()
		return c, nil
	})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "connection 3") {
		t.Errorf("error %q does not name the failing connection", err)
	}
	for i, c := range made {
		if !c.closed.Load() {
			t.Errorf("client %d left open after failed dial", i)
		}
	}
}

func TestDial_FactoryError(t *testing.T) {
	_, err := Dial(context.Background(), 2, func(i int) (*mockClient, error) {
		if i == 1 {
			return nil, fmt.Errorf("bad config")
		}
		return &mockClient{}, nil
	})
	if err == nil {
		t.Fatal("expected factory error")
	}
}

func TestCloseAll_AggregatesErrors(t *testing.T) {
	err := CloseAll([]*mockClient{{failClose: true}, {}, {failClose: true}})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Count(err.Error(), "close failed") != 2 {
		t.Fatalf("unexpected error %q", err)
	}
}
