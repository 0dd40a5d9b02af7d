package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/tile"
)

// mockFetcher simulates tile downloads.
type mockFetcher struct {
	delay     time.Duration
	failTiles map[tile.Coords]bool
	calls     atomic.Int32
	active    atomic.Int32
	peak      atomic.Int32
}

func (m *mockFetcher) FetchTile(ctx context.Context, c tile.Coords) ([]byte, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.delay):
	}

	if m.failTiles[c] {
		return nil, errors.New("simulated failure")
	}
	return []byte("png"), nil
}

func coordsN(n int) []tile.Coords {
	out := make([]tile.Coords, n)
	for i := range out {
		out[i] = tile.NewCoords(13, 2406+uint32(i), 3065)
	}
	return out
}

func TestPool_BasicExecution(t *testing.T) {
	f := &mockFetcher{delay: 5 * time.Millisecond}
	pool := New(Config{Workers: 2, Fetcher: f})

	results := pool.Run(context.Background(), coordsN(3))

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected error for %s: %v", r.Coords, r.Err)
		}
		if r.Bytes != 3 {
			t.Errorf("expected 3 bytes for %s, got %d", r.Coords, r.Bytes)
		}
	}
	if f.calls.Load() != 3 {
		t.Errorf("expected 3 fetches, got %d", f.calls.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	f := &mockFetcher{delay: 30 * time.Millisecond}
	pool := New(Config{Workers: 4, Fetcher: f})

	pool.Run(context.Background(), coordsN(8))

	if peak := f.peak.Load(); peak < 2 || peak > 4 {
		t.Errorf("expected between 2 and 4 concurrent fetches, got %d", peak)
	}
}

func TestPool_Failures(t *testing.T) {
	coords := coordsN(4)
	f := &mockFetcher{failTiles: map[tile.Coords]bool{coords[1]: true}}

	var lastCompleted, lastFailed int
	pool := New(Config{
		Workers: 2,
		Fetcher: f,
		OnProgress: func(completed, total, failed int) {
			if total != 4 {
				t.Errorf("expected total 4, got %d", total)
			}
			lastCompleted, lastFailed = completed, failed
		},
	})

	results := pool.Run(context.Background(), coords)

	failed := Failed(results)
	if len(failed) != 1 || failed[0].Coords != coords[1] {
		t.Fatalf("expected exactly %s to fail, got %+v", coords[1], failed)
	}
	if lastCompleted != 4 || lastFailed != 1 {
		t.Errorf("expected final progress 4/1, got %d/%d", lastCompleted, lastFailed)
	}
}

func TestPool_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &mockFetcher{}
	results := New(Config{Workers: 3, Fetcher: f}).Run(ctx, coordsN(5))

	if len(results) != 5 {
		t.Fatalf("expected a result per tile, got %d", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("expected context.Canceled for %s, got %v", r.Coords, r.Err)
		}
	}
	if f.calls.Load() != 0 {
		t.Errorf("expected no fetches after cancellation, got %d", f.calls.Load())
	}
}

func TestPool_Empty(t *testing.T) {
	if got := New(Config{Fetcher: &mockFetcher{}}).Run(context.Background(), nil); got != nil {
		t.Errorf("expected nil results, got %v", got)
	}
}
