// Package worker warms the tile cache by fetching tiles in parallel.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/tile"
)

// Fetcher retrieves one encoded tile. render.TileBackend implements it and
// stores every fetched tile in its cache as a side effect.
type Fetcher interface {
	FetchTile(ctx context.Context, c tile.Coords) ([]byte, error)
}

// Result is the outcome of fetching one tile.
type Result struct {
	Coords  tile.Coords
	Bytes   int
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each tile completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the pool.
type Config struct {
	Workers    int
	Fetcher    Fetcher
	OnProgress ProgressFunc
}

// Pool fetches tiles with a fixed number of workers.
type Pool struct {
	workers    int
	fetcher    Fetcher
	onProgress ProgressFunc
}

// New creates a pool. Workers defaults to 1.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, fetcher: cfg.Fetcher, onProgress: cfg.OnProgress}
}

// Run fetches all tiles and blocks until every one has a result. Tiles not yet
// started when ctx is cancelled report ctx.Err().
func (p *Pool) Run(ctx context.Context, coords []tile.Coords) []Result {
	if len(coords) == 0 {
		return nil
	}

	jobs := make(chan tile.Coords)
	out := make(chan Result, len(coords))

	var wg sync.WaitGroup
	for range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				out <- p.fetch(ctx, c)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range coords {
			jobs <- c
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]Result, 0, len(coords))
	failed := 0
	for r := range out {
		results = append(results, r)
		if r.Err != nil {
			failed++
		}
		if p.onProgress != nil {
			p.onProgress(len(results), len(coords), failed)
		}
	}
	return results
}

func (p *Pool) fetch(ctx context.Context, c tile.Coords) Result {
	if err := ctx.Err(); err != nil {
		return Result{Coords: c, Err: err}
	}
	start := time.Now()
	data, err := p.fetcher.FetchTile(ctx, c)
	return Result{Coords: c, Bytes: len(data), Err: err, Elapsed: time.Since(start)}
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
