package app

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/query"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

const (
	channelQuery  = "query"
	channelRender = "render"
)

func suggestChannel(mode types.SearchMode) string { return "suggest:" + string(mode) }
func facetChannel(f api.Facet) string            { return "facets:" + string(f) }

// channels holds one cancellable context per channel. Handing out a new
// context cancels the previous one, which aborts the superseded request.
type channels struct {
	mu      sync.Mutex
	base    context.Context
	cancels map[string]context.CancelFunc
}

func newChannels(base context.Context) *channels {
	return &channels{base: base, cancels: make(map[string]context.CancelFunc)}
}

func (c *channels) next(name string) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[name]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(c.base)
	c.cancels[name] = cancel
	return ctx
}

func (c *channels) stop(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[name]; ok {
		cancel()
		delete(c.cancels, name)
	}
}

func (s *Session) effectContext(ctx context.Context) context.Context {
	if ctx == nil {
		return s.base
	}
	return ctx
}

// Run performs eff and returns the event to hand back to Handle, or nil when
// there is nothing to report. It is safe to call from any goroutine.
func (s *Session) Run(eff Effect) Event {
	switch e := eff.(type) {
	case DebounceEffect:
		t := time.NewTimer(e.Delay)
		defer t.Stop()
		select {
		case <-s.effectContext(e.ctx).Done():
			return nil
		case <-t.C:
			return DebounceElapsed{Mode: e.Mode, Generation: e.Generation}
		}

	case SuggestEffect:
		ctx, cancel := context.WithTimeout(s.effectContext(e.ctx), s.cfg.Autocomplete.Timeout)
		defer cancel()
		suggestions, err := s.client.Autocomplete(ctx, e.Request.AutocompleteRequest)
		return SuggestionsLoaded{Mode: e.Request.Mode, Generation: e.Request.Generation, Suggestions: suggestions, Err: err}

	case QueryEffect:
		ctx, cancel := context.WithTimeout(s.effectContext(e.ctx), s.cfg.Query.Timeout)
		defer cancel()
		res, err := s.client.Search(ctx, e.Request.Params.Request)
		return QueryLoaded{Response: query.Response{
			Generation: e.Request.Generation,
			Params:     e.Request.Params,
			Result:     res,
			Err:        err,
		}}

	case RenderEffect:
		ctx, cancel := context.WithTimeout(s.effectContext(e.ctx), s.cfg.Map.RenderTimeout)
		defer cancel()
		res, err := s.renderer.Render(ctx, e.Frame)
		return RenderDone{Generation: e.Generation, Result: res, Err: err}

	case FacetsEffect:
		ctx, cancel := context.WithTimeout(s.effectContext(e.ctx), s.cfg.Query.Timeout)
		defer cancel()
		opts, err := s.client.FacetOptions(ctx, e.Facet, e.Filters)
		return FacetsLoaded{Facet: e.Facet, Options: opts, Err: err}

	case TelemetryEffect:
		if s.telemetry == nil {
			return nil
		}
		if e.Search != nil {
			s.telemetry.Search(s.base, *e.Search)
		}
		if e.MapLoad != nil {
			m := e.MapLoad
			s.telemetry.MapLoad(s.base, m.Backend, m.Center, m.Zoom, m.Elapsed)
		}
		return nil
	}
	return nil
}

// Drain runs effects one at a time, feeding every resulting event back into
// Handle, until no work is left. It is the driver for non-interactive
// commands; the TUI runs effects concurrently instead.
func (s *Session) Drain(ctx context.Context, effects []Effect) error {
	queue := append([]Effect(nil), effects...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		eff := queue[0]
		queue = queue[1:]
		ev := s.Run(eff)
		if ev == nil {
			continue
		}
		queue = append(queue, s.Handle(ev)...)
	}
	return nil
}
