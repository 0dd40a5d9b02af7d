package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// DefaultFallbackTimeout bounds the fallback's first frame after the primary
// ran out of time.
const DefaultFallbackTimeout = 10 * time.Second

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	Primary  Backend
	Fallback Backend
	// FallbackTimeout is the budget of the fallback when the switch was caused
	// by the caller's deadline. Zero uses DefaultFallbackTimeout.
	FallbackTimeout time.Duration
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Adapter renders through the primary backend until it fails once, then through
// the fallback for the rest of the session. Backend failures never propagate
// upward unless the fallback fails too.
type Adapter struct {
	primary  Backend
	fallback Backend

	mu           sync.Mutex
	state        types.RenderBackendState
	primaryReady bool
	fallbackInit bool
	fallbackErr  error

	fallbackTimeout time.Duration

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAdapter creates an Adapter defaulting to the primary backend.
// A nil primary starts directly on the fallback.
func NewAdapter(cfg AdapterConfig) *Adapter {
	a := &Adapter{
		primary:         cfg.Primary,
		fallback:        cfg.Fallback,
		state:           types.RenderBackendState{Active: types.BackendPrimary},
		fallbackTimeout: cfg.FallbackTimeout,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if a.fallbackTimeout <= 0 {
		a.fallbackTimeout = DefaultFallbackTimeout
	}
	if cfg.Primary == nil {
		a.state = types.RenderBackendState{Active: types.BackendFallback, FallbackReason: "no primary backend configured"}
	}
	return a
}

func (a *Adapter) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// State returns the active backend and the fallback reason, if any.
func (a *Adapter) State() types.RenderBackendState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Init initializes the primary backend, switching to the fallback on failure.
// It only returns an error when no backend is usable.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ensureReadyLocked(ctx)
}

func (a *Adapter) ensureReadyLocked(ctx context.Context) error {
	if a.state.Active == types.BackendPrimary {
		if a.primaryReady {
			return nil
		}
		err := safeCall(func() error { return a.primary.Init(ctx) })
		if err == nil {
			a.primaryReady = true
			a.log().Info("map backend ready", "backend", types.BackendPrimary)
			return nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		a.switchLocked("initialization failed: " + err.Error())
		fctx, cancel := a.rescue(ctx)
		defer cancel()
		return a.initFallbackLocked(fctx)
	}
	return a.initFallbackLocked(ctx)
}

// rescue returns the context for the fallback right after a switch. When the
// primary used up the caller's deadline the fallback gets a budget of its own.
func (a *Adapter) rescue(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), a.fallbackTimeout)
}

func (a *Adapter) initFallbackLocked(ctx context.Context) error {
	if a.fallback == nil {
		return &ProviderInitError{Backend: types.BackendFallback, Reason: "no fallback backend configured"}
	}
	if a.fallbackInit {
		return a.fallbackErr
	}
	err := safeCall(func() error { return a.fallback.Init(ctx) })
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	a.fallbackInit = true
	if err != nil {
		a.fallbackErr = &ProviderInitError{Backend: types.BackendFallback, Reason: "initialization failed", Err: err}
		a.log().Error("fallback map backend failed", "error", err)
		return a.fallbackErr
	}
	a.log().Info("map backend ready", "backend", types.BackendFallback)
	return nil
}

// switchLocked performs the one-way switch. There is no way back.
func (a *Adapter) switchLocked(reason string) {
	if a.state.Active == types.BackendFallback {
		return
	}
	a.state = types.RenderBackendState{Active: types.BackendFallback, FallbackReason: reason}
	a.primaryReady = false
	a.metrics.IncRenderFallback()
	a.log().Warn("switching to fallback map backend", "reason", reason)
}

// Render draws f on the active backend. A primary failure, a timeout included,
// switches to the fallback and retries the frame there once.
func (a *Adapter) Render(ctx context.Context, f Frame) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	wasPrimary := a.state.Active == types.BackendPrimary
	err := a.ensureReadyLocked(ctx)
	backend, kind := a.activeLocked()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if wasPrimary && kind == types.BackendFallback {
		fctx, cancel := a.rescue(ctx)
		defer cancel()
		return a.renderFallback(fctx, f)
	}

	res, err := a.renderOn(ctx, backend, kind, f)
	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	if kind == types.BackendFallback {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderInitError{Backend: kind, Reason: "render failed", Err: err}
	}

	fctx, cancel := a.rescue(ctx)
	defer cancel()

	a.mu.Lock()
	a.switchLocked("render failed: " + err.Error())
	initErr := a.initFallbackLocked(fctx)
	a.mu.Unlock()
	if initErr != nil {
		return nil, initErr
	}
	return a.renderFallback(fctx, f)
}

func (a *Adapter) renderFallback(ctx context.Context, f Frame) (*Result, error) {
	res, err := a.renderOn(ctx, a.fallback, types.BackendFallback, f)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderInitError{Backend: types.BackendFallback, Reason: "render failed", Err: err}
	}
	return res, nil
}

func (a *Adapter) activeLocked() (Backend, types.BackendKind) {
	if a.state.Active == types.BackendPrimary {
		return a.primary, types.BackendPrimary
	}
	return a.fallback, types.BackendFallback
}

func (a *Adapter) renderOn(ctx context.Context, b Backend, kind types.BackendKind, f Frame) (*Result, error) {
	start := time.Now()
	var res *Result
	err := safeCall(func() error {
		var err error
		res, err = b.Render(ctx, f)
		return err
	})
	a.metrics.ObserveRender(string(kind), time.Since(start))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Image == nil {
		return nil, errors.New("backend returned no image")
	}
	res.Backend = kind
	return res, nil
}

// Close closes both backends.
func (a *Adapter) Close() error {
	var errs []error
	for _, b := range []Backend{a.primary, a.fallback} {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// safeCall converts a panic inside a backend into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
