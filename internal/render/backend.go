// Package render draws the viewport and parcel geometries through one of two
// interchangeable map backends, switching once and for good to the fallback
// when the primary fails.
package render

import (
	"context"
	"fmt"
	"image"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// Frame is everything needed to draw one map image.
type Frame struct {
	Viewport   types.Viewport
	Width      int
	Height     int
	Properties []types.Property
	SelectedID string
	// MaxLabels bounds the number of parcel labels; 0 uses DefaultMaxLabels.
	MaxLabels  int
	HideLabels bool
}

// Validate checks that the frame can be rendered.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Width > MaxFrameSize || f.Height > MaxFrameSize {
		return fmt.Errorf("frame size %dx%d exceeds %d", f.Width, f.Height, MaxFrameSize)
	}
	return f.Viewport.Validate()
}

// MaxFrameSize is the largest frame edge in pixels.
const MaxFrameSize = 4096

// Result is a rendered frame.
type Result struct {
	Image       *image.RGBA
	Backend     types.BackendKind
	Attribution string
	Labels      []Label
}

// Backend renders map frames.
type Backend interface {
	Kind() types.BackendKind
	// Init validates configuration and reachability. It is called once before
	// the first Render.
	Init(ctx context.Context) error
	Render(ctx context.Context, f Frame) (*Result, error)
	Close() error
}

// ProviderInitError is returned when a map backend cannot be used.
// The adapter only returns it when the fallback failed as well.
type ProviderInitError struct {
	Backend types.BackendKind
	Reason  string
	Err     error
}

func (e *ProviderInitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("map backend %s unavailable: %s", e.Backend, e.Reason)
	}
	return fmt.Sprintf("map backend %s unavailable: %s: %v", e.Backend, e.Reason, e.Err)
}

func (e *ProviderInitError) Unwrap() error {
	return e.Err
}
