// Package viewport owns the map center, zoom and bounds, and tells user gestures
// apart from programmatic recenters.
package viewport

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

const (
	// CenterEpsilon is the center tolerance in degrees below which a recenter is a no-op.
	CenterEpsilon = 0.0001
	// ZoomEpsilon is the zoom tolerance below which a recenter is a no-op.
	ZoomEpsilon = 0.01

	MinZoom = 0
	MaxZoom = 22
)

// MoveKind classifies an in-progress map move.
type MoveKind int

const (
	MoveNone MoveKind = iota
	MoveUser
	MoveProgrammatic
)

func (k MoveKind) String() string {
	switch k {
	case MoveUser:
		return "user"
	case MoveProgrammatic:
		return "programmatic"
	default:
		return "none"
	}
}

// Transition describes a programmatic move the map has to animate.
type Transition struct {
	From types.Viewport
	To   types.Viewport
}

// Config configures a Store.
type Config struct {
	Center types.LatLng
	Zoom   float64
	Width  int // map width in pixels
	Height int // map height in pixels
	Logger *slog.Logger
}

// Store is a small state machine around the shared viewport.
//
// programmaticUpdateInProgress is set before a programmatic transition is issued,
// read by MoveStart to classify the gesture and cleared by MoveEnd. Only moves
// classified as user-driven commit the observed center and zoom.
type Store struct {
	current types.Viewport
	width   int
	height  int

	programmaticUpdateInProgress bool
	moving                       MoveKind

	logger *slog.Logger
}

// New creates a Store. Bounds are derived immediately when the pixel size is known.
func New(cfg Config) *Store {
	s := &Store{
		width:  cfg.Width,
		height: cfg.Height,
		logger: cfg.Logger,
	}
	s.current = s.derive(cfg.Center, cfg.Zoom)
	return s
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Viewport returns the committed viewport.
func (s *Store) Viewport() types.Viewport {
	v := s.current
	if v.Bounds != nil {
		b := *v.Bounds
		v.Bounds = &b
	}
	return v
}

// Bounds returns the committed bounds, nil before the map has a size.
func (s *Store) Bounds() *types.BoundingBox {
	return s.Viewport().Bounds
}

// Size returns the map size in pixels.
func (s *Store) Size() (int, int) {
	return s.width, s.height
}

// ProgrammaticUpdateInProgress reports whether a programmatic transition is pending.
func (s *Store) ProgrammaticUpdateInProgress() bool {
	return s.programmaticUpdateInProgress
}

// Moving returns the classification of the move in progress.
func (s *Store) Moving() MoveKind {
	return s.moving
}

// Resize records a new map size and recomputes bounds. It reports whether bounds changed.
func (s *Store) Resize(width, height int) bool {
	if width == s.width && height == s.height {
		return false
	}
	s.width, s.height = width, height
	next := s.derive(s.current.Center, s.current.Zoom)
	changed := !boundsEqual(s.current.Bounds, next.Bounds)
	s.current = next
	return changed
}

// RequestRecenter asks for a programmatic move. A target within CenterEpsilon and
// ZoomEpsilon of the committed viewport is a no-op and returns false.
// Otherwise the target is committed, the reentrancy flag set, and the transition returned.
func (s *Store) RequestRecenter(center types.LatLng, zoom float64) (Transition, bool) {
	zoom = clampZoom(zoom)
	target := types.Viewport{Center: clampCenter(center), Zoom: zoom}
	if s.current.Near(target, CenterEpsilon, ZoomEpsilon) {
		s.log().Debug("recenter skipped, already there", "center", center, "zoom", zoom)
		return Transition{}, false
	}

	from := s.Viewport()
	s.programmaticUpdateInProgress = true
	s.current = s.derive(target.Center, target.Zoom)

	s.log().Debug("programmatic recenter", "from", from, "to", s.current)
	return Transition{From: from, To: s.Viewport()}, true
}

// MoveStart classifies the move that is beginning.
func (s *Store) MoveStart() MoveKind {
	if s.programmaticUpdateInProgress {
		s.moving = MoveProgrammatic
	} else {
		s.moving = MoveUser
	}
	return s.moving
}

// MoveEnd finishes a move with the viewport the map ended up at.
// It clears the reentrancy flag and commits observed only for user moves.
// The return value reports whether the committed viewport changed.
func (s *Store) MoveEnd(observed types.Viewport) bool {
	kind := s.moving
	if kind == MoveNone {
		// move-end without move-start: classify now
		kind = s.MoveStart()
	}
	s.moving = MoveNone
	s.programmaticUpdateInProgress = false

	if kind != MoveUser {
		return false
	}
	next := s.derive(clampCenter(observed.Center), clampZoom(observed.Zoom))
	if observed.Bounds != nil && s.width == 0 {
		b := *observed.Bounds
		next.Bounds = &b
	}
	if err := next.Validate(); err != nil {
		s.log().Warn("ignoring inconsistent viewport", "error", err)
		return false
	}
	changed := !s.current.Near(next, 0, 0) || !boundsEqual(s.current.Bounds, next.Bounds)
	s.current = next
	return changed
}

// Pan returns the viewport a user drag of (dx, dy) pixels would produce.
func (s *Store) Pan(dx, dy float64) types.Viewport {
	x, y := tile.ToPixel(s.current.Center, s.current.Zoom)
	center := tile.FromPixel(x+dx, y+dy, s.current.Zoom)
	center.Lng = wrapLng(center.Lng)
	return s.derive(clampCenter(center), s.current.Zoom)
}

// ZoomBy returns the viewport a user zoom of delta levels would produce.
func (s *Store) ZoomBy(delta float64) types.Viewport {
	return s.derive(s.current.Center, clampZoom(s.current.Zoom+delta))
}

// derive builds a viewport with bounds computed from the pixel size.
func (s *Store) derive(center types.LatLng, zoom float64) types.Viewport {
	v := types.Viewport{Center: center, Zoom: zoom}
	if s.width > 0 && s.height > 0 {
		b := tile.ViewBounds(center, zoom, s.width, s.height)
		v.Bounds = &b
	}
	return v
}

func (s *Store) String() string {
	return fmt.Sprintf("viewport %s moving=%s programmatic=%t", s.current, s.moving, s.programmaticUpdateInProgress)
}

func clampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

func clampCenter(c types.LatLng) types.LatLng {
	c.Lat = math.Max(-tile.MaxLat, math.Min(tile.MaxLat, c.Lat))
	c.Lng = wrapLng(c.Lng)
	return c
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

func boundsEqual(a, b *types.BoundingBox) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
