// Package overlay maintains the click-through annotation surface that
// floats above the shared screen. It consumes change events from the
// distributor and keeps a denormalized, pixel-space copy of every
// stroke sized to its own bounds. The package is independent from the
// session and the TUI; it couples to the rest of the application only
// through the Snapshotter interface. A platform window layer is the
// intended consumer: it constructs the Surface, feeds it bounds
// changes, and repaints from Paths each frame.
package overlay

import (
	"sync"

	"github.com/tomaslejdung/goscribble/pkg/distributor"
	"github.com/tomaslejdung/goscribble/pkg/geometry"
	"github.com/tomaslejdung/goscribble/pkg/protocol"
)

// Bounds is the overlay window's position and size on the screen, in
// pixels, matching the shared region underneath it.
type Bounds struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Size returns the drawable area of the bounds.
func (b Bounds) Size() geometry.Size {
	return geometry.Size{Width: b.Width, Height: b.Height}
}

// Snapshotter supplies the authoritative stroke state when the surface
// needs a full repaint. The session's store implements it.
type Snapshotter interface {
	Snapshot() []protocol.Stroke
}

// Path is one stroke ready to draw: pixel coordinates inside the
// overlay plus its style.
type Path struct {
	StrokeID string
	OwnerID  string
	Tool     string
	Color    string
	Width    float64
	Pixels   []float64 // x0, y0, x1, y1, ...
	Sealed   bool
}

// Surface is the overlay's drawing state. It is safe for concurrent
// use; the platform window reads Paths() each frame while the
// distributor goroutine applies changes.
type Surface struct {
	mu     sync.RWMutex
	bounds Bounds
	source Snapshotter

	paths map[string]*Path
	order []string

	clickThrough bool
	alwaysOnTop  bool

	cancel func()
	done   chan struct{}
}

// NewSurface creates a surface over the given screen region. The
// overlay is click-through and always on top so it never steals input
// from the application being shared.
func NewSurface(bounds Bounds, source Snapshotter) *Surface {
	return &Surface{
		bounds:       bounds,
		source:       source,
		paths:        make(map[string]*Path),
		clickThrough: true,
		alwaysOnTop:  true,
	}
}

// Attach subscribes the surface to the distributor and starts applying
// changes. Call Close to detach.
func (s *Surface) Attach(d *distributor.Distributor) {
	ch, cancel := d.Subscribe()
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range ch {
			s.applyChange(ev.Message)
		}
	}()
	s.Repaint()
}

// applyChange folds one change event into the pixel-space state.
// Anything that cannot be applied incrementally falls back to a full
// repaint from the snapshot source.
func (s *Surface) applyChange(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeStrokeAdd:
		s.mu.Lock()
		size := s.bounds.Size()
		path, ok := s.paths[msg.StrokeID]
		if !ok {
			path = &Path{
				StrokeID: msg.StrokeID,
				OwnerID:  msg.OwnerID,
				Tool:     msg.Tool,
				Color:    msg.Color,
				Width:    msg.Width,
			}
			s.paths[msg.StrokeID] = path
			s.order = append(s.order, msg.StrokeID)
		}
		path.Pixels = append(path.Pixels, geometry.DenormalizeBatch(msg.Points, size)...)
		s.mu.Unlock()
	case protocol.TypeStrokeEnd:
		s.mu.Lock()
		if path, ok := s.paths[msg.StrokeID]; ok {
			path.Sealed = true
		}
		s.mu.Unlock()
	case protocol.TypeStrokeDelete:
		s.mu.Lock()
		s.removeLocked(msg.StrokeID)
		s.mu.Unlock()
	case protocol.TypeClearAll:
		s.mu.Lock()
		s.paths = make(map[string]*Path)
		s.order = nil
		s.mu.Unlock()
	case protocol.TypeSyncState, protocol.TypeParticipantLeave:
		s.Repaint()
	}
}

func (s *Surface) removeLocked(strokeID string) {
	if _, ok := s.paths[strokeID]; !ok {
		return
	}
	delete(s.paths, strokeID)
	for i, id := range s.order {
		if id == strokeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Repaint rebuilds the pixel-space state from the snapshot source.
// Used after bounds changes and for changes that do not apply
// incrementally.
func (s *Surface) Repaint() {
	if s.source == nil {
		return
	}
	strokes := s.source.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.bounds.Size()
	s.paths = make(map[string]*Path, len(strokes))
	s.order = make([]string, 0, len(strokes))
	for i := range strokes {
		stroke := strokes[i]
		s.paths[stroke.StrokeID] = &Path{
			StrokeID: stroke.StrokeID,
			OwnerID:  stroke.OwnerID,
			Tool:     stroke.Tool,
			Color:    stroke.Color,
			Width:    stroke.Width,
			Pixels:   geometry.DenormalizeBatch(stroke.Points, size),
			Sealed:   stroke.Sealed,
		}
		s.order = append(s.order, stroke.StrokeID)
	}
}

// SetBounds moves or resizes the overlay and recomputes every path for
// the new dimensions.
func (s *Surface) SetBounds(bounds Bounds) {
	s.mu.Lock()
	s.bounds = bounds
	s.mu.Unlock()
	s.Repaint()
}

// GetBounds returns the current overlay bounds.
func (s *Surface) GetBounds() Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds
}

// Paths returns the strokes to draw, back-to-front.
func (s *Surface) Paths() []Path {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Path, 0, len(s.order))
	for _, id := range s.order {
		p := s.paths[id]
		cp := *p
		cp.Pixels = append([]float64(nil), p.Pixels...)
		out = append(out, cp)
	}
	return out
}

// SetClickThrough controls whether pointer events pass through the
// overlay to the window below.
func (s *Surface) SetClickThrough(enabled bool) {
	s.mu.Lock()
	s.clickThrough = enabled
	s.mu.Unlock()
}

// IsClickThrough reports the click-through state.
func (s *Surface) IsClickThrough() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clickThrough
}

// IsAlwaysOnTop reports whether the surface stays above other windows.
func (s *Surface) IsAlwaysOnTop() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alwaysOnTop
}

// Close detaches the surface from the distributor and waits for its
// apply goroutine to stop.
func (s *Surface) Close() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
