// Package input turns raw pointer events from the capture surface into
// annotation protocol messages. It is deliberately thin: no buffering,
// no rendering, just coordinate normalization and stroke lifecycle.
// The platform window layer drives it with mouse and tablet events;
// the session exposes it through Session.Capture.
package input

import (
	"fmt"
	"sync"

	"github.com/tomaslejdung/goscribble/pkg/geometry"
	"github.com/tomaslejdung/goscribble/pkg/protocol"
)

// Emitter receives the messages the capture produces, in order.
type Emitter func(protocol.Message)

// Capture tracks one participant's pointer and emits stroke messages.
type Capture struct {
	mu      sync.Mutex
	emit    Emitter
	ownerID string
	surface geometry.Size

	// active stroke, zero value when the pointer is up
	strokeID string
	tool     string
	color    string
	width    float64
}

// New returns a capture for the participant. The emitter is invoked
// synchronously from the pointer event callbacks.
func New(ownerID string, surface geometry.Size, emit Emitter) *Capture {
	return &Capture{emit: emit, ownerID: ownerID, surface: surface}
}

// SetSurface updates the capture surface dimensions, e.g. after the
// shared window is resized or moved.
func (c *Capture) SetSurface(s geometry.Size) {
	c.mu.Lock()
	c.surface = s
	c.mu.Unlock()
}

// BeginStroke starts a new stroke with the given style and returns its
// ID. An unfinished previous stroke is sealed first.
func (c *Capture) BeginStroke(tool, color string, width float64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.strokeID != "" {
		c.emit(protocol.NewStrokeEnd(c.ownerID, c.strokeID))
	}
	if tool == "" {
		tool = protocol.ToolPen
	}
	c.strokeID = protocol.NewStrokeID()
	c.tool = tool
	c.color = color
	c.width = width
	return c.strokeID
}

// MovePointer records a pointer position in surface pixels. With a
// stroke active it emits a stroke_add carrying the new point; with the
// pointer up it emits a cursor_move so remote peers can show the
// cursor. Pressure <= 0 means the device reports none.
func (c *Capture) MovePointer(px, py, pressure float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := geometry.FromPointer(px, py, pressure, c.surface)
	if err != nil {
		return fmt.Errorf("pointer at (%g, %g): %w", px, py, err)
	}
	if c.strokeID == "" {
		c.emit(protocol.NewCursorMove(c.ownerID, p.X, p.Y, true))
		return nil
	}
	c.emit(protocol.NewStrokeAdd(c.ownerID, c.strokeID, c.tool, c.color, c.width, []geometry.Point{p}))
	return nil
}

// EndStroke seals the active stroke. Calling it with no active stroke
// is a no-op.
func (c *Capture) EndStroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.strokeID == "" {
		return
	}
	c.emit(protocol.NewStrokeEnd(c.ownerID, c.strokeID))
	c.strokeID = ""
}

// PointerLeft reports the cursor leaving the surface.
func (c *Capture) PointerLeft() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit(protocol.NewCursorMove(c.ownerID, 0, 0, false))
}

// Active reports whether a stroke is in progress.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strokeID != ""
}
