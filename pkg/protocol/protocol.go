// Package protocol defines the annotation wire format shared by every
// peer in a session. Messages are JSON-encoded and carried over
// whatever channel the session uses (loopback, websocket relay, or a
// WebRTC data channel); the semantics are identical on each.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomaslejdung/goscribble/pkg/geometry"
)

// Message types. Every annotation event on the wire is one of these.
const (
	TypeStrokeAdd        = "stroke_add"        // incremental point batch for a stroke
	TypeStrokeEnd        = "stroke_end"        // seal a stroke, no further points
	TypeStrokeDelete     = "stroke_delete"     // remove one stroke
	TypeClearAll         = "clear_all"         // remove every stroke
	TypeSyncRequest      = "sync_request"      // ask a peer for full state
	TypeSyncState        = "sync_state"        // authoritative full-state snapshot
	TypeCursorMove       = "cursor_move"       // remote cursor position update
	TypeParticipantLeave = "participant_leave" // participant left, drop their strokes
)

// Drawing tools. The tool changes how a stroke is rendered, not how it
// is synchronized.
const (
	ToolPen         = "pen"
	ToolHighlighter = "highlighter"
	ToolEraser      = "eraser"
)

// Palette is the default set of annotation colors offered to
// participants, as #RRGGBBAA.
var Palette = []string{
	"#FF3B30FF", // red
	"#FF9500FF", // orange
	"#FFCC00FF", // yellow
	"#34C759FF", // green
	"#007AFFFF", // blue
	"#AF52DEFF", // purple
}

// Sentinel errors for message handling. Callers test with errors.Is.
var (
	// ErrPermissionDenied means the sender's role does not allow the
	// operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProtocolViolation means the message is malformed or breaks a
	// lifecycle rule, such as appending to a sealed stroke.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrResyncRequired means local state has diverged and the peer
	// should request a full snapshot.
	ErrResyncRequired = errors.New("resync required")
)

// Stroke is a single freehand annotation. Points are normalized to the
// unit square; CreatedAt is unix milliseconds so ordering survives
// JSON round trips without timezone trouble.
type Stroke struct {
	StrokeID  string           `json:"strokeId"`
	OwnerID   string           `json:"ownerId"`
	Tool      string           `json:"tool"`
	Color     string           `json:"color"`
	Width     float64          `json:"width"`
	Points    []geometry.Point `json:"points"`
	CreatedAt int64            `json:"createdAt"`
	Sealed    bool             `json:"sealed"`
}

// Clone returns a deep copy of the stroke.
func (s *Stroke) Clone() Stroke {
	c := *s
	c.Points = make([]geometry.Point, len(s.Points))
	copy(c.Points, s.Points)
	return c
}

// Message is the annotation protocol envelope.
type Message struct {
	Type     string `json:"type"`               // one of the Type* constants
	SenderID string `json:"senderId,omitempty"` // participant that produced the message
	StrokeID string `json:"strokeId,omitempty"` // target stroke for stroke_* messages

	// stroke_add fields
	OwnerID string           `json:"ownerId,omitempty"`
	Tool    string           `json:"tool,omitempty"`
	Color   string           `json:"color,omitempty"`
	Width   float64          `json:"width,omitempty"`
	Points  []geometry.Point `json:"points,omitempty"`

	// sync_state payload
	Strokes []Stroke `json:"strokes,omitempty"`

	// cursor_move fields
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Visible bool    `json:"visible,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"` // unix millis at send time
}

// NewStrokeID returns a fresh stroke identifier.
func NewStrokeID() string {
	return uuid.NewString()
}

// NewParticipantID returns a fresh participant identifier.
func NewParticipantID() string {
	return uuid.NewString()
}

func now() int64 {
	return time.Now().UnixMilli()
}

// NewStrokeAdd builds a stroke_add carrying a batch of points for the
// given stroke. The first stroke_add for a strokeId creates the stroke;
// later ones append points.
func NewStrokeAdd(senderID, strokeID, tool, color string, width float64, points []geometry.Point) Message {
	return Message{
		Type:      TypeStrokeAdd,
		SenderID:  senderID,
		StrokeID:  strokeID,
		OwnerID:   senderID,
		Tool:      tool,
		Color:     color,
		Width:     width,
		Points:    points,
		Timestamp: now(),
	}
}

// NewStrokeEnd builds a stroke_end sealing the stroke.
func NewStrokeEnd(senderID, strokeID string) Message {
	return Message{Type: TypeStrokeEnd, SenderID: senderID, StrokeID: strokeID, Timestamp: now()}
}

// NewStrokeDelete builds a stroke_delete for the stroke.
func NewStrokeDelete(senderID, strokeID string) Message {
	return Message{Type: TypeStrokeDelete, SenderID: senderID, StrokeID: strokeID, Timestamp: now()}
}

// NewClearAll builds a clear_all.
func NewClearAll(senderID string) Message {
	return Message{Type: TypeClearAll, SenderID: senderID, Timestamp: now()}
}

// NewSyncRequest builds a sync_request.
func NewSyncRequest(senderID string) Message {
	return Message{Type: TypeSyncRequest, SenderID: senderID, Timestamp: now()}
}

// NewSyncState builds a sync_state carrying a full snapshot.
func NewSyncState(senderID string, strokes []Stroke) Message {
	return Message{Type: TypeSyncState, SenderID: senderID, Strokes: strokes, Timestamp: now()}
}

// NewCursorMove builds a cursor_move with a normalized position.
func NewCursorMove(senderID string, x, y float64, visible bool) Message {
	return Message{Type: TypeCursorMove, SenderID: senderID, X: x, Y: y, Visible: visible, Timestamp: now()}
}

// NewParticipantLeave builds a participant_leave for the participant.
func NewParticipantLeave(participantID string) Message {
	return Message{Type: TypeParticipantLeave, SenderID: participantID, Timestamp: now()}
}

// Encode serializes the message for the wire.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message and validates it.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode: %v: %w", err, ErrProtocolViolation)
	}
	if err := Validate(m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the structural rules a message must satisfy before
// it can be applied to any store.
func Validate(m Message) error {
	switch m.Type {
	case TypeStrokeAdd:
		if m.StrokeID == "" {
			return fmt.Errorf("stroke_add without strokeId: %w", ErrProtocolViolation)
		}
		// an empty point batch is legal: it creates the stroke, which
		// renders nothing until extended
		for _, p := range m.Points {
			if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
				return fmt.Errorf("stroke_add %s with point outside unit square: %w", m.StrokeID, ErrProtocolViolation)
			}
		}
	case TypeStrokeEnd, TypeStrokeDelete:
		if m.StrokeID == "" {
			return fmt.Errorf("%s without strokeId: %w", m.Type, ErrProtocolViolation)
		}
	case TypeClearAll, TypeSyncRequest, TypeSyncState, TypeCursorMove:
		// no required fields beyond the type
	case TypeParticipantLeave:
		if m.SenderID == "" {
			return fmt.Errorf("participant_leave without senderId: %w", ErrProtocolViolation)
		}
	default:
		return fmt.Errorf("unknown message type %q: %w", m.Type, ErrProtocolViolation)
	}
	return nil
}

// ValidColor reports whether c looks like a #RRGGBBAA color.
func ValidColor(c string) bool {
	if len(c) != 9 || c[0] != '#' {
		return false
	}
	for _, r := range c[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
