// Package annotate holds the per-peer stroke store. Every peer applies
// the same message stream to its own Store; because each message has a
// deterministic effect, peers that see the same sequence converge on
// the same state.
package annotate

import (
	"fmt"
	"log"
	"sync"

	"github.com/tomaslejdung/goscribble/pkg/geometry"
	"github.com/tomaslejdung/goscribble/pkg/protocol"
	"github.com/tomaslejdung/goscribble/pkg/role"
)

// ChangeSet reports what a message did to the store so render surfaces
// can repaint only what moved.
type ChangeSet struct {
	Added    []string // stroke IDs created
	Updated  []string // stroke IDs that gained points or were sealed
	Removed  []string // stroke IDs deleted
	Cleared  bool     // every stroke was removed
	Replaced bool     // state was replaced wholesale by a snapshot
}

// Empty reports whether the message changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0 &&
		!c.Cleared && !c.Replaced
}

// Store is the in-memory annotation state for one peer. The order
// slice preserves insertion order so strokes render back-to-front the
// same way on every surface.
type Store struct {
	mu      sync.RWMutex
	strokes map[string]*protocol.Stroke
	order   []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{strokes: make(map[string]*protocol.Stroke)}
}

// Apply validates the message against the sender's capabilities and
// mutates the store. Permission and lifecycle checks run before any
// state change; on error the store is untouched.
func (s *Store) Apply(msg protocol.Message, senderID string, senderRole role.Role) (ChangeSet, error) {
	if err := protocol.Validate(msg); err != nil {
		return ChangeSet{}, err
	}
	caps := role.CapabilitiesFor(senderRole)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case protocol.TypeStrokeAdd:
		return s.applyStrokeAdd(msg, senderID, caps)
	case protocol.TypeStrokeEnd:
		return s.applyStrokeEnd(msg)
	case protocol.TypeStrokeDelete:
		return s.applyStrokeDelete(msg, senderID, caps)
	case protocol.TypeClearAll:
		return s.applyClearAll(caps)
	case protocol.TypeSyncState:
		return s.applySyncState(msg)
	case protocol.TypeSyncRequest, protocol.TypeCursorMove:
		// handled by the session layer, no store effect
		return ChangeSet{}, nil
	case protocol.TypeParticipantLeave:
		return s.removeByOwner(msg.SenderID), nil
	default:
		return ChangeSet{}, fmt.Errorf("unhandled message type %q: %w", msg.Type, protocol.ErrProtocolViolation)
	}
}

func (s *Store) applyStrokeAdd(msg protocol.Message, senderID string, caps role.Capabilities) (ChangeSet, error) {
	if !caps.CanAnnotate {
		return ChangeSet{}, fmt.Errorf("stroke_add by %s: %w", senderID, protocol.ErrPermissionDenied)
	}
	owner := msg.OwnerID
	if owner == "" {
		owner = senderID
	}
	if owner != senderID && !caps.CanManageUsers {
		return ChangeSet{}, fmt.Errorf("stroke_add for foreign owner %s: %w", owner, protocol.ErrProtocolViolation)
	}

	if existing, ok := s.strokes[msg.StrokeID]; ok {
		if existing.Sealed {
			return ChangeSet{}, fmt.Errorf("stroke_add to sealed stroke %s: %w", msg.StrokeID, protocol.ErrProtocolViolation)
		}
		if existing.OwnerID != owner {
			return ChangeSet{}, fmt.Errorf("stroke_add owner mismatch on %s: %w", msg.StrokeID, protocol.ErrProtocolViolation)
		}
		existing.Points = append(existing.Points, msg.Points...)
		return ChangeSet{Updated: []string{msg.StrokeID}}, nil
	}

	tool := msg.Tool
	if tool == "" {
		tool = protocol.ToolPen
	}
	stroke := &protocol.Stroke{
		StrokeID:  msg.StrokeID,
		OwnerID:   owner,
		Tool:      tool,
		Color:     msg.Color,
		Width:     msg.Width,
		Points:    make([]geometry.Point, 0, len(msg.Points)),
		CreatedAt: msg.Timestamp,
	}
	stroke.Points = append(stroke.Points, msg.Points...)
	s.strokes[msg.StrokeID] = stroke
	s.order = append(s.order, msg.StrokeID)
	return ChangeSet{Added: []string{msg.StrokeID}}, nil
}

func (s *Store) applyStrokeEnd(msg protocol.Message) (ChangeSet, error) {
	stroke, ok := s.strokes[msg.StrokeID]
	if !ok {
		return ChangeSet{}, fmt.Errorf("stroke_end for unknown stroke %s: %w", msg.StrokeID, protocol.ErrResyncRequired)
	}
	if stroke.Sealed {
		return ChangeSet{}, nil
	}
	stroke.Sealed = true
	return ChangeSet{Updated: []string{msg.StrokeID}}, nil
}

func (s *Store) applyStrokeDelete(msg protocol.Message, senderID string, caps role.Capabilities) (ChangeSet, error) {
	stroke, ok := s.strokes[msg.StrokeID]
	if !ok {
		// already gone; deletes commute so this is fine
		return ChangeSet{}, nil
	}
	own := stroke.OwnerID == senderID
	if own && !caps.CanDeleteOwnStrokes || !own && !caps.CanDeleteAnyStroke {
		return ChangeSet{}, fmt.Errorf("stroke_delete %s by %s: %w", msg.StrokeID, senderID, protocol.ErrPermissionDenied)
	}
	s.remove(msg.StrokeID)
	return ChangeSet{Removed: []string{msg.StrokeID}}, nil
}

func (s *Store) applyClearAll(caps role.Capabilities) (ChangeSet, error) {
	if !caps.CanClearAll {
		return ChangeSet{}, fmt.Errorf("clear_all: %w", protocol.ErrPermissionDenied)
	}
	if len(s.strokes) == 0 {
		return ChangeSet{Cleared: true}, nil
	}
	log.Printf("Store: clearing %d strokes", len(s.strokes))
	s.strokes = make(map[string]*protocol.Stroke)
	s.order = nil
	return ChangeSet{Cleared: true}, nil
}

// applySyncState replaces local state with the snapshot. This is the
// recovery path after reconnect, so it runs with no permission check;
// whoever answers a sync_request is authoritative.
func (s *Store) applySyncState(msg protocol.Message) (ChangeSet, error) {
	s.strokes = make(map[string]*protocol.Stroke, len(msg.Strokes))
	s.order = make([]string, 0, len(msg.Strokes))
	for i := range msg.Strokes {
		stroke := msg.Strokes[i].Clone()
		if !validSnapshotStroke(stroke) {
			log.Printf("Store: dropping malformed snapshot entry %q", stroke.StrokeID)
			continue
		}
		if _, dup := s.strokes[stroke.StrokeID]; dup {
			continue
		}
		s.strokes[stroke.StrokeID] = &stroke
		s.order = append(s.order, stroke.StrokeID)
	}
	return ChangeSet{Replaced: true}, nil
}

// validSnapshotStroke filters malformed sync_state entries. The rest
// of the snapshot still applies.
func validSnapshotStroke(stroke protocol.Stroke) bool {
	if stroke.StrokeID == "" {
		return false
	}
	for _, p := range stroke.Points {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return false
		}
	}
	return true
}

// removeByOwner deletes every stroke a departed participant owned.
func (s *Store) removeByOwner(ownerID string) ChangeSet {
	var removed []string
	for id, stroke := range s.strokes {
		if stroke.OwnerID == ownerID {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		s.remove(id)
	}
	if len(removed) > 0 {
		log.Printf("Store: removed %d strokes from departed participant %s", len(removed), ownerID)
	}
	return ChangeSet{Removed: removed}
}

func (s *Store) remove(id string) {
	delete(s.strokes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns a deep copy of every stroke in render order.
func (s *Store) Snapshot() []protocol.Stroke {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Stroke, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.strokes[id].Clone())
	}
	return out
}

// Get returns a copy of one stroke.
func (s *Store) Get(id string) (protocol.Stroke, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stroke, ok := s.strokes[id]
	if !ok {
		return protocol.Stroke{}, false
	}
	return stroke.Clone(), true
}

// Len returns the stroke count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.strokes)
}

// Reset drops all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = make(map[string]*protocol.Stroke)
	s.order = nil
}
