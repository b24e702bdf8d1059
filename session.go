package main

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomaslejdung/goscribble/pkg/annotate"
	"github.com/tomaslejdung/goscribble/pkg/distributor"
	"github.com/tomaslejdung/goscribble/pkg/geometry"
	"github.com/tomaslejdung/goscribble/pkg/input"
	"github.com/tomaslejdung/goscribble/pkg/protocol"
	"github.com/tomaslejdung/goscribble/pkg/role"
	sig "github.com/tomaslejdung/goscribble/pkg/signal"
	"github.com/tomaslejdung/goscribble/pkg/transport"
)

// Cursor is a remote participant's pointer position.
type Cursor struct {
	ParticipantID string
	X, Y          float64
	Visible       bool
}

// SessionEvent tells the TUI something changed.
type SessionEvent struct {
	Kind        string // "change", "roster", "cursor", "error"
	Description string
}

// Session ties the store, input capture, local distributor, relay and
// peer transport together for one participant.
type Session struct {
	store   *annotate.Store
	dist    *distributor.Distributor
	relay   *sig.RemoteChannel
	peers   *transport.Manager
	capture *input.Capture

	participantID string
	role          role.Role
	roomCode      string

	mu      sync.RWMutex
	roster  map[string]sig.Participant
	cursors map[string]Cursor
	// peers with an open data channel; annotation traffic to them
	// skips the relay
	direct map[string]bool

	seq          uint64
	events       chan SessionEvent
	eventsClosed bool
	closeOnce    sync.Once

	// armed after a sync_request; cleared when a sync_state applies
	syncTimer   *time.Timer
	syncTimeout time.Duration
}

// DefaultSyncTimeout bounds how long a sync_request may go unanswered
// before the session reports it.
const DefaultSyncTimeout = 5 * time.Second

// SessionConfig is everything needed to join or host a room.
type SessionConfig struct {
	RelayURL string
	RoomCode string
	Password string
	Name     string
	WantRole string
	Surface  geometry.Size

	STUNServer string
	ForceRelay bool

	// SyncTimeout overrides DefaultSyncTimeout when positive.
	SyncTimeout time.Duration
}

// NewSession joins the room and starts the message loops. Blocks until
// the relay accepts the join.
func NewSession(cfg SessionConfig) (*Session, error) {
	relay, err := sig.Dial(cfg.RelayURL, cfg.RoomCode, cfg.Password, cfg.Name, cfg.WantRole, "")
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	info := relay.Info()

	s := &Session{
		store:         annotate.NewStore(),
		dist:          distributor.New(),
		relay:         relay,
		peers:         transport.NewManager(cfg.STUNServer, cfg.ForceRelay),
		participantID: info.ParticipantID,
		role:          info.Role,
		roomCode:      info.Room,
		roster:        make(map[string]sig.Participant),
		cursors:       make(map[string]Cursor),
		direct:        make(map[string]bool),
		events:        make(chan SessionEvent, 64),
		syncTimeout:   cfg.SyncTimeout,
	}
	if s.syncTimeout <= 0 {
		s.syncTimeout = DefaultSyncTimeout
	}
	for _, p := range info.Participants {
		if p.ParticipantID != info.ParticipantID {
			s.roster[p.ParticipantID] = p
		}
	}

	s.capture = input.New(info.ParticipantID, cfg.Surface, s.publishLocal)

	relay.Subscribe(func(msg protocol.Message) {
		s.handleInbound(msg.SenderID, msg)
	})
	relay.SetControlHandler(s.handleControl)

	s.peers.Subscribe(func(from string, msg protocol.Message) {
		s.handleInbound(from, msg)
	})
	s.peers.OnICECandidate(func(peerID, candidate string) {
		s.relay.SendControl(sig.Envelope{Type: "ice", TargetID: peerID, Candidate: candidate})
	})
	s.peers.OnConnected(func(peerID string) {
		s.mu.Lock()
		s.direct[peerID] = true
		s.mu.Unlock()
		s.emitEvent("roster", fmt.Sprintf("direct channel to %s", s.displayName(peerID)))
	})
	s.peers.OnDisconnect(func(peerID string) {
		s.mu.Lock()
		delete(s.direct, peerID)
		s.mu.Unlock()
	})

	// late joiners pull state from whoever is already there
	if len(s.roster) > 0 {
		s.RequestSync()
	}

	return s, nil
}

// Capture returns the input capture feeding this session.
func (s *Session) Capture() *input.Capture {
	return s.capture
}

// Store returns the session's stroke store.
func (s *Session) Store() *annotate.Store {
	return s.store
}

// Distributor returns the fan-out feeding local render surfaces.
func (s *Session) Distributor() *distributor.Distributor {
	return s.dist
}

// Events returns the TUI notification channel.
func (s *Session) Events() <-chan SessionEvent {
	return s.events
}

// ParticipantID returns this member's identity.
func (s *Session) ParticipantID() string { return s.participantID }

// Role returns the role the relay assigned.
func (s *Session) Role() role.Role { return s.role }

// RoomCode returns the joined room's code.
func (s *Session) RoomCode() string { return s.roomCode }

// Roster returns the other room members.
func (s *Session) Roster() []sig.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sig.Participant, 0, len(s.roster))
	for _, p := range s.roster {
		out = append(out, p)
	}
	return out
}

// Cursors returns the visible remote cursors.
func (s *Session) Cursors() []Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}

// publishLocal applies a locally captured message and sends it out.
// Called synchronously from the input capture.
func (s *Session) publishLocal(msg protocol.Message) {
	if msg.Type != protocol.TypeCursorMove {
		cs, err := s.store.Apply(msg, s.participantID, s.role)
		if err != nil {
			s.emitEvent("error", err.Error())
			return
		}
		s.fanOut(msg, cs)
	}
	s.send(msg)
}

// ClearAll clears every stroke, local and remote.
func (s *Session) ClearAll() error {
	msg := protocol.NewClearAll(s.participantID)
	cs, err := s.store.Apply(msg, s.participantID, s.role)
	if err != nil {
		return err
	}
	s.fanOut(msg, cs)
	s.send(msg)
	return nil
}

// RequestSync asks the room for a fresh authoritative snapshot. If no
// sync_state arrives before the timeout, a non-fatal event is emitted
// and the local state is left as it was; the request can be repeated.
func (s *Session) RequestSync() {
	if err := s.relay.Publish(protocol.NewSyncRequest(s.participantID)); err != nil {
		log.Printf("Session: sync request failed: %v", err)
		return
	}
	s.armSyncWait()
}

func (s *Session) armSyncWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncTimer != nil {
		s.syncTimer.Stop()
	}
	s.syncTimer = time.AfterFunc(s.syncTimeout, func() {
		log.Printf("Session: no state sync arrived within %s", s.syncTimeout)
		s.emitEvent("error", "no state sync arrived; request one again")
	})
}

func (s *Session) clearSyncWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
}

// DeleteStroke removes one stroke, local and remote.
func (s *Session) DeleteStroke(strokeID string) error {
	msg := protocol.NewStrokeDelete(s.participantID, strokeID)
	cs, err := s.store.Apply(msg, s.participantID, s.role)
	if err != nil {
		return err
	}
	s.fanOut(msg, cs)
	s.dist.Forget(strokeID)
	s.send(msg)
	return nil
}

// send routes a message to each member: the data channel when one is
// open, the relay otherwise.
func (s *Session) send(msg protocol.Message) {
	s.mu.RLock()
	var viaRelay []string
	var viaDirect []string
	for id := range s.roster {
		if s.direct[id] {
			viaDirect = append(viaDirect, id)
		} else {
			viaRelay = append(viaRelay, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range viaDirect {
		if err := s.peers.SendTo(id, msg); err != nil {
			log.Printf("Session: direct send to %s failed, falling back to relay: %v", id, err)
			viaRelay = append(viaRelay, id)
		}
	}
	for _, id := range viaRelay {
		if err := s.relay.PublishTo(id, msg); err != nil {
			log.Printf("Session: relay send to %s failed: %v", id, err)
		}
	}
}

// handleInbound applies a remote message to the local store and fans
// the change out to render surfaces.
func (s *Session) handleInbound(from string, msg protocol.Message) {
	if from == s.participantID {
		return
	}
	switch msg.Type {
	case protocol.TypeCursorMove:
		s.mu.Lock()
		s.cursors[from] = Cursor{ParticipantID: from, X: msg.X, Y: msg.Y, Visible: msg.Visible}
		s.mu.Unlock()
		s.emitEvent("cursor", "")
		return
	case protocol.TypeSyncRequest:
		// the host answers state requests; everyone else stays quiet
		// so the requester gets exactly one authoritative snapshot
		if s.role == role.Host {
			reply := protocol.NewSyncState(s.participantID, s.store.Snapshot())
			if err := s.relay.PublishTo(from, reply); err != nil {
				log.Printf("Session: sync answer to %s failed: %v", from, err)
			}
		}
		return
	}

	cs, err := s.store.Apply(msg, from, s.senderRole(from))
	if err != nil {
		log.Printf("Session: rejected %s from %s: %v", msg.Type, from, err)
		s.emitEvent("error", err.Error())
		return
	}
	if msg.Type == protocol.TypeSyncState {
		s.clearSyncWait()
	}
	s.fanOut(msg, cs)
	s.emitEvent("change", fmt.Sprintf("%s from %s", msg.Type, s.displayName(from)))
}

// fanOut delivers an applied change to the local render surfaces.
func (s *Session) fanOut(msg protocol.Message, cs annotate.ChangeSet) {
	if cs.Empty() {
		return
	}
	seq := atomic.AddUint64(&s.seq, 1)
	s.dist.Publish(distributor.ChangeEvent{Seq: seq, StrokeID: msg.StrokeID, Message: msg})
	for _, id := range cs.Removed {
		s.dist.Forget(id)
	}
}

// handleControl processes relay control envelopes: roster changes and
// WebRTC negotiation.
func (s *Session) handleControl(env sig.Envelope) {
	switch env.Type {
	case "participant-joined":
		s.mu.Lock()
		s.roster[env.ParticipantID] = sig.Participant{
			ParticipantID: env.ParticipantID,
			Name:          env.Name,
			Role:          env.Role,
		}
		s.mu.Unlock()
		s.emitEvent("roster", fmt.Sprintf("%s joined as %s", env.Name, env.Role))

		// the host opens a data channel toward every new member
		if s.role == role.Host {
			go s.offerDirect(env.ParticipantID)
		}
	case "participant-left":
		s.mu.Lock()
		delete(s.roster, env.ParticipantID)
		delete(s.cursors, env.ParticipantID)
		delete(s.direct, env.ParticipantID)
		s.mu.Unlock()

		leave := protocol.NewParticipantLeave(env.ParticipantID)
		if cs, err := s.store.Apply(leave, env.ParticipantID, role.Viewer); err == nil {
			s.fanOut(leave, cs)
		}
		s.emitEvent("roster", fmt.Sprintf("%s left", env.Name))
	case "offer":
		answer, err := s.peers.HandleOffer(env.ParticipantID, env.SDP)
		if err != nil {
			log.Printf("Session: offer from %s: %v", env.ParticipantID, err)
			return
		}
		s.relay.SendControl(sig.Envelope{Type: "answer", TargetID: env.ParticipantID, SDP: answer})
	case "answer":
		if err := s.peers.HandleAnswer(env.ParticipantID, env.SDP); err != nil {
			log.Printf("Session: answer from %s: %v", env.ParticipantID, err)
		}
	case "ice":
		if err := s.peers.AddICECandidate(env.ParticipantID, env.Candidate); err != nil {
			log.Printf("Session: ice from %s: %v", env.ParticipantID, err)
		}
	}
}

func (s *Session) offerDirect(peerID string) {
	offer, err := s.peers.CreateOffer(peerID)
	if err != nil {
		log.Printf("Session: offer to %s: %v", peerID, err)
		return
	}
	s.relay.SendControl(sig.Envelope{Type: "offer", TargetID: peerID, SDP: offer})
}

func (s *Session) senderRole(participantID string) role.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.roster[participantID]; ok {
		if r, err := role.ParseRole(p.Role); err == nil {
			return r
		}
	}
	return role.Viewer
}

func (s *Session) displayName(participantID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.roster[participantID]; ok && p.Name != "" {
		return p.Name
	}
	if len(participantID) >= 8 {
		return participantID[:8]
	}
	return participantID
}

// emitEvent notifies the TUI without ever blocking a message loop.
func (s *Session) emitEvent(kind, description string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- SessionEvent{Kind: kind, Description: description}:
	default:
	}
}

// Close leaves the room and tears everything down.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.peers.Close()
		s.dist.Close()
		err = s.relay.Close()
		s.mu.Lock()
		if s.syncTimer != nil {
			s.syncTimer.Stop()
			s.syncTimer = nil
		}
		s.eventsClosed = true
		close(s.events)
		s.mu.Unlock()
		// strokes belong to the room, not the binary; a later join
		// must start from an empty replica
		s.store.Reset()
	})
	return err
}
