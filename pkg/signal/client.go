package signal

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomaslejdung/goscribble/pkg/distributor"
	"github.com/tomaslejdung/goscribble/pkg/protocol"
	"github.com/tomaslejdung/goscribble/pkg/role"
)

// JoinInfo is what the relay assigned this client on join.
type JoinInfo struct {
	ParticipantID string
	Role          role.Role
	Room          string
	Participants  []Participant
}

// ControlHandler receives non-annotation envelopes: participant
// joins/leaves and WebRTC negotiation traffic.
type ControlHandler func(Envelope)

// RemoteChannel is a websocket connection to the relay. It implements
// the session Channel for annotation traffic and exposes control
// envelopes for peer negotiation.
type RemoteChannel struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	mu        sync.Mutex
	handlers  []func(protocol.Message)
	onControl ControlHandler
	closed    bool

	joined chan JoinInfo
	info   JoinInfo
}

var _ distributor.Channel = (*RemoteChannel)(nil)

// Dial connects to the relay and joins the room. relayURL is the HTTP
// or WS base, e.g. "ws://localhost:8080". Blocks until the relay
// confirms the join or the connection drops.
func Dial(relayURL, roomCode, password, name, wantRole, participantID string) (*RemoteChannel, error) {
	wsURL, err := relayWebsocketURL(relayURL, roomCode)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", wsURL, err)
	}

	joined := make(chan JoinInfo, 1)
	rc := &RemoteChannel{
		conn:   conn,
		joined: joined,
	}
	go rc.readLoop()

	join := Envelope{
		Type:          "join",
		Room:          roomCode,
		Role:          wantRole,
		Name:          name,
		Password:      password,
		ParticipantID: participantID,
	}
	if err := rc.write(join); err != nil {
		conn.Close()
		return nil, err
	}

	info, ok := <-joined
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("relay closed connection during join")
	}
	rc.info = info
	return rc, nil
}

// relayWebsocketURL turns a relay base URL into the ws endpoint for a
// room.
func relayWebsocketURL(relayURL, roomCode string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = "/ws/" + NormalizeRoomCode(roomCode)
	return u.String(), nil
}

// Info returns the identity and role the relay assigned.
func (rc *RemoteChannel) Info() JoinInfo {
	return rc.info
}

func (rc *RemoteChannel) readLoop() {
	defer func() {
		rc.mu.Lock()
		joined := rc.joined
		rc.joined = nil
		rc.mu.Unlock()
		if joined != nil {
			close(joined)
		}
	}()

	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			rc.mu.Lock()
			closed := rc.closed
			rc.mu.Unlock()
			if !closed {
				log.Printf("Relay read error: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Invalid relay message: %v", err)
			continue
		}
		rc.dispatch(env)
	}
}

func (rc *RemoteChannel) dispatch(env Envelope) {
	switch env.Type {
	case "joined":
		info := JoinInfo{
			ParticipantID: env.ParticipantID,
			Role:          role.Role(env.Role),
			Room:          env.Room,
			Participants:  env.Participants,
		}
		rc.mu.Lock()
		joined := rc.joined
		rc.joined = nil
		rc.mu.Unlock()
		if joined != nil {
			joined <- info
			close(joined)
		}
	case "annotation":
		if env.Annotation == nil {
			return
		}
		msg := *env.Annotation
		if msg.SenderID == "" {
			msg.SenderID = env.ParticipantID
		}
		rc.mu.Lock()
		handlers := append([]func(protocol.Message){}, rc.handlers...)
		rc.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
	case "password-required", "password-invalid":
		log.Printf("Relay: %s: %s", env.Type, env.Error)
		// a pending join can never succeed now
		rc.mu.Lock()
		joined := rc.joined
		rc.joined = nil
		rc.mu.Unlock()
		if joined != nil {
			close(joined)
		}
	default:
		rc.mu.Lock()
		onControl := rc.onControl
		rc.mu.Unlock()
		if onControl != nil {
			onControl(env)
		}
	}
}

// Publish sends an annotation message to the rest of the room.
func (rc *RemoteChannel) Publish(msg protocol.Message) error {
	return rc.PublishTo("", msg)
}

// PublishTo sends an annotation message to one member, e.g. a
// sync_state answer back to the requester. Empty target broadcasts.
func (rc *RemoteChannel) PublishTo(targetID string, msg protocol.Message) error {
	rc.mu.Lock()
	closed := rc.closed
	rc.mu.Unlock()
	if closed {
		return distributor.ErrChannelClosed
	}
	env := Envelope{Type: "annotation", TargetID: targetID, Annotation: &msg}
	return rc.write(env)
}

// SendControl forwards a negotiation envelope (offer/answer/ice).
func (rc *RemoteChannel) SendControl(env Envelope) error {
	return rc.write(env)
}

// Subscribe registers a handler for inbound annotation messages.
// Handlers run on the read goroutine, in arrival order.
func (rc *RemoteChannel) Subscribe(handler func(protocol.Message)) {
	rc.mu.Lock()
	rc.handlers = append(rc.handlers, handler)
	rc.mu.Unlock()
}

// SetControlHandler registers the handler for control envelopes.
func (rc *RemoteChannel) SetControlHandler(h ControlHandler) {
	rc.mu.Lock()
	rc.onControl = h
	rc.mu.Unlock()
}

func (rc *RemoteChannel) write(env Envelope) error {
	rc.connMu.Lock()
	defer rc.connMu.Unlock()
	if err := rc.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

// Close tears down the relay connection.
func (rc *RemoteChannel) Close() error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	rc.mu.Unlock()

	rc.connMu.Lock()
	rc.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	rc.connMu.Unlock()
	return rc.conn.Close()
}
