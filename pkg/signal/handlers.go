package signal

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomaslejdung/goscribble/pkg/role"
)

// readPump reads messages from the WebSocket until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		c.handleMessage(env)
	}
}

// writePump sends queued messages to the WebSocket.
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
}

// handleMessage routes one inbound envelope.
func (c *Client) handleMessage(env Envelope) {
	room := c.server.getOrCreateRoom(c.room)

	switch env.Type {
	case "join":
		c.handleJoin(room, env)
	case "annotation":
		c.relayAnnotation(room, env)
	case "offer", "answer", "ice":
		c.forwardTo(room, env)
	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}

// handleJoin admits a client to the room and assigns its role. The
// first member becomes host; a member asking for the sharer role gets
// it if nobody holds it; everyone else is an annotator unless they
// asked to be a viewer.
func (c *Client) handleJoin(room *Room, env Envelope) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.password != "" && env.Password != room.password {
		errType := "password-required"
		if env.Password != "" {
			errType = "password-invalid"
		}
		data, _ := json.Marshal(Envelope{Type: errType, Error: "room is password protected"})
		c.send <- data
		return
	}

	c.participantID = env.ParticipantID
	if c.participantID == "" {
		c.participantID = uuid.NewString()
	}
	c.name = env.Name
	if c.name == "" {
		c.name = c.participantID[:8]
	}

	switch {
	case !room.hasHost:
		c.role = role.Host
		room.hasHost = true
		if env.Password != "" {
			room.password = env.Password
			log.Printf("Relay: %s hosts room %s (password protected)", c.participantID, room.code)
		} else {
			log.Printf("Relay: %s hosts room %s", c.participantID, room.code)
		}
	case env.Role == string(role.Sharer) && !room.hasShare:
		c.role = role.Sharer
		room.hasShare = true
	case env.Role == string(role.Viewer):
		c.role = role.Viewer
	default:
		c.role = role.Annotator
	}

	c.joined = true
	room.clients[c] = true

	confirm := Envelope{
		Type:          "joined",
		Room:          room.code,
		Role:          string(c.role),
		ParticipantID: c.participantID,
		Participants:  room.roster(),
	}
	data, _ := json.Marshal(confirm)
	c.send <- data

	notify := Envelope{
		Type:          "participant-joined",
		ParticipantID: c.participantID,
		Name:          c.name,
		Role:          string(c.role),
	}
	notifyData, _ := json.Marshal(notify)
	for member := range room.clients {
		if member == c {
			continue
		}
		select {
		case member.send <- notifyData:
		default:
		}
	}
	log.Printf("Relay: %s joined room %s as %s (%d members)", c.participantID, room.code, c.role, len(room.clients))
}

// relayAnnotation fans an annotation message out to the other members,
// or to a single member when TargetID is set (sync_state answers go
// straight to the requester).
func (c *Client) relayAnnotation(room *Room, env Envelope) {
	if !c.joined || env.Annotation == nil {
		return
	}
	env.ParticipantID = c.participantID
	env.Role = string(c.role)
	c.forwardTo(room, env)
}

// forwardTo delivers an envelope to env.TargetID, or to every other
// member when no target is set.
func (c *Client) forwardTo(room *Room, env Envelope) {
	if !c.joined {
		return
	}
	if env.ParticipantID == "" {
		env.ParticipantID = c.participantID
	}
	data, _ := json.Marshal(env)

	room.mu.RLock()
	defer room.mu.RUnlock()

	if env.TargetID != "" {
		for member := range room.clients {
			if member.participantID == env.TargetID {
				select {
				case member.send <- data:
				default:
				}
				return
			}
		}
		return
	}

	for member := range room.clients {
		if member == c {
			continue
		}
		select {
		case member.send <- data:
		default:
			// member buffer full, skip
		}
	}
}
