// Package signal implements the annotation relay: a WebSocket server
// that routes annotation and negotiation messages between the members
// of a room, plus the client used to reach it. The relay never
// inspects stroke contents; all annotation semantics live in the
// peers' stores.
package signal

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomaslejdung/goscribble/pkg/role"
)

// Client is one connected room member.
type Client struct {
	conn          *websocket.Conn
	room          string
	role          role.Role
	participantID string
	name          string
	send          chan []byte
	server        *Server
	joined        bool
}

// Room holds the members of one session.
type Room struct {
	code     string
	password string
	hasHost  bool
	hasShare bool
	clients  map[*Client]bool
	mu       sync.RWMutex
}

// Server manages rooms and WebSocket routing.
type Server struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// NewServer creates an empty relay.
func NewServer() *Server {
	return &Server{
		rooms: make(map[string]*Room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// getOrCreateRoom returns the existing room or creates a new one.
func (s *Server) getOrCreateRoom(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = NormalizeRoomCode(code)
	if room, exists := s.rooms[code]; exists {
		return room
	}
	room := &Room{
		code:    code,
		clients: make(map[*Client]bool),
	}
	s.rooms[code] = room
	return room
}

// removeClient drops a client from its room and tells the remaining
// members, so their stores can discard the departed participant's
// strokes.
func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[client.room]
	if !exists {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.clients[client] {
		return
	}
	delete(room.clients, client)
	if client.role == role.Host {
		room.hasHost = false
	}
	if client.role == role.Sharer {
		room.hasShare = false
	}

	if client.joined {
		leave := Envelope{Type: "participant-left", ParticipantID: client.participantID, Name: client.name}
		data, _ := json.Marshal(leave)
		for member := range room.clients {
			select {
			case member.send <- data:
			default:
			}
		}
		log.Printf("Relay: %s left room %s (%d remaining)", client.participantID, room.code, len(room.clients))
	}

	if len(room.clients) == 0 {
		delete(s.rooms, client.room)
		log.Printf("Relay: room %s closed", room.code)
	}
}

// HandleWebSocket upgrades /ws/{room-code} connections.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/ws/")
	roomCode := NormalizeRoomCode(path)

	if roomCode == "" || !ValidateRoomCode(roomCode) {
		http.Error(w, "Invalid room code", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		room:   roomCode,
		send:   make(chan []byte, 256),
		server: s,
	}

	go client.writePump()
	go client.readPump()
}

// StartServer runs the relay HTTP server. Blocks.
func (s *Server) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("Relay starting on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// ParticipantCount returns the number of members in a room.
func (s *Server) ParticipantCount(roomCode string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[NormalizeRoomCode(roomCode)]
	if !exists {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.clients)
}

// roster returns the joined members. Caller holds room.mu.
func (room *Room) roster() []Participant {
	out := make([]Participant, 0, len(room.clients))
	for member := range room.clients {
		if !member.joined {
			continue
		}
		out = append(out, Participant{
			ParticipantID: member.participantID,
			Name:          member.name,
			Role:          string(member.role),
		})
	}
	return out
}
