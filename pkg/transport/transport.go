// Package transport carries annotation traffic directly between peers
// over WebRTC data channels. The relay only brokers the SDP/ICE
// handshake; once a channel opens, strokes flow peer to peer with no
// server in the path.
package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/tomaslejdung/goscribble/pkg/protocol"
)

// channelLabel names the annotation data channel on every connection.
const channelLabel = "annotations"

// Peer is one remote participant's connection and its data channel.
type Peer struct {
	ID      string
	pc      *webrtc.PeerConnection
	channel *webrtc.DataChannel
	mu      sync.Mutex
}

// send writes one encoded message to the peer, if its channel is open.
func (p *Peer) send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || p.channel.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("peer %s: data channel not open", p.ID)
	}
	return p.channel.Send(data)
}

// Manager owns the peer connections for one session member.
type Manager struct {
	config webrtc.Configuration

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers []func(from string, msg protocol.Message)

	onICE        func(peerID, candidate string)
	onConnected  func(peerID string)
	onDisconnect func(peerID string)
	closed       bool
}

// NewManager creates a manager using the given STUN server. With
// relayOnly set, only TURN relay candidates are used; direct traffic
// never leaves the relay, which helps on hostile NATs.
func NewManager(stunServer string, relayOnly bool) *Manager {
	config := webrtc.Configuration{}
	if stunServer != "" {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: []string{stunServer}},
		}
	}
	if relayOnly {
		config.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return &Manager{
		config: config,
		peers:  make(map[string]*Peer),
	}
}

// OnICECandidate sets the callback for locally gathered candidates.
// The session forwards them to the peer through the relay.
func (m *Manager) OnICECandidate(fn func(peerID, candidate string)) {
	m.onICE = fn
}

// OnConnected sets the callback for a peer's channel opening.
func (m *Manager) OnConnected(fn func(peerID string)) {
	m.onConnected = fn
}

// OnDisconnect sets the callback for a peer going away.
func (m *Manager) OnDisconnect(fn func(peerID string)) {
	m.onDisconnect = fn
}

// Subscribe registers a handler for messages from any peer.
func (m *Manager) Subscribe(handler func(from string, msg protocol.Message)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()
}

// CreateOffer opens a connection toward a peer, attaches the
// annotation channel, and returns the local SDP once ICE gathering
// completes.
func (m *Manager) CreateOffer(peerID string) (string, error) {
	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create data channel: %w", err)
	}

	peer := &Peer{ID: peerID, pc: pc}
	m.wireDataChannel(peer, dc)
	m.wirePeerConnection(peer)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	m.mu.Lock()
	m.peers[peerID] = peer
	m.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// HandleOffer answers an inbound offer and returns the local SDP. The
// offerer owns the data channel; we pick it up in OnDataChannel.
func (m *Manager) HandleOffer(peerID, sdp string) (string, error) {
	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	peer := &Peer{ID: peerID, pc: pc}
	m.wirePeerConnection(peer)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			return
		}
		m.wireDataChannel(peer, dc)
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	m.mu.Lock()
	m.peers[peerID] = peer
	m.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// HandleAnswer completes negotiation started by CreateOffer.
func (m *Manager) HandleAnswer(peerID, sdp string) error {
	m.mu.RLock()
	peer, exists := m.peers[peerID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("peer not found: %s", peerID)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	return peer.pc.SetRemoteDescription(answer)
}

// AddICECandidate feeds a trickled remote candidate to the peer.
func (m *Manager) AddICECandidate(peerID, candidateJSON string) error {
	m.mu.RLock()
	peer, exists := m.peers[peerID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("peer not found: %s", peerID)
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	return peer.pc.AddICECandidate(candidate)
}

// Broadcast sends a message to every connected peer. Peers whose
// channel is not open yet are skipped; they will catch up through a
// sync once the channel opens.
func (m *Manager) Broadcast(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	m.mu.RLock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.RUnlock()

	for _, p := range peers {
		if err := p.send(data); err != nil {
			log.Printf("Transport: %v", err)
		}
	}
	return nil
}

// SendTo delivers a message to one peer.
func (m *Manager) SendTo(peerID string, msg protocol.Message) error {
	m.mu.RLock()
	peer, exists := m.peers[peerID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("peer not found: %s", peerID)
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return peer.send(data)
}

func (m *Manager) wireDataChannel(peer *Peer, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		peer.mu.Lock()
		peer.channel = dc
		peer.mu.Unlock()
		log.Printf("Transport: channel to %s open", peer.ID)
		if m.onConnected != nil {
			m.onConnected(peer.ID)
		}
	})
	dc.OnMessage(func(raw webrtc.DataChannelMessage) {
		msg, err := protocol.Decode(raw.Data)
		if err != nil {
			log.Printf("Transport: bad message from %s: %v", peer.ID, err)
			return
		}
		m.mu.RLock()
		handlers := append([]func(string, protocol.Message){}, m.handlers...)
		m.mu.RUnlock()
		for _, h := range handlers {
			h(peer.ID, msg)
		}
	})
}

func (m *Manager) wirePeerConnection(peer *Peer) {
	peer.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || m.onICE == nil {
			return
		}
		init := candidate.ToJSON()
		data, _ := json.Marshal(init)
		m.onICE(peer.ID, string(data))
	})

	peer.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("Transport: peer %s state %s", peer.ID, state.String())
		switch state {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			m.removePeer(peer.ID)
			if m.onDisconnect != nil {
				m.onDisconnect(peer.ID)
			}
		}
	})
}

func (m *Manager) removePeer(peerID string) {
	m.mu.Lock()
	peer, exists := m.peers[peerID]
	if exists {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()
	if exists {
		peer.pc.Close()
	}
}

// PeerCount returns the number of tracked peers.
func (m *Manager) PeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// Close tears down every connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.peers = make(map[string]*Peer)
	m.mu.Unlock()

	for _, p := range peers {
		p.pc.Close()
	}
	return nil
}
