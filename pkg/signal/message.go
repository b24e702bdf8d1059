package signal

import "github.com/tomaslejdung/goscribble/pkg/protocol"

// Envelope is the relay wire format. It carries session control
// (join/joined/error), WebRTC negotiation (offer/answer/ice), and the
// annotation protocol itself.
type Envelope struct {
	Type          string `json:"type"`                    // join, joined, error, annotation, offer, answer, ice, participant-joined, participant-left
	Room          string `json:"room,omitempty"`          // room code
	Role          string `json:"role,omitempty"`          // requested or assigned role
	Name          string `json:"name,omitempty"`          // display name
	Password      string `json:"password,omitempty"`      // room password
	ParticipantID string `json:"participantId,omitempty"` // sender identity
	TargetID      string `json:"targetId,omitempty"`      // addressed delivery; empty means broadcast
	SDP           string `json:"sdp,omitempty"`           // SDP offer/answer for peer transport
	Candidate     string `json:"candidate,omitempty"`     // ICE candidate JSON
	Error         string `json:"error,omitempty"`         // error message

	// Annotation payload for type "annotation"
	Annotation *protocol.Message `json:"annotation,omitempty"`

	// Roster sent with "joined" so a late joiner knows who to ask for
	// a state sync
	Participants []Participant `json:"participants,omitempty"`
}

// Participant describes one room member in a roster.
type Participant struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}
