package protocol

import (
	"errors"
	"testing"

	"github.com/tomaslejdung/goscribble/pkg/geometry"
)

func TestEncodeDecodeStrokeAdd(t *testing.T) {
	msg := NewStrokeAdd("alice", NewStrokeID(), ToolPen, Palette[0], 4,
		[]geometry.Point{{X: 0.25, Y: 0.75, Pressure: 0.5}})
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != TypeStrokeAdd || got.StrokeID != msg.StrokeID {
		t.Errorf("decoded %q/%q, want %q/%q", got.Type, got.StrokeID, msg.Type, msg.StrokeID)
	}
	if len(got.Points) != 1 || got.Points[0].X != 0.25 {
		t.Errorf("points did not survive the round trip: %+v", got.Points)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"stroke_teleport"}`)); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestValidateStrokeAdd(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"valid", NewStrokeAdd("a", "s1", ToolPen, Palette[1], 2, []geometry.Point{{X: 0, Y: 0}}), true},
		{"empty point batch", Message{Type: TypeStrokeAdd, StrokeID: "s1"}, true},
		{"no strokeId", Message{Type: TypeStrokeAdd, Points: []geometry.Point{{X: 0, Y: 0}}}, false},
		{"out of bounds", Message{Type: TypeStrokeAdd, StrokeID: "s1", Points: []geometry.Point{{X: 1.5, Y: 0}}}, false},
		{"end without strokeId", Message{Type: TypeStrokeEnd}, false},
		{"leave without sender", Message{Type: TypeParticipantLeave}, false},
	}
	for _, c := range cases {
		err := Validate(c.msg)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrProtocolViolation) {
			t.Errorf("%s: expected ErrProtocolViolation, got %v", c.name, err)
		}
	}
}

func TestStrokeClone(t *testing.T) {
	s := Stroke{StrokeID: "s1", Points: []geometry.Point{{X: 0.1, Y: 0.2}}}
	c := s.Clone()
	c.Points[0].X = 0.9
	if s.Points[0].X != 0.1 {
		t.Error("Clone shares the points slice")
	}
}

func TestValidColor(t *testing.T) {
	for _, c := range Palette {
		if !ValidColor(c) {
			t.Errorf("palette color %q rejected", c)
		}
	}
	for _, c := range []string{"", "#FFF", "FF3B30FF1", "#GG3B30FF"} {
		if ValidColor(c) {
			t.Errorf("invalid color %q accepted", c)
		}
	}
}

func TestNewStrokeIDUnique(t *testing.T) {
	if NewStrokeID() == NewStrokeID() {
		t.Error("stroke IDs should be unique")
	}
}
