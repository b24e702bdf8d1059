package signal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomaslejdung/goscribble/pkg/protocol"
	"github.com/tomaslejdung/goscribble/pkg/role"
)

func TestGenerateRoomCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code := GenerateRoomCode()
		if !ValidateRoomCode(code) {
			t.Errorf("generated invalid room code %q", code)
		}
		if code != NormalizeRoomCode(code) {
			t.Errorf("generated code %q is not normalized", code)
		}
	}
}

func TestValidateRoomCode(t *testing.T) {
	valid := []string{"QUICK-FROG-01", "COOL-WAVE-99", "A-B-0"}
	invalid := []string{"", "QUICK-FROG", "QUICK-FROG-XX", "QUICK--01", "ONEPART"}
	for _, c := range valid {
		if !ValidateRoomCode(c) {
			t.Errorf("%q should be valid", c)
		}
	}
	for _, c := range invalid {
		if ValidateRoomCode(c) {
			t.Errorf("%q should be invalid", c)
		}
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	if got := NormalizeRoomCode("  quick-frog-01 "); got != "QUICK-FROG-01" {
		t.Errorf("got %q", got)
	}
}

func newTestRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.HandleWebSocket)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestJoinAssignsRoles(t *testing.T) {
	s, ts := newTestRelay(t)
	room := GenerateRoomCode()

	host, err := Dial(ts.URL, room, "", "alice", "", "")
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	defer host.Close()
	if host.Info().Role != role.Host {
		t.Errorf("first joiner should be host, got %s", host.Info().Role)
	}
	if host.Info().ParticipantID == "" {
		t.Error("relay should assign a participant ID")
	}

	annotator, err := Dial(ts.URL, room, "", "bob", "", "")
	if err != nil {
		t.Fatalf("annotator dial: %v", err)
	}
	defer annotator.Close()
	if annotator.Info().Role != role.Annotator {
		t.Errorf("second joiner should default to annotator, got %s", annotator.Info().Role)
	}
	if len(annotator.Info().Participants) != 2 {
		t.Errorf("roster should list 2 members, got %d", len(annotator.Info().Participants))
	}

	viewer, err := Dial(ts.URL, room, "", "carol", string(role.Viewer), "")
	if err != nil {
		t.Fatalf("viewer dial: %v", err)
	}
	defer viewer.Close()
	if viewer.Info().Role != role.Viewer {
		t.Errorf("requested viewer role, got %s", viewer.Info().Role)
	}

	if n := s.ParticipantCount(room); n != 3 {
		t.Errorf("expected 3 participants, got %d", n)
	}
}

func TestAnnotationRelayedToOthersOnly(t *testing.T) {
	_, ts := newTestRelay(t)
	room := GenerateRoomCode()

	host, err := Dial(ts.URL, room, "", "alice", "", "")
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	defer host.Close()

	peer, err := Dial(ts.URL, room, "", "bob", "", "")
	if err != nil {
		t.Fatalf("peer dial: %v", err)
	}
	defer peer.Close()

	hostGot := make(chan protocol.Message, 1)
	peerGot := make(chan protocol.Message, 1)
	host.Subscribe(func(m protocol.Message) { hostGot <- m })
	peer.Subscribe(func(m protocol.Message) { peerGot <- m })

	if err := host.Publish(protocol.NewClearAll(host.Info().ParticipantID)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-peerGot:
		if m.Type != protocol.TypeClearAll {
			t.Errorf("expected clear_all, got %s", m.Type)
		}
		if m.SenderID == "" {
			t.Error("relay should stamp the sender")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the annotation")
	}

	select {
	case <-hostGot:
		t.Error("sender must not receive its own message back")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPasswordProtection(t *testing.T) {
	_, ts := newTestRelay(t)
	room := GenerateRoomCode()
	password := GeneratePassword()

	host, err := Dial(ts.URL, room, password, "alice", "", "")
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	defer host.Close()

	if _, err := Dial(ts.URL, room, "wrong", "mallory", "", ""); err == nil {
		t.Fatal("join with wrong password should fail")
	}

	peer, err := Dial(ts.URL, room, password, "bob", "", "")
	if err != nil {
		t.Fatalf("join with correct password: %v", err)
	}
	peer.Close()
}

func TestTargetedDelivery(t *testing.T) {
	_, ts := newTestRelay(t)
	room := GenerateRoomCode()

	host, _ := Dial(ts.URL, room, "", "alice", "", "")
	defer host.Close()
	b, _ := Dial(ts.URL, room, "", "bob", "", "")
	defer b.Close()
	c, _ := Dial(ts.URL, room, "", "carol", "", "")
	defer c.Close()

	bGot := make(chan protocol.Message, 1)
	cGot := make(chan protocol.Message, 1)
	b.Subscribe(func(m protocol.Message) { bGot <- m })
	c.Subscribe(func(m protocol.Message) { cGot <- m })

	err := host.PublishTo(b.Info().ParticipantID, protocol.NewSyncState(host.Info().ParticipantID, nil))
	if err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	select {
	case m := <-bGot:
		if m.Type != protocol.TypeSyncState {
			t.Errorf("expected sync_state, got %s", m.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("target never received the message")
	}
	select {
	case <-cGot:
		t.Error("non-target member received a targeted message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestParticipantLeftNotification(t *testing.T) {
	_, ts := newTestRelay(t)
	room := GenerateRoomCode()

	host, _ := Dial(ts.URL, room, "", "alice", "", "")
	defer host.Close()

	left := make(chan Envelope, 4)
	host.SetControlHandler(func(env Envelope) {
		if env.Type == "participant-left" {
			left <- env
		}
	})

	peer, err := Dial(ts.URL, room, "", "bob", "", "")
	if err != nil {
		t.Fatalf("peer dial: %v", err)
	}
	peerID := peer.Info().ParticipantID
	peer.Close()

	select {
	case env := <-left:
		if env.ParticipantID != peerID {
			t.Errorf("expected leave for %s, got %s", peerID, env.ParticipantID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("host never saw the participant leave")
	}
}
