package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomaslejdung/goscribble/pkg/geometry"
	"github.com/tomaslejdung/goscribble/pkg/protocol"
	"github.com/tomaslejdung/goscribble/pkg/role"
	sig "github.com/tomaslejdung/goscribble/pkg/signal"
)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	s := sig.NewServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.HandleWebSocket)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestSession(t *testing.T, relayURL, room, name, wantRole string) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{
		RelayURL: relayURL,
		RoomCode: room,
		Name:     name,
		WantRole: wantRole,
		Surface:  geometry.Size{Width: 1000, Height: 1000},
		// keep traffic on the relay so tests do not negotiate WebRTC
		ForceRelay: true,
	})
	if err != nil {
		t.Fatalf("NewSession(%s): %v", name, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionsConverge(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")
	peer := newTestSession(t, ts.URL, room, "bob", "")

	if host.Role() != role.Host {
		t.Fatalf("first session should be host, got %s", host.Role())
	}
	waitFor(t, "rosters", func() bool {
		return len(host.Roster()) == 1 && len(peer.Roster()) == 1
	})

	// host draws a two-batch stroke
	id := host.Capture().BeginStroke(protocol.ToolPen, protocol.Palette[0], 4)
	if err := host.Capture().MovePointer(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := host.Capture().MovePointer(500, 500, 0); err != nil {
		t.Fatal(err)
	}
	host.Capture().EndStroke()

	waitFor(t, "stroke on peer", func() bool {
		s, ok := peer.Store().Get(id)
		return ok && s.Sealed && len(s.Points) == 2
	})

	got, _ := peer.Store().Get(id)
	if got.Points[1].X != 0.5 || got.Points[1].Y != 0.5 {
		t.Errorf("peer saw points %+v", got.Points)
	}
	if got.OwnerID != host.ParticipantID() {
		t.Errorf("stroke owner should be the host, got %s", got.OwnerID)
	}
}

func TestLateJoinerGetsSyncState(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")

	id := host.Capture().BeginStroke(protocol.ToolPen, protocol.Palette[1], 4)
	if err := host.Capture().MovePointer(250, 250, 0); err != nil {
		t.Fatal(err)
	}
	host.Capture().EndStroke()

	late := newTestSession(t, ts.URL, room, "bob", "")
	waitFor(t, "sync on late joiner", func() bool {
		_, ok := late.Store().Get(id)
		return ok
	})
}

func TestViewerAnnotationsRejectedRemotely(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")
	viewer := newTestSession(t, ts.URL, room, "eve", string(role.Viewer))

	waitFor(t, "rosters", func() bool {
		return len(host.Roster()) == 1 && len(viewer.Roster()) == 1
	})

	// a misbehaving viewer pushes a stroke anyway; the host's store
	// must reject it
	viewer.Capture().BeginStroke(protocol.ToolPen, "", 4)
	if err := viewer.Capture().MovePointer(100, 100, 0); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if host.Store().Len() != 0 {
		t.Errorf("viewer stroke should be rejected, host has %d strokes", host.Store().Len())
	}
}

func TestClearAllPropagates(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")
	peer := newTestSession(t, ts.URL, room, "bob", "")
	waitFor(t, "rosters", func() bool {
		return len(host.Roster()) == 1 && len(peer.Roster()) == 1
	})

	peer.Capture().BeginStroke(protocol.ToolPen, "", 4)
	if err := peer.Capture().MovePointer(10, 10, 0); err != nil {
		t.Fatal(err)
	}
	peer.Capture().EndStroke()
	waitFor(t, "stroke on host", func() bool { return host.Store().Len() == 1 })

	if err := host.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	waitFor(t, "clear on peer", func() bool { return peer.Store().Len() == 0 })
}

func TestParticipantLeaveCleansStrokes(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")
	peer := newTestSession(t, ts.URL, room, "bob", "")
	waitFor(t, "rosters", func() bool {
		return len(host.Roster()) == 1 && len(peer.Roster()) == 1
	})

	peer.Capture().BeginStroke(protocol.ToolPen, "", 4)
	if err := peer.Capture().MovePointer(10, 10, 0); err != nil {
		t.Fatal(err)
	}
	peer.Capture().EndStroke()
	waitFor(t, "stroke on host", func() bool { return host.Store().Len() == 1 })

	peer.Close()
	waitFor(t, "peer strokes dropped", func() bool { return host.Store().Len() == 0 })
}

func TestCloseResetsStore(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")
	host.Capture().BeginStroke(protocol.ToolPen, "", 4)
	if err := host.Capture().MovePointer(10, 10, 0); err != nil {
		t.Fatal(err)
	}
	host.Capture().EndStroke()
	if host.Store().Len() != 1 {
		t.Fatalf("expected 1 stroke before Close, got %d", host.Store().Len())
	}

	host.Close()
	if got := host.Store().Len(); got != 0 {
		t.Errorf("store should be empty after Close, got %d strokes", got)
	}
}

func TestSyncRequestTimeoutSurfaced(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	s, err := NewSession(SessionConfig{
		RelayURL:    ts.URL,
		RoomCode:    room,
		Name:        "alice",
		Surface:     geometry.Size{Width: 1000, Height: 1000},
		ForceRelay:  true,
		SyncTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	// nobody else is in the room, so this request goes unanswered
	s.RequestSync()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == "error" {
				if s.Store().Len() != 0 {
					t.Errorf("timeout must leave the store untouched")
				}
				return
			}
		case <-deadline:
			t.Fatal("no event surfaced for the unanswered sync request")
		}
	}
}

func TestSyncStateClearsPendingWait(t *testing.T) {
	ts := startRelay(t)
	room := sig.GenerateRoomCode()

	host := newTestSession(t, ts.URL, room, "alice", "")
	host.Capture().BeginStroke(protocol.ToolPen, "", 4)
	if err := host.Capture().MovePointer(250, 250, 0); err != nil {
		t.Fatal(err)
	}
	host.Capture().EndStroke()

	late, err := NewSession(SessionConfig{
		RelayURL:    ts.URL,
		RoomCode:    room,
		Name:        "bob",
		Surface:     geometry.Size{Width: 1000, Height: 1000},
		ForceRelay:  true,
		SyncTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { late.Close() })

	waitFor(t, "sync on late joiner", func() bool { return late.Store().Len() == 1 })

	// the answered request must not fire the timeout afterwards
	timeout := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-late.Events():
			if ev.Kind == "error" {
				t.Fatalf("unexpected error event after sync arrived: %s", ev.Description)
			}
		case <-timeout:
			return
		}
	}
}
