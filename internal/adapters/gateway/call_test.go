package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arvele/voicecall/internal/core"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newGatewayServer runs script against each incoming websocket connection.
// The script receives the already-read join envelope.
func newGatewayServer(t *testing.T, script func(conn *websocket.Conn, join envelope)) *httptest.Server {
	t.Helper()
	// Handler goroutines serve hijacked websocket connections and can outlive
	// the test (Join sends the join frame asynchronously, so teardown may close
	// the connection before it was read). Reporting a failure after the test
	// has completed panics, so errors are dropped once the test is done.
	var mu sync.Mutex
	finished := false
	t.Cleanup(func() { mu.Lock(); finished = true; mu.Unlock() })
	errorf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		if finished || t.Context().Err() != nil {
			return
		}
		t.Errorf(format, args...)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var join envelope
		if err := conn.ReadJSON(&join); err != nil {
			errorf("read join: %v", err)
			return
		}
		if join.Type != "join" {
			errorf("first frame type=%q, want join", join.Type)
			return
		}
		script(conn, join)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dialCall joins roomURL, running register before the join so no early frame
// from the server is missed.
func dialCall(t *testing.T, roomURL, token string, register func(core.Call)) core.Call {
	t.Helper()
	c, err := NewEngine().NewCall(context.Background(), core.MediaConstraints{Audio: true})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	if register != nil {
		register(c)
	}
	if err := c.Join(context.Background(), core.JoinOptions{URL: roomURL, Token: token}); err != nil {
		t.Fatalf("join: %v", err)
	}
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

func waitEvent(t *testing.T, ch <-chan core.Payload, what string) core.Payload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return core.Payload{}
	}
}

func TestJoin_HandshakeAndConnected(t *testing.T) {
	t.Parallel()

	gotToken := make(chan string, 1)
	srv := newGatewayServer(t, func(conn *websocket.Conn, join envelope) {
		gotToken <- join.Token
		_ = conn.WriteJSON(envelope{Type: "joined"})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := NewEngine().NewCall(context.Background(), core.MediaConstraints{Audio: true})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	connected := make(chan core.Payload, 1)
	c.On(core.EventConnected, func(p core.Payload) { connected <- p })

	if err := c.Join(context.Background(), core.JoinOptions{URL: srv.URL, Token: "rt-1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer c.Destroy()

	if tok := <-gotToken; tok != "rt-1" {
		t.Fatalf("join token=%q, want rt-1", tok)
	}
	waitEvent(t, connected, "connected event")
}

func TestJoin_RejectsVideoConstraints(t *testing.T) {
	t.Parallel()

	_, err := NewEngine().NewCall(context.Background(), core.MediaConstraints{Audio: true, Video: true})
	if err == nil {
		t.Fatal("video constraint accepted")
	}
}

func TestPeerFramesBecomeParticipantEvents(t *testing.T) {
	t.Parallel()

	srv := newGatewayServer(t, func(conn *websocket.Conn, join envelope) {
		_ = conn.WriteJSON(envelope{Type: "joined"})
		// The client's own id must be filtered out.
		_ = conn.WriteJSON(envelope{Type: "peer-joined", Participant: join.Participant})
		_ = conn.WriteJSON(envelope{Type: "peer-joined", Participant: &participantInfo{ID: "agent-1"}})
		_ = conn.WriteJSON(envelope{Type: "track-started", Participant: &participantInfo{ID: "agent-1"}})
		_ = conn.WriteJSON(envelope{Type: "peer-updated", Participant: &participantInfo{ID: "agent-1", AudioMuted: true}})
		_ = conn.WriteJSON(envelope{Type: "peer-left", Participant: &participantInfo{ID: "agent-1"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	joined := make(chan core.Payload, 4)
	started := make(chan core.Payload, 4)
	updated := make(chan core.Payload, 4)
	left := make(chan core.Payload, 4)
	c := dialCall(t, srv.URL, "t", func(c core.Call) {
		c.On(core.EventParticipantJoined, func(p core.Payload) { joined <- p })
		c.On(core.EventTrackStarted, func(p core.Payload) { started <- p })
		c.On(core.EventParticipantUpdated, func(p core.Payload) { updated <- p })
		c.On(core.EventParticipantLeft, func(p core.Payload) { left <- p })
	})

	p := waitEvent(t, joined, "peer-joined")
	if p.Participant == nil || p.Participant.ID != "agent-1" {
		t.Fatalf("joined participant=%+v, want agent-1 (local echo must be dropped)", p.Participant)
	}
	waitEvent(t, started, "track-started")
	if u := waitEvent(t, updated, "peer-updated"); u.Participant == nil || !u.Participant.AudioMuted {
		t.Fatalf("updated participant=%+v, want muted", u.Participant)
	}
	waitEvent(t, left, "peer-left")

	// After peer-left only the local participant remains.
	if got := len(c.Participants()); got != 1 {
		t.Fatalf("participants=%d, want 1", got)
	}
}

func TestErrorFrameBecomesErrorEvent(t *testing.T) {
	t.Parallel()

	srv := newGatewayServer(t, func(conn *websocket.Conn, _ envelope) {
		_ = conn.WriteJSON(envelope{Type: "joined"})
		_ = conn.WriteJSON(envelope{Type: "error", Message: "room is full"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	errs := make(chan core.Payload, 1)
	dialCall(t, srv.URL, "t", func(c core.Call) {
		c.On(core.EventError, func(p core.Payload) { errs <- p })
	})

	if p := waitEvent(t, errs, "error event"); p.Message != "room is full" {
		t.Fatalf("message=%q, want raw server text", p.Message)
	}
}

func TestSetLocalAudioSendsMuteFrame(t *testing.T) {
	t.Parallel()

	frames := make(chan envelope, 4)
	srv := newGatewayServer(t, func(conn *websocket.Conn, _ envelope) {
		_ = conn.WriteJSON(envelope{Type: "joined"})
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			frames <- env
		}
	})

	c := dialCall(t, srv.URL, "t", nil)
	if err := c.SetLocalAudio(false); err != nil {
		t.Fatalf("set local audio: %v", err)
	}

	select {
	case env := <-frames:
		if env.Type != "mute" || !env.Muted {
			t.Fatalf("frame=%+v, want mute with muted=true", env)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("mute frame never arrived")
	}
}

func TestServerCloseEmitsDisconnected(t *testing.T) {
	t.Parallel()

	srv := newGatewayServer(t, func(conn *websocket.Conn, _ envelope) {
		_ = conn.WriteJSON(envelope{Type: "joined"})
		_ = conn.WriteJSON(envelope{Type: "bye"})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	disconnected := make(chan core.Payload, 1)
	dialCall(t, srv.URL, "t", func(c core.Call) {
		c.On(core.EventDisconnected, func(p core.Payload) { disconnected <- p })
	})

	waitEvent(t, disconnected, "disconnected event")
}

func TestDestroyIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := newGatewayServer(t, func(conn *websocket.Conn, _ envelope) {
		_ = conn.WriteJSON(envelope{Type: "joined"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := dialCall(t, srv.URL, "t", nil)
	if err := c.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	if err := c.SetLocalAudio(true); err != nil {
		t.Fatalf("set local audio after destroy: %v", err)
	}
}

func TestJoin_DialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewEngine().NewCall(context.Background(), core.MediaConstraints{Audio: true})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	err = c.Join(context.Background(), core.JoinOptions{URL: srv.URL, Token: "t"})
	if err == nil {
		t.Fatal("join succeeded against a non-websocket endpoint")
	}
	if core.Classify(err.Error()) != core.CategoryPermissionDenied {
		t.Fatalf("dial error %q did not retain the status wording", err)
	}
}

func TestWSURL(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"http://gw.example/rooms/1", "ws://gw.example/rooms/1"},
		{"https://gw.example/rooms/1", "wss://gw.example/rooms/1"},
		{"wss://gw.example/rooms/1", "wss://gw.example/rooms/1"},
	}
	for _, tc := range cases {
		got, err := wsURL(tc.in)
		if err != nil {
			t.Fatalf("wsURL(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("wsURL(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
