package call

import (
	"context"
	"errors"
	"testing"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

func TestManager_InitializeFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeEngine{err: errors.New("no media devices")})
	_, err := m.Initialize(context.Background())

	var ie *InitializationError
	if !errors.As(err, &ie) {
		t.Fatalf("err=%v, want InitializationError", err)
	}
}

func TestManager_JoinRejectsMalformedCredentialsWithoutTransport(t *testing.T) {
	t.Parallel()

	for _, roomURL := range []string{"", "not-a-url", "   "} {
		fc := newFakeCall()
		m := NewManager(&fakeEngine{call: fc})

		err := m.Join(context.Background(), fc,
			domain.RoomCredentials{RoomURL: roomURL}, domain.DefaultAudioConfig())

		if core.CategoryOf(err) != core.CategoryInvalidCredentials {
			t.Fatalf("roomURL=%q: category=%s, want invalid-credentials", roomURL, core.CategoryOf(err))
		}
		if fc.joinCalls != 0 {
			t.Fatalf("roomURL=%q: transport join was called %d times", roomURL, fc.joinCalls)
		}
	}
}

func TestManager_JoinAppliesAudioBeforeJoin(t *testing.T) {
	t.Parallel()

	fc := newFakeCall()
	fc.joinFunc = func(context.Context, core.JoinOptions) error {
		if len(fc.audioCalls) == 0 {
			t.Fatal("join ran before audio config")
		}
		return nil
	}
	m := NewManager(&fakeEngine{call: fc})

	err := m.Join(context.Background(), fc,
		domain.RoomCredentials{RoomURL: "https://x.example/r1", RoomToken: "t1"},
		domain.DefaultAudioConfig())
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.Phase() != domain.CallJoined {
		t.Fatalf("phase=%s, want joined", m.Phase())
	}
}

func TestManager_JoinSurfacesAudioConfigError(t *testing.T) {
	t.Parallel()

	fc := newFakeCall()
	fc.setAudioFunc = func(bool) error { return errors.New("no input device") }
	m := NewManager(&fakeEngine{call: fc})

	err := m.Join(context.Background(), fc,
		domain.RoomCredentials{RoomURL: "https://x.example/r1"}, domain.DefaultAudioConfig())

	var ae *AudioConfigError
	if !errors.As(err, &ae) {
		t.Fatalf("err=%v, want AudioConfigError", err)
	}
	if fc.joinCalls != 0 {
		t.Fatal("join ran despite audio config failure")
	}
}

func TestManager_JoinClassifiesTransportErrors(t *testing.T) {
	t.Parallel()

	fc := newFakeCall()
	fc.joinFunc = func(context.Context, core.JoinOptions) error {
		return errors.New("room token expired")
	}
	m := NewManager(&fakeEngine{call: fc})

	err := m.Join(context.Background(), fc,
		domain.RoomCredentials{RoomURL: "https://x.example/r1"}, domain.DefaultAudioConfig())

	if core.CategoryOf(err) != core.CategoryRoomUnavailable {
		t.Fatalf("category=%s, want room-unavailable", core.CategoryOf(err))
	}
}

func TestManager_TeardownNeverPanics(t *testing.T) {
	t.Parallel()

	fc := newFakeCall()
	fc.leaveFunc = func(context.Context) error { panic("leave blew up") }
	fc.destroyFunc = func() error { panic("destroy blew up") }
	m := NewManager(&fakeEngine{call: fc})

	m.Teardown(context.Background(), fc, func() { panic("cleanup blew up") })

	if m.Phase() != domain.CallDestroyed {
		t.Fatalf("phase=%s, want destroyed", m.Phase())
	}
}

func TestManager_TeardownRetriesDestroyOnce(t *testing.T) {
	t.Parallel()

	fc := newFakeCall()
	fc.destroyFunc = func() error { return errors.New("still busy") }
	m := NewManager(&fakeEngine{call: fc})

	m.Teardown(context.Background(), fc, nil)

	if fc.destroyCalls != 2 {
		t.Fatalf("destroyCalls=%d, want exactly 2", fc.destroyCalls)
	}
	if fc.leaveCalls != 1 {
		t.Fatalf("leaveCalls=%d, want 1", fc.leaveCalls)
	}
}

func TestManager_TeardownWithoutCall(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeEngine{})
	m.Teardown(context.Background(), nil, nil)
	if m.Phase() != domain.CallDestroyed {
		t.Fatalf("phase=%s, want destroyed", m.Phase())
	}
}

func TestManager_TeardownDoesNotRetrySuccessfulDestroy(t *testing.T) {
	t.Parallel()

	fc := newFakeCall()
	m := NewManager(&fakeEngine{call: fc})
	m.Teardown(context.Background(), fc, nil)
	if fc.destroyCalls != 1 {
		t.Fatalf("destroyCalls=%d, want 1", fc.destroyCalls)
	}
}
