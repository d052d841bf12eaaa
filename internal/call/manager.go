package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// InitializationError means the transport engine could not produce a call
// object. Fatal for the current attempt; retries are a caller policy.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string { return fmt.Sprintf("call init: %v", e.Err) }
func (e *InitializationError) Unwrap() error { return e.Err }

// Manager owns the create, configure, join, teardown sequence for one call
// object at a time.
type Manager struct {
	engine core.TransportEngine

	mu    sync.Mutex
	phase domain.CallPhase
}

func NewManager(engine core.TransportEngine) *Manager {
	return &Manager{engine: engine, phase: domain.CallUninitialized}
}

func (m *Manager) Phase() domain.CallPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) setPhase(p domain.CallPhase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// Initialize creates the transport call object with audio-only media
// constraints. No video is ever captured or published.
func (m *Manager) Initialize(ctx context.Context) (core.Call, error) {
	c, err := m.engine.NewCall(ctx, core.MediaConstraints{Audio: true})
	if err != nil {
		return nil, &InitializationError{Err: err}
	}
	m.setPhase(domain.CallInitialized)
	log.Debug().Str("module", "call.manager").Msg("call object created")
	return c, nil
}

// Join validates credentials synchronously, applies the audio config, then
// joins the room. Malformed credentials fail as InvalidCredentials without
// touching the transport layer at all; transport failures pass through the
// classifier so callers only ever see the five-category taxonomy.
func (m *Manager) Join(ctx context.Context, c core.Call, creds domain.RoomCredentials, cfg domain.AudioConfig) error {
	if err := creds.Validate(); err != nil {
		return core.NewCategoryError(core.CategoryInvalidCredentials, err.Error())
	}
	m.setPhase(domain.CallJoining)
	if err := ApplyAudioConfig(c, cfg); err != nil {
		return err
	}
	if err := c.Join(ctx, core.JoinOptions{URL: creds.RoomURL, Token: creds.RoomToken}); err != nil {
		cerr := core.ClassifyError(err)
		log.Warn().Str("module", "call.manager").
			Str("category", string(cerr.Category)).Str("raw", cerr.Raw).
			Msg("join failed")
		return cerr
	}
	m.setPhase(domain.CallJoined)
	log.Info().Str("module", "call.manager").Str("conversation", creds.ConversationID).Msg("joined room")
	return nil
}

// Teardown releases the call and never fails: losing a handle is
// recoverable, failing during cleanup would break the one-active-session
// invariant upstream. Each step runs even if the previous one blew up, and a
// failed Destroy gets exactly one more bare attempt before giving up
// silently.
func (m *Manager) Teardown(ctx context.Context, c core.Call, cleanup func()) {
	m.setPhase(domain.CallLeaving)
	if cleanup != nil {
		runQuietly("listener cleanup", cleanup)
	}
	if c == nil {
		m.setPhase(domain.CallDestroyed)
		return
	}
	runQuietly("leave", func() {
		if err := c.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "call.manager").Msg("leave failed during teardown")
		}
	})
	destroyed := false
	runQuietly("destroy", func() {
		if err := c.Destroy(); err == nil {
			destroyed = true
		} else {
			log.Warn().Err(err).Str("module", "call.manager").Msg("destroy failed, retrying once")
		}
	})
	if !destroyed {
		runQuietly("destroy retry", func() {
			if err := c.Destroy(); err != nil {
				log.Warn().Err(err).Str("module", "call.manager").Msg("destroy retry failed, giving up")
			}
		})
	}
	m.setPhase(domain.CallDestroyed)
	log.Debug().Str("module", "call.manager").Msg("teardown complete")
}

func runQuietly(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("module", "call.manager").
				Str("step", step).Msg("teardown step panicked")
		}
	}()
	fn()
}
