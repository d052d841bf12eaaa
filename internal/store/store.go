// Package store holds the conversation session state machine: it owns the
// call lifecycle end to end and exposes the only surface the rest of the
// application may depend on.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/call"
	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// ErrAlreadyActive rejects Start while a conversation is connecting or
// connected. Policy decision: reject, never silently reuse or force-restart.
var ErrAlreadyActive = errors.New("conversation already active")

var errEndedDuringSetup = errors.New("conversation ended during setup")

// Snapshot is the observable store surface. Everything else is internal.
type Snapshot struct {
	Phase          domain.Phase        `json:"phase"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Connected      bool                `json:"connected"`
	MicActive      bool                `json:"mic_active"`
	RemoteSpeaking bool                `json:"remote_speaking"`
	Err            *core.CategoryError `json:"-"`
	ErrMessage     string              `json:"error,omitempty"`
}

// Store serializes Start/End against its own state and treats transport
// events as the single source of truth for connection state. Events arrive
// on engine goroutines, so a mutex stands in for the original
// single-threaded event loop; correctness still rests on idempotent cleanup
// and the phase guards, not on lock ordering.
type Store struct {
	backend   core.CredentialIssuer
	manager   *call.Manager
	renderers core.RendererBank
	audioCfg  domain.AudioConfig

	mu             sync.Mutex
	phase          domain.Phase
	conversationID string
	call           core.Call
	cleanup        func()
	micActive      bool
	remoteSpeaking bool
	lastErr        *core.CategoryError
	onChange       func(Snapshot)
}

type Options struct {
	Backend   core.CredentialIssuer
	Engine    core.TransportEngine
	Renderers core.RendererBank
	Audio     *domain.AudioConfig
}

func New(opts Options) *Store {
	cfg := domain.DefaultAudioConfig()
	if opts.Audio != nil {
		cfg = *opts.Audio
	}
	renderers := opts.Renderers
	if renderers == nil {
		renderers = core.NopRendererBank{}
	}
	return &Store{
		backend:   opts.Backend,
		manager:   call.NewManager(opts.Engine),
		renderers: renderers,
		audioCfg:  cfg,
		phase:     domain.PhaseIdle,
	}
}

// SetOnChange registers a single observer invoked after every state
// transition, outside the store lock.
func (s *Store) SetOnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:          s.phase,
		ConversationID: s.conversationID,
		Connected:      s.phase == domain.PhaseConnected,
		MicActive:      s.micActive,
		RemoteSpeaking: s.remoteSpeaking,
		Err:            s.lastErr,
	}
	if s.lastErr != nil {
		snap.ErrMessage = s.lastErr.Error()
	}
	return snap
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Start runs credentials -> initialize -> listen -> join. Any failure is
// classified, recorded in the snapshot, cleaned up, and returned; the store
// is back at Idle afterwards. Returns ErrAlreadyActive when not Idle.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != domain.PhaseIdle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.phase = domain.PhaseConnecting
	s.mu.Unlock()
	s.notify()

	creds, err := s.backend.Start(ctx)
	if err != nil {
		cerr := core.ClassifyError(err)
		log.Error().Err(err).Str("module", "store").Msg("credential fetch failed")
		return s.failStart(ctx, "", cerr)
	}

	c, err := s.manager.Initialize(ctx)
	if err != nil {
		cerr := core.ClassifyError(err)
		log.Error().Err(err).Str("module", "store").Msg("call init failed")
		return s.failStart(ctx, creds.ConversationID, cerr)
	}

	cleanup := call.AttachListeners(c, call.Callbacks{
		OnConnected:    s.handleConnected,
		OnDisconnected: s.handleDisconnected,
		OnError:        s.handleError,
		OnParticipantJoined: func(p domain.ParticipantInfo) {
			log.Info().Str("module", "store").Str("participant", string(p.ID)).Msg("remote participant joined")
		},
		OnParticipantLeft: func(p domain.ParticipantInfo) {
			log.Info().Str("module", "store").Str("participant", string(p.ID)).Msg("remote participant left")
		},
		OnTrackStarted: func(domain.ParticipantInfo) { s.setRemoteSpeaking(true) },
		OnTrackStopped: func(domain.ParticipantInfo) { s.setRemoteSpeaking(false) },
	}, s.renderers)

	// Register the partial session before the join so an End racing this
	// Start tears it down; the cleanup closure is idempotent either way.
	s.mu.Lock()
	if s.phase != domain.PhaseConnecting {
		s.mu.Unlock()
		s.manager.Teardown(ctx, c, cleanup)
		return errEndedDuringSetup
	}
	s.call = c
	s.cleanup = cleanup
	s.conversationID = creds.ConversationID
	s.mu.Unlock()

	if err := s.manager.Join(ctx, c, creds, s.audioCfg); err != nil {
		cerr := core.ClassifyError(err)
		s.mu.Lock()
		stillOurs := s.call == c
		if stillOurs {
			// Ending keeps the disconnect emitted by our own teardown from
			// resetting the store before the error is recorded.
			s.phase = domain.PhaseEnding
			s.call = nil
			s.cleanup = nil
		}
		s.mu.Unlock()
		if !stillOurs {
			// End won the race, tore the session down and reset the state;
			// its clean snapshot stands.
			return errEndedDuringSetup
		}
		s.manager.Teardown(ctx, c, cleanup)
		return s.failStart(ctx, creds.ConversationID, cerr)
	}

	s.mu.Lock()
	active := s.phase == domain.PhaseConnecting || s.phase == domain.PhaseConnected
	s.mu.Unlock()
	if !active {
		return errEndedDuringSetup
	}

	log.Info().Str("module", "store").Str("conversation", creds.ConversationID).Msg("conversation started")
	// The connected event, not the join call resolving, flips the phase:
	// the transport is the source of truth and either ordering is fine.
	return nil
}

// failStart resets the store with the classified error, unless End already
// won the race; in that case End's clean reset stands. When the conversation
// was allocated but never handed over to End, the backend is told it is over
// so the server-side room does not linger until expiry.
func (s *Store) failStart(ctx context.Context, convID string, cerr *core.CategoryError) error {
	s.mu.Lock()
	if s.phase != domain.PhaseConnecting && s.phase != domain.PhaseEnding {
		s.mu.Unlock()
		return errEndedDuringSetup
	}
	s.resetLocked(cerr)
	s.mu.Unlock()
	s.notify()

	if convID != "" {
		if err := s.backend.End(ctx, convID); err != nil {
			log.Warn().Err(err).Str("module", "store").Str("conversation", convID).
				Msg("backend end notification failed")
		}
	}
	return cerr
}

// End tears down whatever session exists and never fails. At Idle with no
// session it is a pure no-op and the backend is not notified.
func (s *Store) End(ctx context.Context) {
	s.mu.Lock()
	if s.phase == domain.PhaseIdle && s.call == nil {
		s.mu.Unlock()
		return
	}
	s.phase = domain.PhaseEnding
	c := s.call
	cleanup := s.cleanup
	convID := s.conversationID
	s.call = nil
	s.cleanup = nil
	s.mu.Unlock()
	s.notify()

	s.manager.Teardown(ctx, c, cleanup)
	s.renderers.ReleaseAll()

	if convID != "" {
		if err := s.backend.End(ctx, convID); err != nil {
			log.Warn().Err(err).Str("module", "store").Str("conversation", convID).
				Msg("backend end notification failed")
		}
	}

	s.mu.Lock()
	s.resetLocked(nil)
	s.mu.Unlock()
	s.notify()
	log.Info().Str("module", "store").Str("conversation", convID).Msg("conversation ended")
}

// ToggleMic flips the microphone synchronously. Without an active session it
// changes nothing; if the engine rejects the change the flag rolls back so
// the store never reports a mic state that does not match reality.
func (s *Store) ToggleMic() {
	s.mu.Lock()
	c := s.call
	if c == nil {
		s.mu.Unlock()
		return
	}
	next := !s.micActive
	if err := c.SetLocalAudio(next); err != nil {
		s.mu.Unlock()
		log.Warn().Err(err).Str("module", "store").Msg("mic toggle rejected by engine")
		return
	}
	s.micActive = next
	s.mu.Unlock()
	s.notify()
}

func (s *Store) handleConnected() {
	s.mu.Lock()
	if s.phase != domain.PhaseConnecting && s.phase != domain.PhaseConnected {
		s.mu.Unlock()
		return
	}
	s.phase = domain.PhaseConnected
	s.micActive = true
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
	log.Info().Str("module", "store").Msg("transport connected")
}

// handleDisconnected covers remote-initiated and network-induced
// termination: local state resets without the caller invoking End.
func (s *Store) handleDisconnected() {
	s.mu.Lock()
	if s.phase == domain.PhaseEnding || s.phase == domain.PhaseIdle {
		// End is already driving the teardown.
		s.mu.Unlock()
		return
	}
	c := s.call
	cleanup := s.cleanup
	s.call = nil
	s.cleanup = nil
	s.resetLocked(nil)
	s.mu.Unlock()

	if c != nil {
		s.manager.Teardown(context.Background(), c, cleanup)
	}
	s.renderers.ReleaseAll()
	s.notify()
	log.Info().Str("module", "store").Msg("transport disconnected, reset to idle")
}

// handleError records the fault but stays in the current phase: transient
// transport errors are non-fatal, only a disconnect or an explicit End moves
// the state machine.
func (s *Store) handleError(cerr *core.CategoryError) {
	s.mu.Lock()
	s.lastErr = cerr
	s.mu.Unlock()
	s.notify()
	log.Warn().Str("module", "store").Str("category", string(cerr.Category)).
		Str("raw", cerr.Raw).Msg("transport error event")
}

func (s *Store) setRemoteSpeaking(v bool) {
	s.mu.Lock()
	changed := s.remoteSpeaking != v
	s.remoteSpeaking = v
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store) resetLocked(err *core.CategoryError) {
	s.phase = domain.PhaseIdle
	s.conversationID = ""
	s.call = nil
	s.cleanup = nil
	s.micActive = false
	s.remoteSpeaking = false
	s.lastErr = err
}
