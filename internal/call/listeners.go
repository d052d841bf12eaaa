package call

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// Callbacks are the application-level observers wired onto one call.
// Nil callbacks are simply not registered.
type Callbacks struct {
	OnConnected          func()
	OnDisconnected       func()
	OnError              func(*core.CategoryError)
	OnParticipantJoined  func(domain.ParticipantInfo)
	OnParticipantLeft    func(domain.ParticipantInfo)
	OnParticipantUpdated func(domain.ParticipantInfo)
	OnTrackStarted       func(domain.ParticipantInfo)
	OnTrackStopped       func(domain.ParticipantInfo)
}

type listenerHandle struct {
	ev core.Event
	id core.HandlerID
}

// AttachListeners wires cb onto c and returns an idempotent cleanup closure
// that removes every handler it registered, by identity. Error payloads are
// classified before they reach cb.OnError. Local-participant join/leave
// events are filtered out: only the remote agent matters in this design.
//
// renderers receives the remote-audio rendering obligation: track-started
// attaches a playout handle for the participant, track-stopped and
// participant-left release it, and a muted/blocked participant-updated
// releases it until the track starts again.
//
// If registration itself fails (for example the call object is already
// destroyed) the failure is logged and a no-op cleanup is returned: wiring
// failures must never block teardown.
func AttachListeners(c core.Call, cb Callbacks, renderers core.RendererBank) (cleanup func()) {
	if renderers == nil {
		renderers = core.NopRendererBank{}
	}
	handles := make([]listenerHandle, 0, 8)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", "call.listeners").
				Msg("listener attach failed; returning no-op cleanup")
			cleanup = func() {}
		}
	}()

	register := func(ev core.Event, fn core.HandlerFunc) {
		id := c.On(ev, fn)
		handles = append(handles, listenerHandle{ev: ev, id: id})
	}

	if cb.OnConnected != nil {
		register(core.EventConnected, func(core.Payload) { cb.OnConnected() })
	}
	if cb.OnDisconnected != nil {
		register(core.EventDisconnected, func(core.Payload) { cb.OnDisconnected() })
	}
	if cb.OnError != nil {
		register(core.EventError, func(p core.Payload) {
			cb.OnError(classifyPayload(p))
		})
	}
	if cb.OnParticipantJoined != nil {
		register(core.EventParticipantJoined, func(p core.Payload) {
			if p.Participant == nil || p.Participant.IsLocal {
				return
			}
			cb.OnParticipantJoined(*p.Participant)
		})
	}
	register(core.EventParticipantLeft, func(p core.Payload) {
		if p.Participant == nil || p.Participant.IsLocal {
			return
		}
		renderers.Release(p.Participant.ID)
		if cb.OnParticipantLeft != nil {
			cb.OnParticipantLeft(*p.Participant)
		}
	})
	register(core.EventParticipantUpdated, func(p core.Payload) {
		if p.Participant == nil || p.Participant.IsLocal {
			return
		}
		log.Debug().Str("module", "call.listeners").
			Str("participant", string(p.Participant.ID)).
			Bool("muted", p.Participant.AudioMuted).
			Bool("blocked", p.Participant.AudioBlocked).
			Msg("participant updated")
		// A muted or blocked track has no audio to play; drop the handle and
		// re-attach on the next track-started.
		if p.Participant.AudioMuted || p.Participant.AudioBlocked {
			renderers.Release(p.Participant.ID)
		}
		if cb.OnParticipantUpdated != nil {
			cb.OnParticipantUpdated(*p.Participant)
		}
	})
	register(core.EventTrackStarted, func(p core.Payload) {
		if p.Participant == nil || p.Participant.IsLocal {
			return
		}
		if p.Track != nil {
			renderers.Attach(p.Participant.ID, p.Track)
		}
		if cb.OnTrackStarted != nil {
			cb.OnTrackStarted(*p.Participant)
		}
	})
	register(core.EventTrackStopped, func(p core.Payload) {
		if p.Participant == nil || p.Participant.IsLocal {
			return
		}
		renderers.Release(p.Participant.ID)
		if cb.OnTrackStopped != nil {
			cb.OnTrackStopped(*p.Participant)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, h := range handles {
				c.Off(h.ev, h.id)
			}
			log.Debug().Str("module", "call.listeners").Int("removed", len(handles)).
				Msg("listeners detached")
		})
	}
}

func classifyPayload(p core.Payload) *core.CategoryError {
	if p.Err != nil {
		return core.ClassifyError(p.Err)
	}
	return core.NewCategoryError(core.Classify(p.Message), p.Message)
}
