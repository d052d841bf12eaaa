// Package core defines the capability surfaces the session layer depends on.
// Transport engines, the credential backend and audio renderers all plug in
// behind these interfaces; nothing above this package imports an SDK directly.
package core

import (
	"context"

	"github.com/arvele/voicecall/internal/domain"
)

// Event names a transport notification. The set is closed; engines never
// deliver events outside it.
type Event string

const (
	EventConnected          Event = "connected"
	EventDisconnected       Event = "disconnected"
	EventError              Event = "error"
	EventParticipantJoined  Event = "participant-joined"
	EventParticipantLeft    Event = "participant-left"
	EventParticipantUpdated Event = "participant-updated"
	EventTrackStarted       Event = "track-started"
	EventTrackStopped       Event = "track-stopped"
)

// Payload carries whatever a transport event has to say. Fields not relevant
// to the event are left zero.
type Payload struct {
	Participant *domain.ParticipantInfo
	Track       AudioTrack
	Err         error
	Message     string
}

type HandlerFunc func(Payload)

// HandlerID identifies one registered handler. Off removes by identity,
// never by event name alone, so unrelated registrations survive.
type HandlerID uint64

// MediaConstraints selects the media a call captures and publishes.
// This module is voice-only; Video stays false everywhere.
type MediaConstraints struct {
	Audio bool
	Video bool
}

type JoinOptions struct {
	URL   string
	Token string
}

// AudioTrack is an engine-owned remote audio source. Renderer banks downcast
// to their engine's concrete track type.
type AudioTrack interface {
	ID() string
	ParticipantID() domain.ParticipantID
}

// Call is one transport call object. Created by TransportEngine.NewCall,
// released by Destroy; never copied, never held by more than one owner.
type Call interface {
	Join(ctx context.Context, opts JoinOptions) error
	Leave(ctx context.Context) error
	Destroy() error
	On(ev Event, fn HandlerFunc) HandlerID
	Off(ev Event, id HandlerID)
	SetLocalAudio(enabled bool) error
	Participants() []domain.ParticipantInfo
}

// TransportEngine produces call objects for one platform. Exactly one engine
// is selected at startup via the adapters factory.
type TransportEngine interface {
	NewCall(ctx context.Context, mc MediaConstraints) (Call, error)
}

// CredentialIssuer is the conversation backend: allocates room credentials on
// Start, acknowledges the conversation end on End.
type CredentialIssuer interface {
	Start(ctx context.Context) (domain.RoomCredentials, error)
	End(ctx context.Context, conversationID string) error
}

// RendererBank owns the hidden audio-rendering handles for remote
// participants on platforms that do not play remote audio natively.
// One handle per participant id; Release disposes it.
type RendererBank interface {
	Attach(id domain.ParticipantID, track AudioTrack)
	Release(id domain.ParticipantID)
	ReleaseAll()
}

// NopRendererBank is for platforms where the transport renders remote audio
// itself and no local handle is needed.
type NopRendererBank struct{}

func (NopRendererBank) Attach(domain.ParticipantID, AudioTrack) {}
func (NopRendererBank) Release(domain.ParticipantID)            {}
func (NopRendererBank) ReleaseAll()                             {}
