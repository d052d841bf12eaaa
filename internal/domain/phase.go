package domain

// Phase is the store-level conversation state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseEnding     Phase = "ending"
)

// CallPhase tracks one call handle from creation to destruction.
type CallPhase string

const (
	CallUninitialized CallPhase = "uninitialized"
	CallInitialized   CallPhase = "initialized"
	CallJoining       CallPhase = "joining"
	CallJoined        CallPhase = "joined"
	CallLeaving       CallPhase = "leaving"
	CallDestroyed     CallPhase = "destroyed"
)
