package domain

type ParticipantID string

// ParticipantInfo is a read-only snapshot derived from one transport event.
// No persistent roster is kept; values are not retained between events.
type ParticipantInfo struct {
	ID           ParticipantID `json:"id"`
	IsLocal      bool          `json:"is_local"`
	AudioMuted   bool          `json:"audio_muted"`
	AudioBlocked bool          `json:"audio_blocked"`
}
