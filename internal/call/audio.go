// Package call drives one transport call object through its lifecycle:
// create, configure, join, teardown. It is the only package that talks to
// the transport engine directly.
package call

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// AudioConfigError reports a failed local-audio constraint. These are
// caller-visible: a call whose input constraints did not apply must not join.
type AudioConfigError struct {
	Err error
}

func (e *AudioConfigError) Error() string { return fmt.Sprintf("audio config: %v", e.Err) }
func (e *AudioConfigError) Unwrap() error { return e.Err }

// outputRouter is implemented by engines that support explicit output
// routing. Most platforms manage output themselves and never see this.
type outputRouter interface {
	SetAudioOutput(enabled bool) error
}

// ApplyAudioConfig establishes audio constraints on a call. Canonical order
// is configure-then-join: constraints must exist before the room connection.
// Input failures surface as AudioConfigError; the output hint is best-effort
// and never fails.
func ApplyAudioConfig(c core.Call, cfg domain.AudioConfig) error {
	if err := c.SetLocalAudio(cfg.InputEnabled); err != nil {
		return &AudioConfigError{Err: err}
	}
	applyOutputHint(c, cfg)
	return nil
}

// applyOutputHint is a documented no-op on platforms without explicit output
// control.
func applyOutputHint(c core.Call, cfg domain.AudioConfig) {
	r, ok := c.(outputRouter)
	if !ok {
		return
	}
	if err := r.SetAudioOutput(cfg.OutputEnabled); err != nil {
		log.Warn().Err(err).Str("module", "call.audio").Msg("audio output hint rejected")
	}
}
