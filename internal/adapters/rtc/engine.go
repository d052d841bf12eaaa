// Package rtc is the native transport engine: a pion PeerConnection joined
// to a room endpoint with an audio-only offer/answer exchange.
package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/arvele/voicecall/internal/core"
)

type Engine struct {
	cfg webrtc.Configuration
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewEngine builds the engine with the given STUN servers, falling back to
// the default config when none are supplied.
func NewEngine(stunURLs []string) *Engine {
	cfg := DefaultWebRTCConfig()
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) NewCall(ctx context.Context, mc core.MediaConstraints) (core.Call, error) {
	return newCall(ctx, e.cfg, mc)
}
