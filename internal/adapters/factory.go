// Package adapters selects the concrete transport for a run. The choice is
// made exactly once, here; nothing else in the tree branches on platform.
package adapters

import (
	"fmt"

	"github.com/arvele/voicecall/internal/adapters/gateway"
	"github.com/arvele/voicecall/internal/adapters/rtc"
	"github.com/arvele/voicecall/internal/config"
	"github.com/arvele/voicecall/internal/core"
)

// NewEngine returns the configured transport engine and the renderer bank
// matching it: the native engine must render remote audio itself, the
// gateway platform plays audio on its own.
func NewEngine(cfg *config.Config) (core.TransportEngine, core.RendererBank, error) {
	switch cfg.Engine {
	case "webrtc", "":
		return rtc.NewEngine(cfg.STUNURLs), rtc.NewBank(nil), nil
	case "gateway":
		return gateway.NewEngine(), core.NopRendererBank{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q (want webrtc or gateway)", cfg.Engine)
	}
}
