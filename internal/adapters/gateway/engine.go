// Package gateway is the hosted transport engine: the room endpoint is a
// websocket gateway that terminates the media itself and signals call state
// over JSON envelopes. Remote audio is rendered by the platform, so the
// renderer obligation is a no-op here.
package gateway

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arvele/voicecall/internal/core"
)

const (
	writeDeadline = 5 * time.Second
	sendBuffer    = 32
)

type Engine struct {
	dialer *websocket.Dialer
}

func NewEngine() *Engine {
	return &Engine{dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
}

func (e *Engine) NewCall(_ context.Context, mc core.MediaConstraints) (core.Call, error) {
	return newCall(e.dialer, mc)
}

// wsURL rewrites room URLs to the websocket scheme; ws/wss pass through.
func wsURL(room string) (string, error) {
	u, err := url.Parse(room)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
