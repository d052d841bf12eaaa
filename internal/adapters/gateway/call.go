package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// envelope is the gateway wire frame, client and server directions alike.
type envelope struct {
	Type        string           `json:"type"`
	Token       string           `json:"token,omitempty"`
	Participant *participantInfo `json:"participant,omitempty"`
	Muted       bool             `json:"muted,omitempty"`
	Message     string           `json:"message,omitempty"`
}

type participantInfo struct {
	ID           string `json:"id"`
	AudioMuted   bool   `json:"audio_muted"`
	AudioBlocked bool   `json:"audio_blocked"`
}

type wsCall struct {
	dialer  *websocket.Dialer
	emitter *core.Emitter
	localID domain.ParticipantID

	mu         sync.Mutex
	conn       *websocket.Conn
	send       chan []byte
	cancel     context.CancelFunc
	closed     bool
	micEnabled bool
	remotes    map[domain.ParticipantID]domain.ParticipantInfo
}

func newCall(dialer *websocket.Dialer, mc core.MediaConstraints) (core.Call, error) {
	if mc.Video {
		return nil, fmt.Errorf("video capture not supported: voice-only engine")
	}
	return &wsCall{
		dialer:     dialer,
		emitter:    core.NewEmitter(),
		localID:    domain.ParticipantID(uuid.NewString()),
		micEnabled: true,
		remotes:    make(map[domain.ParticipantID]domain.ParticipantInfo),
	}, nil
}

// Join dials the gateway and sends the join envelope. Connection state after
// that flows through events: the server's "joined" frame becomes the
// connected event, never this method returning.
func (c *wsCall) Join(ctx context.Context, opts core.JoinOptions) error {
	target, err := wsURL(opts.URL)
	if err != nil {
		return fmt.Errorf("room url: %w", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			// Keep the status wording: the classifier reads it.
			return fmt.Errorf("gateway dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("gateway dial: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.send = make(chan []byte, sendBuffer)
	c.cancel = cancel
	c.mu.Unlock()

	go c.writePump(pumpCtx, conn)
	go c.readPump(conn)

	join := envelope{
		Type:        "join",
		Token:       opts.Token,
		Participant: &participantInfo{ID: string(c.localID)},
	}
	if err := c.trySend(join); err != nil {
		c.teardownConn()
		return fmt.Errorf("send join: %w", err)
	}
	log.Info().Str("module", "gateway").Str("participant", string(c.localID)).Msg("join sent")
	return nil
}

func (c *wsCall) writePump(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "gateway").Msg("writePump ctx done")
			return
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *wsCall) readPump(conn *websocket.Conn) {
	defer func() {
		c.teardownConn()
		c.emitter.Emit(core.EventDisconnected, core.Payload{})
		log.Debug().Str("module", "gateway").Msg("readPump closing")
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "gateway").Msg("readPump read error")
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *wsCall) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad frame json")
		return
	}

	switch env.Type {
	case "joined":
		c.emitter.Emit(core.EventConnected, core.Payload{})
	case "peer-joined":
		if p := c.rememberPeer(env.Participant); p != nil {
			c.emitter.Emit(core.EventParticipantJoined, core.Payload{Participant: p})
		}
	case "peer-left":
		if p := c.forgetPeer(env.Participant); p != nil {
			c.emitter.Emit(core.EventParticipantLeft, core.Payload{Participant: p})
		}
	case "peer-updated":
		if p := c.rememberPeer(env.Participant); p != nil {
			c.emitter.Emit(core.EventParticipantUpdated, core.Payload{Participant: p})
		}
	case "track-started":
		if p := c.rememberPeer(env.Participant); p != nil {
			c.emitter.Emit(core.EventTrackStarted, core.Payload{Participant: p})
		}
	case "track-stopped":
		if p := c.rememberPeer(env.Participant); p != nil {
			c.emitter.Emit(core.EventTrackStopped, core.Payload{Participant: p})
		}
	case "error":
		c.emitter.Emit(core.EventError, core.Payload{Message: env.Message})
	case "bye":
		// Server-initiated end; the read loop exits on the close frame that
		// follows, emitting disconnected exactly once.
		log.Info().Str("module", "gateway").Msg("server ended the call")
	default:
		log.Debug().Str("module", "gateway").Str("type", env.Type).Msg("unknown frame type")
	}
}

func (c *wsCall) rememberPeer(pi *participantInfo) *domain.ParticipantInfo {
	if pi == nil || pi.ID == string(c.localID) {
		return nil
	}
	p := domain.ParticipantInfo{
		ID:           domain.ParticipantID(pi.ID),
		AudioMuted:   pi.AudioMuted,
		AudioBlocked: pi.AudioBlocked,
	}
	c.mu.Lock()
	c.remotes[p.ID] = p
	c.mu.Unlock()
	return &p
}

func (c *wsCall) forgetPeer(pi *participantInfo) *domain.ParticipantInfo {
	if pi == nil || pi.ID == string(c.localID) {
		return nil
	}
	p := domain.ParticipantInfo{ID: domain.ParticipantID(pi.ID)}
	c.mu.Lock()
	delete(c.remotes, p.ID)
	c.mu.Unlock()
	return &p
}

func (c *wsCall) trySend(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.send == nil {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsCall) Leave(_ context.Context) error {
	if err := c.trySend(envelope{Type: "leave"}); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		deadline := time.Now().Add(writeDeadline)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	return nil
}

func (c *wsCall) Destroy() error {
	c.teardownConn()
	return nil
}

// teardownConn is idempotent: Destroy, a failed join, and the read pump may
// all race to it.
func (c *wsCall) teardownConn() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *wsCall) On(ev core.Event, fn core.HandlerFunc) core.HandlerID {
	return c.emitter.On(ev, fn)
}

func (c *wsCall) Off(ev core.Event, id core.HandlerID) {
	c.emitter.Off(ev, id)
}

// SetLocalAudio reports the mute state to the gateway, which owns the actual
// capture. Before Join it only records the constraint for the join envelope.
func (c *wsCall) SetLocalAudio(enabled bool) error {
	c.mu.Lock()
	connected := c.conn != nil && !c.closed
	c.mu.Unlock()
	if connected {
		if err := c.trySend(envelope{Type: "mute", Muted: !enabled}); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.micEnabled = enabled
	c.mu.Unlock()
	return nil
}

func (c *wsCall) Participants() []domain.ParticipantInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ParticipantInfo, 0, len(c.remotes)+1)
	out = append(out, domain.ParticipantInfo{ID: c.localID, IsLocal: true, AudioMuted: !c.micEnabled})
	for _, p := range c.remotes {
		out = append(out, p)
	}
	return out
}
