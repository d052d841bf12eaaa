package rtc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// rtcCall is one native call object. Media is audio-only: a single local
// opus track published through one sender, remote tracks surfaced as
// track-started events.
type rtcCall struct {
	pc         *webrtc.PeerConnection
	localTrack *webrtc.TrackLocalStaticSample
	sender     *webrtc.RTPSender
	emitter    *core.Emitter
	localID    domain.ParticipantID
	hc         *http.Client

	mu          sync.Mutex
	resourceURL string
	micEnabled  bool
	destroyed   bool
	remotes     map[domain.ParticipantID]domain.ParticipantInfo
}

func newCall(_ context.Context, cfg webrtc.Configuration, mc core.MediaConstraints) (core.Call, error) {
	if mc.Video {
		return nil, fmt.Errorf("video capture not supported: voice-only engine")
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	localTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "voicecall-mic",
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := pc.AddTrack(localTrack)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add local track: %w", err)
	}

	c := &rtcCall{
		pc:         pc,
		localTrack: localTrack,
		sender:     sender,
		emitter:    core.NewEmitter(),
		localID:    domain.ParticipantID(uuid.NewString()),
		hc:         &http.Client{Timeout: 15 * time.Second},
		micEnabled: true,
		remotes:    make(map[domain.ParticipantID]domain.ParticipantInfo),
	}
	c.wire()
	return c, nil
}

func (c *rtcCall) wire() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.emitter.Emit(core.EventConnected, core.Payload{})
		case webrtc.PeerConnectionStateFailed:
			c.emitter.Emit(core.EventError, core.Payload{Message: "ice connection failed"})
			c.emitter.Emit(core.EventDisconnected, core.Payload{})
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			c.emitter.Emit(core.EventDisconnected, core.Payload{})
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		pid := domain.ParticipantID(track.StreamID())
		if pid == "" {
			pid = domain.ParticipantID(track.ID())
		}
		info := domain.ParticipantInfo{ID: pid}
		c.mu.Lock()
		_, known := c.remotes[pid]
		c.remotes[pid] = info
		c.mu.Unlock()

		log.Info().Str("module", "rtc").Str("participant", string(pid)).
			Str("track_id", track.ID()).Msg("remote track received")
		if !known {
			c.emitter.Emit(core.EventParticipantJoined, core.Payload{Participant: &info})
		}
		rt := &RemoteTrack{id: track.ID(), participant: pid, src: track}
		rt.onEnded = func() {
			c.emitter.Emit(core.EventTrackStopped, core.Payload{Participant: &info})
		}
		c.emitter.Emit(core.EventTrackStarted, core.Payload{
			Participant: &info,
			Track:       rt,
		})
	})
}

// Join runs the offer/answer exchange against the room endpoint: the local
// offer goes up as application/sdp with the room token as bearer, the answer
// comes back in the response body. The resource URL from the Location header
// is kept for Leave.
func (c *rtcCall) Join(ctx context.Context, opts core.JoinOptions) error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL,
		strings.NewReader(c.pc.LocalDescription().SDP))
	if err != nil {
		return fmt.Errorf("join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("join rejected: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		c.mu.Lock()
		c.resourceURL = resolveResource(opts.URL, loc)
		c.mu.Unlock()
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Leave releases the server-side resource. Best-effort: a dead resource URL
// is not an error worth surfacing past teardown.
func (c *rtcCall) Leave(ctx context.Context) error {
	c.mu.Lock()
	res := c.resourceURL
	c.resourceURL = ""
	c.mu.Unlock()
	if res == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, res, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (c *rtcCall) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()
	return c.pc.Close()
}

func (c *rtcCall) On(ev core.Event, fn core.HandlerFunc) core.HandlerID {
	return c.emitter.On(ev, fn)
}

func (c *rtcCall) Off(ev core.Event, id core.HandlerID) {
	c.emitter.Off(ev, id)
}

// SetLocalAudio mutes by detaching the local track from the sender; the
// transceiver stays negotiated so unmute is just a re-attach.
func (c *rtcCall) SetLocalAudio(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.micEnabled {
		return nil
	}
	var err error
	if enabled {
		err = c.sender.ReplaceTrack(c.localTrack)
	} else {
		err = c.sender.ReplaceTrack(nil)
	}
	if err != nil {
		return fmt.Errorf("set local audio: %w", err)
	}
	c.micEnabled = enabled
	return nil
}

func (c *rtcCall) Participants() []domain.ParticipantInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ParticipantInfo, 0, len(c.remotes)+1)
	out = append(out, domain.ParticipantInfo{ID: c.localID, IsLocal: true, AudioMuted: !c.micEnabled})
	for _, p := range c.remotes {
		out = append(out, p)
	}
	return out
}

// resolveResource handles both absolute and endpoint-relative Location
// headers.
func resolveResource(joinURL, loc string) string {
	if strings.Contains(loc, "://") {
		return loc
	}
	base := strings.TrimRight(joinURL, "/")
	if strings.HasPrefix(loc, "/") {
		if i := strings.Index(base, "://"); i >= 0 {
			if j := strings.Index(base[i+3:], "/"); j >= 0 {
				return base[:i+3+j] + loc
			}
		}
		return base + loc
	}
	return base + "/" + loc
}

// rtpSource is what a renderer drains; *webrtc.TrackRemote satisfies it.
type rtpSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RemoteTrack is the engine's concrete core.AudioTrack. The renderer bank
// downcasts to reach the RTP source.
type RemoteTrack struct {
	id          string
	participant domain.ParticipantID
	src         rtpSource
	onEnded     func()
}

func (t *RemoteTrack) ID() string                            { return t.id }
func (t *RemoteTrack) ParticipantID() domain.ParticipantID   { return t.participant }
func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return t.src.ReadRTP()
}

// ended is invoked by the renderer pump when the track stops delivering RTP;
// the engine turns it into a track-stopped event so observers do not report
// a remote speaker that went silent for good.
func (t *RemoteTrack) ended() {
	if t.onEnded != nil {
		t.onEnded()
	}
}
