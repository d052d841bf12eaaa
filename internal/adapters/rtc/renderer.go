package rtc

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// PlayoutSink receives the raw audio payload of one remote participant.
// What happens to the bytes is up to the embedder: a device playout buffer,
// a file, or nothing at all.
type PlayoutSink interface {
	io.WriteCloser
}

// SinkFactory builds one sink per remote participant.
type SinkFactory func(domain.ParticipantID) PlayoutSink

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }
func (discardSink) Close() error                { return nil }

// DiscardSinks drains remote audio without playing it. Draining still
// matters: an undrained receiver stalls the remote sender.
func DiscardSinks(domain.ParticipantID) PlayoutSink { return discardSink{} }

type renderHandle struct {
	cancel context.CancelFunc
}

// Bank holds one hidden rendering handle per remote participant, the native
// analog of the hidden audio element a browser target would keep. Attach
// starts a pump goroutine reading RTP from the track into the participant's
// sink; Release stops it and closes the sink.
type Bank struct {
	sinks SinkFactory

	mu      sync.Mutex
	handles map[domain.ParticipantID]*renderHandle
}

func NewBank(sinks SinkFactory) *Bank {
	if sinks == nil {
		sinks = DiscardSinks
	}
	return &Bank{sinks: sinks, handles: make(map[domain.ParticipantID]*renderHandle)}
}

func (b *Bank) Attach(id domain.ParticipantID, track core.AudioTrack) {
	rt, ok := track.(*RemoteTrack)
	if !ok {
		log.Warn().Str("module", "rtc.renderer").Str("participant", string(id)).
			Msg("track is not a native remote track, skipping")
		return
	}

	// A fresh track for the same participant supersedes the old handle.
	b.Release(id)

	ctx, cancel := context.WithCancel(context.Background())
	h := &renderHandle{cancel: cancel}
	b.mu.Lock()
	b.handles[id] = h
	b.mu.Unlock()

	sink := b.sinks(id)
	go b.pump(ctx, id, h, rt, sink)
	log.Debug().Str("module", "rtc.renderer").Str("participant", string(id)).Msg("renderer attached")
}

// pump reads RTP packets from the track and forwards the payload to the
// sink until the track ends or the handle is released.
func (b *Bank) pump(ctx context.Context, id domain.ParticipantID, h *renderHandle, rt *RemoteTrack, sink PlayoutSink) {
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rtc.renderer").Str("participant", string(id)).Msg("sink close")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := rt.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "rtc.renderer").Str("participant", string(id)).
				Msg("track ended, stopping renderer")
			b.dropHandle(id, h)
			rt.ended()
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if _, err := sink.Write(pkt.Payload); err != nil {
			log.Warn().Err(err).Str("module", "rtc.renderer").Str("participant", string(id)).
				Msg("sink write error, stopping renderer")
			b.dropHandle(id, h)
			return
		}
	}
}

func (b *Bank) Release(id domain.ParticipantID) {
	b.mu.Lock()
	h, ok := b.handles[id]
	if ok {
		delete(b.handles, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	// Cancel only: ReadRTP may be blocked on a silent track, so the pump is
	// never waited on. It exits on the next read return and closes the sink.
	h.cancel()
	log.Debug().Str("module", "rtc.renderer").Str("participant", string(id)).Msg("renderer released")
}

func (b *Bank) ReleaseAll() {
	b.mu.Lock()
	handles := b.handles
	b.handles = make(map[domain.ParticipantID]*renderHandle)
	b.mu.Unlock()
	for id, h := range handles {
		h.cancel()
		log.Debug().Str("module", "rtc.renderer").Str("participant", string(id)).Msg("renderer released")
	}
}

// dropHandle forgets a handle whose pump stopped on its own; cancel is not
// needed, the goroutine is already exiting. A superseded pump must not
// remove its successor's handle, hence the identity check.
func (b *Bank) dropHandle(id domain.ParticipantID, h *renderHandle) {
	b.mu.Lock()
	if b.handles[id] == h {
		delete(b.handles, id)
	}
	b.mu.Unlock()
}
