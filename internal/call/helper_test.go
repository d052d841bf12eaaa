package call

import (
	"context"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

// fakeCall implements core.Call over a real emitter so tests can fire
// transport events. Behavior is overridden per test via the func fields.
type fakeCall struct {
	*core.Emitter

	joinFunc     func(ctx context.Context, opts core.JoinOptions) error
	leaveFunc    func(ctx context.Context) error
	destroyFunc  func() error
	setAudioFunc func(enabled bool) error

	joinCalls    int
	leaveCalls   int
	destroyCalls int
	audioCalls   []bool
}

func newFakeCall() *fakeCall {
	return &fakeCall{Emitter: core.NewEmitter()}
}

func (f *fakeCall) Join(ctx context.Context, opts core.JoinOptions) error {
	f.joinCalls++
	if f.joinFunc != nil {
		return f.joinFunc(ctx, opts)
	}
	return nil
}

func (f *fakeCall) Leave(ctx context.Context) error {
	f.leaveCalls++
	if f.leaveFunc != nil {
		return f.leaveFunc(ctx)
	}
	return nil
}

func (f *fakeCall) Destroy() error {
	f.destroyCalls++
	if f.destroyFunc != nil {
		return f.destroyFunc()
	}
	return nil
}

func (f *fakeCall) SetLocalAudio(enabled bool) error {
	f.audioCalls = append(f.audioCalls, enabled)
	if f.setAudioFunc != nil {
		return f.setAudioFunc(enabled)
	}
	return nil
}

func (f *fakeCall) Participants() []domain.ParticipantInfo { return nil }

// fakeEngine hands out a fixed call or an error.
type fakeEngine struct {
	call core.Call
	err  error
}

func (e *fakeEngine) NewCall(context.Context, core.MediaConstraints) (core.Call, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.call, nil
}

// recordingBank records renderer attach/release traffic.
type recordingBank struct {
	attached []domain.ParticipantID
	released []domain.ParticipantID
}

func (b *recordingBank) Attach(id domain.ParticipantID, _ core.AudioTrack) {
	b.attached = append(b.attached, id)
}
func (b *recordingBank) Release(id domain.ParticipantID) { b.released = append(b.released, id) }
func (b *recordingBank) ReleaseAll()                     {}

// panickyCall fails listener registration the way a destroyed call object
// would.
type panickyCall struct{ *fakeCall }

func (panickyCall) On(core.Event, core.HandlerFunc) core.HandlerID {
	panic("call object destroyed")
}

// fakeTrack satisfies core.AudioTrack for renderer wiring tests.
type fakeTrack struct {
	id  string
	pid domain.ParticipantID
}

func (t fakeTrack) ID() string                          { return t.id }
func (t fakeTrack) ParticipantID() domain.ParticipantID { return t.pid }
