package player

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond

func newTestEngine() (*Engine, *MockFactory) {
	f := NewMockFactory()
	return NewEngine(f.New), f
}

func TestAttachCreatesResource(t *testing.T) {
	e, f := newTestEngine()

	e.Attach("a", "http://x/a", false)

	require.Len(t, f.Created(), 1)
	assert.True(t, e.HasResource())
	assert.Equal(t, "a", e.AttachedKey())
	st := e.State()
	assert.Equal(t, "http://x/a", st.Source)
	assert.False(t, st.IsPlaying)
	assert.Zero(t, f.Last().PlayCalls())
}

func TestAttachReusesSameURL(t *testing.T) {
	e, f := newTestEngine()

	e.Attach("a", "http://x/a", false)
	e.Attach("a", "http://x/a", true)

	require.Len(t, f.Created(), 1)
	assert.False(t, f.Last().Closed())
	require.Eventually(t, func() bool { return e.State().IsPlaying }, waitFor, tick)
}

func TestAttachTearsDownPreviousResource(t *testing.T) {
	e, f := newTestEngine()

	e.Attach("a", "http://x/a", false)
	first := f.Last()
	e.Attach("b", "http://x/b", false)

	require.Len(t, f.Created(), 2)
	assert.True(t, first.Closed())
	assert.False(t, f.Last().Closed())
	assert.Equal(t, "b", e.AttachedKey())
}

func TestStaleEventsIgnored(t *testing.T) {
	e, f := newTestEngine()

	e.Attach("a", "http://x/a", false)
	first := f.Last()
	e.Attach("b", "http://x/b", false)

	first.EmitMetadata(90 * time.Second)
	first.EmitTimeUpdate(30 * time.Second)
	first.EmitWaiting()
	first.EmitError(errors.New("stale"))

	st := e.State()
	assert.Zero(t, st.Duration)
	assert.Zero(t, st.Position)
	assert.False(t, st.IsBuffering)
	assert.Empty(t, st.LastError)
}

func TestEventsUpdateState(t *testing.T) {
	e, f := newTestEngine()
	e.Attach("a", "http://x/a", false)
	res := f.Last()

	res.EmitMetadata(3 * time.Minute)
	res.EmitWaiting()
	assert.True(t, e.State().IsBuffering)

	res.EmitTimeUpdate(42 * time.Second)
	st := e.State()
	assert.Equal(t, 3*time.Minute, st.Duration)
	assert.Equal(t, 42*time.Second, st.Position)

	require.NoError(t, e.Play())
	require.Eventually(t, func() bool { return e.State().IsPlaying }, waitFor, tick)
	assert.False(t, e.State().IsBuffering)

	e.Pause()
	assert.False(t, e.State().IsPlaying)
	assert.Equal(t, 1, res.PauseCalls())

	res.EmitError(errors.New("decode failed"))
	assert.Equal(t, "decode failed", e.State().LastError)
}

func TestAutoplayRejectionMarksKey(t *testing.T) {
	e, f := newTestEngine()
	f.SetPlayError(fmt.Errorf("%w: no output device", ErrPlaybackRejected))

	e.Attach("a", "http://x/a", true)

	require.Eventually(t, func() bool { return e.AutoplayFailed("a") }, waitFor, tick)
	assert.True(t, e.HasResource(), "resource stays attached after rejection")
	assert.False(t, e.State().IsPlaying)
	assert.NotEmpty(t, e.State().LastError)
}

func TestAutoplayRuntimeErrorDoesNotMarkKey(t *testing.T) {
	e, f := newTestEngine()
	f.SetPlayError(errors.New("decoder exploded"))

	e.Attach("a", "http://x/a", true)

	require.Eventually(t, func() bool { return e.State().LastError != "" }, waitFor, tick)
	assert.False(t, e.AutoplayFailed("a"))
}

func TestUserPlayClearsAutoplayFailure(t *testing.T) {
	e, f := newTestEngine()
	f.SetPlayError(fmt.Errorf("%w: blocked", ErrPlaybackRejected))
	e.Attach("a", "http://x/a", true)
	require.Eventually(t, func() bool { return e.AutoplayFailed("a") }, waitFor, tick)

	f.Last().SetPlayError(nil)
	require.NoError(t, e.Play())

	assert.False(t, e.AutoplayFailed("a"))
	require.Eventually(t, func() bool { return e.State().IsPlaying }, waitFor, tick)
}

func TestPlayWithoutResource(t *testing.T) {
	e, _ := newTestEngine()
	assert.ErrorIs(t, e.Play(), ErrNoResource)
}

func TestEndedInvokesCallback(t *testing.T) {
	e, f := newTestEngine()
	var ended atomic.Int32
	e.SetOnEnded(func(string) { ended.Add(1) })

	e.Attach("a", "http://x/a", true)
	require.Eventually(t, func() bool { return e.State().IsPlaying }, waitFor, tick)
	f.Last().EmitEnded()

	require.Eventually(t, func() bool { return ended.Load() == 1 }, waitFor, tick)
	assert.False(t, e.State().IsPlaying)
}

func TestFinishedClearedByPlayAndSeek(t *testing.T) {
	e, f := newTestEngine()
	ended := make(chan string, 1)
	e.SetOnEnded(func(key string) { ended <- key })

	e.Attach("a", "http://x/a", true)
	require.Eventually(t, func() bool { return e.State().IsPlaying }, waitFor, tick)
	assert.False(t, e.Finished("a"))

	f.Last().EmitEnded()
	select {
	case key := <-ended:
		assert.Equal(t, "a", key)
	case <-time.After(waitFor):
		t.Fatal("ended callback not invoked")
	}
	assert.True(t, e.Finished("a"))
	assert.False(t, e.Finished("b"))

	e.Seek(0)
	assert.False(t, e.Finished("a"))

	f.Last().EmitEnded()
	<-ended
	require.NoError(t, e.Play())
	assert.False(t, e.Finished("a"))

	f.Last().EmitEnded()
	<-ended
	e.Detach()
	assert.False(t, e.Finished("a"))
}

func TestEndedWithLoopRestarts(t *testing.T) {
	e, f := newTestEngine()
	var ended atomic.Int32
	e.SetOnEnded(func(string) { ended.Add(1) })
	e.SetLoop(true)

	e.Attach("a", "http://x/a", true)
	res := f.Last()
	require.Eventually(t, func() bool { return res.PlayCalls() == 1 }, waitFor, tick)

	res.EmitEnded()

	require.Eventually(t, func() bool { return res.PlayCalls() == 2 }, waitFor, tick)
	assert.Equal(t, []time.Duration{0}, res.Seeks())
	assert.Zero(t, ended.Load())
}

func TestStaleEndedIgnored(t *testing.T) {
	e, f := newTestEngine()
	var ended atomic.Int32
	e.SetOnEnded(func(string) { ended.Add(1) })

	e.Attach("a", "http://x/a", false)
	first := f.Last()
	e.Attach("b", "http://x/b", false)
	first.EmitEnded()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ended.Load())
}

func TestSeekClamps(t *testing.T) {
	e, f := newTestEngine()
	e.Attach("a", "http://x/a", false)
	f.Last().EmitMetadata(200 * time.Second)

	tests := []struct {
		in, want time.Duration
	}{
		{-10 * time.Second, 0},
		{500 * time.Second, 200 * time.Second},
		{75 * time.Second, 75 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Seek(tt.in))
		assert.Equal(t, tt.want, e.State().Position)
	}
	assert.Equal(t, []time.Duration{0, 200 * time.Second, 75 * time.Second}, f.Last().Seeks())
}

func TestSeekUnknownDurationOnlyClampsLowerBound(t *testing.T) {
	e, _ := newTestEngine()

	assert.Equal(t, time.Duration(0), e.Seek(-time.Second))
	assert.Equal(t, time.Hour, e.Seek(time.Hour))
}

func TestDetach(t *testing.T) {
	e, f := newTestEngine()
	e.Attach("a", "http://x/a", false)

	e.Detach()

	assert.True(t, f.Last().Closed())
	assert.False(t, e.HasResource())
	assert.Empty(t, e.AttachedKey())
	assert.Empty(t, e.State().Source)
}

func TestVolumeAppliedToResources(t *testing.T) {
	e, f := newTestEngine()
	e.SetVolume(40)
	e.Attach("a", "http://x/a", false)
	assert.Equal(t, 40, f.Last().Volume())

	e.SetVolume(150)
	assert.Equal(t, 100, e.Volume())
	assert.Equal(t, 100, f.Last().Volume())
}

func TestStateReportsVolumeAndRate(t *testing.T) {
	e, _ := newTestEngine()
	st := e.State()
	assert.Equal(t, 100, st.Volume)
	assert.Equal(t, DefaultRate, st.Rate)

	e.SetVolume(35)
	e.SetRate(1.5)
	st = e.State()
	assert.Equal(t, 35, st.Volume)
	assert.Equal(t, 1.5, st.Rate)
	assert.Equal(t, 1.5, e.Rate())
}

func TestLoadingAndFail(t *testing.T) {
	e, _ := newTestEngine()

	e.SetLoading(true)
	assert.True(t, e.State().LoadingStream)

	e.Fail(errors.New("resolve failed"))
	st := e.State()
	assert.False(t, st.LoadingStream)
	assert.Equal(t, "resolve failed", st.LastError)
}
