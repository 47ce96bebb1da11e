package playout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRamp = 10 * jps

func encodedStream(f *MsgFactory, trackID, streamID uint32, h StreamHandler) *MsgEncodedStream {
	return f.CreateEncodedStream(EncodedStreamInfo{
		URI:      "test://",
		TrackID:  trackID,
		StreamID: streamID,
		Seekable: true,
		Handler:  h,
	})
}

func TestStopperPlay(t *testing.T) {
	f := newTestFactory()
	h := &handler{play: PlayYes}
	src := newScript(t,
		encodedStream(f, 1, 1, h),
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		f.CreateQuit(),
	)
	rec := &stateRecorder{}
	s := NewStopper(f, src, rec, testRamp)
	assert.Equal(t, "stopped", s.State())
	s.Play()
	assert.Equal(t, "running", s.State())

	assert.Equal(t, []Kind{KindDecodedStream, KindAudioPcm, KindQuit}, pullKinds(s, 3))
	assert.Equal(t, 1, h.oks)
	assert.Empty(t, rec.get())
	assertReleased(t, f)
}

func TestStopperPause(t *testing.T) {
	f := newTestFactory()
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
	)
	rec := &stateRecorder{}
	s := NewStopper(f, src, rec, testRamp)
	s.Play()
	assert.Equal(t, []Kind{KindDecodedStream, KindAudioPcm}, pullKinds(s, 2))

	s.BeginPause()
	assert.Equal(t, "ramping down", s.State())
	m := s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 10, m.Frames(), "ramp splits the message")
	assert.Equal(t, RampDown, m.Ramp().Direction)
	assert.Equal(t, RampMin, m.Ramp().End)
	m.RemoveRef()

	halt := s.Pull().(*MsgHalt)
	assert.Equal(t, HaltIDNone, halt.ID)
	halt.RemoveRef()
	assert.Equal(t, "paused", s.State())
	assert.Equal(t, []string{"paused"}, rec.get())

	s.Play()
	assert.Equal(t, "ramping up", s.State())
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 10, m.Frames(), "remainder is ramped up")
	assert.Equal(t, RampUp, m.Ramp().Direction)
	assert.Equal(t, RampMax, m.Ramp().End)
	m.RemoveRef()
	assert.Equal(t, "running", s.State())

	m = s.Pull().(*MsgAudioPcm)
	assert.False(t, m.Ramp().Enabled)
	m.RemoveRef()
	assertReleased(t, f)
}

func TestStopperStop(t *testing.T) {
	f := newTestFactory()
	h := &handler{play: PlayYes, stopID: 7}
	src := newScript(t,
		encodedStream(f, 1, 1, h),
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
		f.CreateMetaText("dropped"),
		f.CreateFlush(7),
		f.CreateTrack(Track{ID: 2}, true),
	)
	rec := &stateRecorder{}
	s := NewStopper(f, src, rec, testRamp)
	s.Play()
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))

	s.BeginStop(5)
	m := s.Pull()
	assert.Equal(t, KindAudioPcm, m.Kind())
	m.RemoveRef()
	halt := s.Pull().(*MsgHalt)
	assert.Equal(t, uint32(5), halt.ID)
	halt.RemoveRef()
	assert.Equal(t, []string{"stopped"}, rec.get())
	assert.Equal(t, 1, h.stops)

	s.Play()
	// audio up to the flush of the stopped stream is discarded
	assert.Equal(t, []Kind{KindTrack}, pullKinds(s, 1))
	assertReleased(t, f)
}

func TestStopperStopWhileStopped(t *testing.T) {
	f := newTestFactory()
	s := NewStopper(f, newScript(t), nil, testRamp)
	s.BeginStop(9)
	halt := s.Pull().(*MsgHalt)
	assert.Equal(t, uint32(9), halt.ID)
	halt.RemoveRef()

	s.StopNow(3)
	halt = s.Pull().(*MsgHalt)
	assert.Equal(t, uint32(3), halt.ID)
	halt.RemoveRef()
	assertReleased(t, f)
}

func TestStopperOkToPlay(t *testing.T) {
	t.Run("no", func(t *testing.T) {
		f := newTestFactory()
		h := &handler{play: PlayNo}
		src := newScript(t,
			encodedStream(f, 1, 1, h),
			decodedStream(f, 1, 1, nil),
			pcm(f, 20, 100),
			f.CreateTrack(Track{ID: 2}, true),
		)
		s := NewStopper(f, src, nil, testRamp)
		s.Play()
		assert.Equal(t, []Kind{KindHalt, KindTrack}, pullKinds(s, 2))
		assertReleased(t, f)
	})
	t.Run("later", func(t *testing.T) {
		f := newTestFactory()
		h := &handler{play: PlayLater}
		src := newScript(t,
			encodedStream(f, 1, 1, h),
			decodedStream(f, 1, 1, nil),
			pcm(f, 20, 100),
		)
		rec := &stateRecorder{}
		s := NewStopper(f, src, rec, testRamp)
		s.Play()
		assert.Equal(t, []Kind{KindDecodedStream, KindHalt}, pullKinds(s, 2))
		assert.Equal(t, []string{"stopped"}, rec.get())
		assert.Equal(t, "stopped", s.State())

		s.Play()
		assert.Equal(t, []Kind{KindAudioPcm}, pullKinds(s, 1))
		assert.Equal(t, 1, h.oks)
		assertReleased(t, f)
	})
}

func TestStopperHaltAtBoundary(t *testing.T) {
	f := newTestFactory()
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 5, 100),
		f.CreateHalt(HaltIDNone),
	)
	rec := &stateRecorder{}
	s := NewStopper(f, src, rec, testRamp)
	s.Play()
	assert.Equal(t, []Kind{KindDecodedStream, KindAudioPcm}, pullKinds(s, 2))
	s.BeginPause()
	m := s.Pull()
	require.Equal(t, KindAudioPcm, m.Kind())
	assert.Equal(t, "ramping down", s.State())
	m.RemoveRef()
	// stream ends before ramp completes
	assert.Equal(t, []Kind{KindHalt}, pullKinds(s, 1))
	assert.Equal(t, []string{"paused"}, rec.get())

	s.Play()
	assert.Equal(t, []Kind{KindHalt}, pullKinds(s, 1), "upstream halt follows")
	assertReleased(t, f)
}

func TestStopperPlayReversesRamp(t *testing.T) {
	f := newTestFactory()
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 4, 100),
		pcm(f, 20, 100),
	)
	s := NewStopper(f, src, nil, testRamp)
	s.Play()
	pullKinds(s, 1)
	s.BeginPause()
	m := s.Pull().(*MsgAudioPcm)
	down := m.Ramp()
	m.RemoveRef()
	s.Play()
	assert.Equal(t, "ramping up", s.State())
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 4, m.Frames(), "reversed ramp is as long as the ramp down ran")
	assert.Equal(t, RampUp, m.Ramp().Direction)
	assert.Equal(t, down.End, m.Ramp().Start, "gain is continuous")
	m.RemoveRef()
	assert.Equal(t, "running", s.State())
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 16, m.Frames())
	m.RemoveRef()
	assertReleased(t, f)
}

func TestStopperQuit(t *testing.T) {
	f := newTestFactory()
	src := newScript(t, f.CreateQuit())
	s := NewStopper(f, src, nil, testRamp)
	s.Quit()
	assert.Equal(t, []Kind{KindQuit}, pullKinds(s, 1))
}

func TestStopperDoubleReversal(t *testing.T) {
	f := newTestFactory()
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 4, 100),
		pcm(f, 2, 100),
		pcm(f, 20, 100),
	)
	s := NewStopper(f, src, nil, testRamp)
	s.Play()
	assert.Equal(t, []Kind{KindDecodedStream, KindAudioPcm}, pullKinds(s, 2))

	s.BeginPause()
	m := s.Pull().(*MsgAudioPcm)
	down := m.Ramp()
	m.RemoveRef()
	s.Play()
	m = s.Pull().(*MsgAudioPcm)
	up := m.Ramp()
	m.RemoveRef()
	assert.Equal(t, down.End, up.Start)
	require.Less(t, up.End, RampMax, "ramp up still in progress")

	// flip twice before the next audio
	s.BeginPause()
	s.Play()
	assert.Equal(t, "ramping up", s.State())
	m = s.Pull().(*MsgAudioPcm)
	assert.True(t, m.Ramp().Enabled)
	assert.Equal(t, RampUp, m.Ramp().Direction)
	assert.Equal(t, up.End, m.Ramp().Start, "gain is continuous")
	assert.Equal(t, RampMax, m.Ramp().End)
	assert.Less(t, m.Frames(), 20)
	m.RemoveRef()
	assert.Equal(t, "running", s.State())

	m = s.Pull().(*MsgAudioPcm)
	assert.False(t, m.Ramp().Enabled)
	m.RemoveRef()
	assertReleased(t, f)
}

func TestStopperIdempotent(t *testing.T) {
	f := newTestFactory()
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
	)
	rec := &stateRecorder{}
	s := NewStopper(f, src, rec, testRamp)
	s.Play()
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))

	s.Play()
	assert.Equal(t, "running", s.State())
	m := s.Pull().(*MsgAudioPcm)
	assert.False(t, m.Ramp().Enabled, "play while running doesn't ramp")
	m.RemoveRef()
	assert.Empty(t, rec.get())

	s.BeginPause()
	assert.Equal(t, []Kind{KindAudioPcm, KindHalt}, pullKinds(s, 2))
	assert.Equal(t, "paused", s.State())

	s.BeginPause()
	assert.Equal(t, "paused", s.State())
	assert.Equal(t, []string{"paused"}, rec.get())

	// no second halt is pending, the ramp up of the remainder follows
	s.Play()
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, RampUp, m.Ramp().Direction)
	m.RemoveRef()
	assert.Equal(t, []string{"paused"}, rec.get())
	assertReleased(t, f)
}

func TestStopperStopNowClearsPending(t *testing.T) {
	f := newTestFactory()
	h := &handler{play: PlayYes, stopID: 7}
	src := newScript(t,
		encodedStream(f, 1, 1, h),
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
		f.CreateFlush(7),
		f.CreateTrack(Track{ID: 2}, true),
	)
	rec := &stateRecorder{}
	s := NewStopper(f, src, rec, testRamp)
	s.Play()
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))

	// the ramp down splits the message, its remainder is pending
	s.BeginPause()
	assert.Equal(t, []Kind{KindAudioPcm, KindHalt}, pullKinds(s, 2))

	s.StopNow(4)
	halt := s.Pull().(*MsgHalt)
	assert.Equal(t, uint32(4), halt.ID)
	halt.RemoveRef()
	assert.Equal(t, 1, h.stops)
	assert.Equal(t, []string{"paused", "stopped"}, rec.get())

	s.Play()
	assert.Equal(t, []Kind{KindTrack}, pullKinds(s, 1))
	assertReleased(t, f)
}
