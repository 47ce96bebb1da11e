package playout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStarvationMonitor(t *testing.T, f *MsgFactory, obs StarvationObserver) *StarvationMonitor {
	s, err := NewStarvationMonitor(f, nil, obs, 40*jps, 20*jps, 60*jps, 10*jps)
	require.NoError(t, err)
	return s
}

// enqueueAsync enqueues m on a goroutine, the returned channel is closed
// once Enqueue returns.
func enqueueAsync(s *StarvationMonitor, m Msg) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.Enqueue(m)
		close(done)
	}()
	return done
}

func TestStarvationMonitorSizes(t *testing.T) {
	f := newTestFactory()
	_, err := NewStarvationMonitor(f, nil, nil, 40*jps, 50*jps, 60*jps, 10*jps)
	assert.Error(t, err)
	_, err = NewStarvationMonitor(f, nil, nil, 40*jps, 20*jps, 60*jps, 60*jps)
	assert.Error(t, err)
}

func TestStarvationMonitor(t *testing.T) {
	f := newTestFactory()
	h := &handler{}
	rec := &stateRecorder{}
	s := newTestStarvationMonitor(t, f, rec)
	assert.Equal(t, "buffering", s.State())

	s.Enqueue(f.CreateMode("radio", false, false))
	s.Enqueue(decodedStream(f, 1, 1, h))
	s.Enqueue(pcm(f, 20, 100))
	s.Enqueue(pcm(f, 20, 100))
	assert.False(t, s.EnqueueWouldBlock())
	done := enqueueAsync(s, pcm(f, 20, 100))

	assert.Equal(t, []Kind{KindMode, KindDecodedStream}, pullKinds(s, 2))
	m := s.Pull().(*MsgAudioPcm)
	assert.False(t, m.Ramp().Enabled)
	m.RemoveRef()
	assert.Equal(t, "running", s.State())
	m = s.Pull().(*MsgAudioPcm)
	assert.False(t, m.Ramp().Enabled, "buffer at threshold")
	m.RemoveRef()
	<-done

	t.Run("starve", func(t *testing.T) {
		m := s.Pull().(*MsgAudioPcm)
		assert.Equal(t, 20, m.Frames())
		assert.Equal(t, Ramp{Start: RampMax, End: RampMin, Direction: RampDown, Enabled: true}, m.Ramp())
		m.RemoveRef()
		assert.Equal(t, "buffering", s.State())
		assert.False(t, s.PullWouldBlock(), "halt is due")

		halt := s.Pull().(*MsgHalt)
		assert.Equal(t, HaltIDNone, halt.ID)
		halt.RemoveRef()
		assert.True(t, s.PullWouldBlock())
		assert.Equal(t, []string{"buffering"}, rec.get())
		assert.Equal(t, 1, h.starving)
	})

	t.Run("recover", func(t *testing.T) {
		s.Enqueue(pcm(f, 20, 100))
		s.Enqueue(pcm(f, 20, 100))
		done := enqueueAsync(s, pcm(f, 20, 100))

		m := s.Pull().(*MsgAudioPcm)
		assert.Equal(t, 10, m.Frames())
		assert.Equal(t, RampUp, m.Ramp().Direction)
		m.RemoveRef()
		assert.Eventually(t, func() bool {
			return len(rec.get()) == 2
		}, time.Second, time.Millisecond)
		assert.Equal(t, []string{"buffering", "not buffering"}, rec.get())
		assert.Equal(t, "running", s.State())

		assert.Equal(t, []Kind{KindAudioPcm, KindAudioPcm}, pullKinds(s, 2))
		<-done
	})

	t.Run("planned halt", func(t *testing.T) {
		s.Enqueue(f.CreateHalt(HaltIDNone))
		s.Enqueue(f.CreateQuit())
		m := s.Pull().(*MsgAudioPcm)
		assert.False(t, m.Ramp().Enabled, "halt follows")
		m.RemoveRef()
		assert.Equal(t, []Kind{KindHalt, KindQuit}, pullKinds(s, 2))
		assert.Equal(t, []string{"buffering", "not buffering"}, rec.get())
	})
	assertReleased(t, f)
}

func TestStarvationMonitorHaltLeavesBuffering(t *testing.T) {
	f := newTestFactory()
	s := newTestStarvationMonitor(t, f, nil)
	s.Enqueue(pcm(f, 10, 100))
	assert.True(t, s.PullWouldBlock(), "gorging")
	s.Enqueue(f.CreateHalt(7))
	assert.Equal(t, "running", s.State())
	assert.Equal(t, []Kind{KindAudioPcm, KindHalt}, pullKinds(s, 2))
	assert.Equal(t, "buffering", s.State())
	assertReleased(t, f)
}

func TestStarvationMonitorRun(t *testing.T) {
	f := newTestFactory()
	s, err := NewStarvationMonitor(f, newScript(t, pcm(f, 10, 100), f.CreateQuit()), nil,
		40*jps, 20*jps, 60*jps, 10*jps)
	require.NoError(t, err)
	require.NoError(t, s.Run())
	assert.Equal(t, []Kind{KindAudioPcm, KindQuit}, pullKinds(s, 2))
	assertReleased(t, f)
}
