package playout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/playout/log"
)

type seekable struct {
	flushID uint32
	err     error
	seeks   []uint
}

func (s *seekable) StartSeek(_, _ uint32, seconds uint) (uint32, error) {
	s.seeks = append(s.seeks, seconds)
	return s.flushID, s.err
}

func TestSeekerRampDown(t *testing.T) {
	f := newTestFactory()
	target := &seekable{flushID: 7}
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
		f.CreateMetaText("dropped"),
		f.CreateFlush(7),
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 20, 100),
	)
	s := NewSeeker(src, target, testRamp, log.Silent())
	assert.False(t, s.Seek(1, 1, 3, true), "no stream yet")
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))

	assert.False(t, s.Seek(1, 2, 3, true), "other stream")
	assert.True(t, s.Seek(1, 1, 3, true))
	assert.Empty(t, target.seeks, "seek starts after ramp down")

	m := s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 10, m.Frames())
	assert.Equal(t, RampDown, m.Ramp().Direction)
	m.RemoveRef()
	assert.Equal(t, []uint{3}, target.seeks)

	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 10, m.Frames())
	assert.Equal(t, RampUp, m.Ramp().Direction)
	m.RemoveRef()

	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 10, m.Frames())
	assert.False(t, m.Ramp().Enabled)
	m.RemoveRef()
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 20, m.Frames())
	assert.False(t, m.Ramp().Enabled)
	m.RemoveRef()
	assertReleased(t, f)
}

func TestSeekerImmediate(t *testing.T) {
	f := newTestFactory()
	target := &seekable{flushID: 3}
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		f.CreateFlush(3),
		pcm(f, 20, 100),
	)
	s := NewSeeker(src, target, testRamp, log.Silent())
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))
	assert.True(t, s.Seek(1, 1, 10, false))
	assert.Equal(t, []uint{10}, target.seeks)

	m := s.Pull().(*MsgAudioPcm)
	assert.False(t, m.Ramp().Enabled, "audio was not ramped down")
	m.RemoveRef()
	assertReleased(t, f)
}

func TestSeekerFailure(t *testing.T) {
	f := newTestFactory()
	target := &seekable{err: errors.New("seek failed")}
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 10, 100),
		pcm(f, 20, 100),
	)
	s := NewSeeker(src, target, testRamp, log.Silent())
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))
	assert.True(t, s.Seek(1, 1, 10, true))

	m := s.Pull().(*MsgAudioPcm)
	assert.Equal(t, RampDown, m.Ramp().Direction)
	m.RemoveRef()

	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, 10, m.Frames())
	assert.Equal(t, RampUp, m.Ramp().Direction, "failed seek ramps back up")
	m.RemoveRef()
	assert.Equal(t, []Kind{KindAudioPcm}, pullKinds(s, 1))
	assertReleased(t, f)
}

func TestSeekerNotSeekable(t *testing.T) {
	f := newTestFactory()
	info := DecodedStreamInfo{PcmFormat: testFormat, TrackID: 1, StreamID: 1}
	src := newScript(t, f.CreateDecodedStream(info))
	s := NewSeeker(src, &seekable{}, testRamp, log.Silent())
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))
	assert.False(t, s.Seek(1, 1, 10, true))
	assertReleased(t, f)
}

func TestSeekerReversal(t *testing.T) {
	f := newTestFactory()
	target := &seekable{err: ErrNotSeekable}
	src := newScript(t,
		decodedStream(f, 1, 1, nil),
		pcm(f, 20, 100),
		pcm(f, 2, 100),
		pcm(f, 20, 100),
	)
	s := NewSeeker(src, target, testRamp, log.Silent())
	assert.Equal(t, []Kind{KindDecodedStream}, pullKinds(s, 1))

	// the seek fails once ramped down, so audio ramps back up
	assert.True(t, s.Seek(1, 1, 3, true))
	assert.Equal(t, []Kind{KindAudioPcm}, pullKinds(s, 1))
	m := s.Pull().(*MsgAudioPcm)
	up := m.Ramp()
	m.RemoveRef()
	assert.Equal(t, RampUp, up.Direction)
	assert.Equal(t, RampMin, up.Start)

	assert.True(t, s.Seek(1, 1, 4, true))
	m = s.Pull().(*MsgAudioPcm)
	assert.Equal(t, RampDown, m.Ramp().Direction)
	assert.Equal(t, up.End, m.Ramp().Start, "gain is continuous")
	assert.Equal(t, RampMin, m.Ramp().End)
	m.RemoveRef()
	assert.Equal(t, []uint{3, 4}, target.seeks)
	assertReleased(t, f)
}
