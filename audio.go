package playout

import (
	"sync/atomic"

	"github.com/go-audio/audio"

	"pipelined.dev/playout/internal/pool"
)

// DecodedAudioMaxSamples is the capacity of a DecodedAudio buffer in
// interleaved samples.
const DecodedAudioMaxSamples = 2048

// DecodedAudio is a pooled buffer of decoded samples shared by the
// MsgAudioPcm and MsgPlayable messages that reference it.
type DecodedAudio struct {
	refs   atomic.Int32
	slot   int
	pool   *pool.Fixed[DecodedAudio]
	format audio.Format
	buf    audio.IntBuffer
}

// AddRef adds a reference.
func (d *DecodedAudio) AddRef() {
	d.refs.Add(1)
}

// RemoveRef removes a reference and returns the buffer to its pool when
// none are left.
func (d *DecodedAudio) RemoveRef() {
	switch n := d.refs.Add(-1); {
	case n == 0:
		d.buf.Data = d.buf.Data[:0]
		d.pool.Put(d.slot)
	case n < 0:
		panic("playout: RemoveRef on released audio")
	}
}

// Buffer exposes samples as go-audio buffer. Callers must not modify it.
func (d *DecodedAudio) Buffer() *audio.IntBuffer {
	return &d.buf
}

func (d *DecodedAudio) pcmFormat() PcmFormat {
	return PcmFormat{
		SampleRate: d.format.SampleRate,
		Channels:   d.format.NumChannels,
		BitDepth:   d.buf.SourceBitDepth,
	}
}

// MsgAudioPcm references a range of decoded frames.
type MsgAudioPcm struct {
	msgBase
	audio       *DecodedAudio
	offset      int
	frames      int
	trackOffset uint64
	ramp        Ramp
}

func (*MsgAudioPcm) Kind() Kind { return KindAudioPcm }

func (m *MsgAudioPcm) clear() {
	if m.audio != nil {
		m.audio.RemoveRef()
		m.audio = nil
	}
	m.offset, m.frames, m.trackOffset = 0, 0, 0
	m.ramp.Reset()
}

// Format of the samples.
func (m *MsgAudioPcm) Format() PcmFormat { return m.audio.pcmFormat() }

// Frames returns number of frames in the message.
func (m *MsgAudioPcm) Frames() int { return m.frames }

// TrackOffset returns position of the first frame in the track, in jiffies.
func (m *MsgAudioPcm) TrackOffset() uint64 { return m.trackOffset }

// Ramp returns the ramp annotation.
func (m *MsgAudioPcm) Ramp() Ramp { return m.ramp }

// Samples returns interleaved unramped samples.
func (m *MsgAudioPcm) Samples() []int {
	ch := m.audio.format.NumChannels
	return m.audio.buf.Data[m.offset*ch : (m.offset+m.frames)*ch]
}

// Jiffies returns the duration of the message.
func (m *MsgAudioPcm) Jiffies() uint64 {
	return uint64(m.frames) * JiffiesPerSample(m.audio.format.SampleRate)
}

// Split divides the message at the first sample boundary at or after j.
func (m *MsgAudioPcm) Split(j uint64) MsgAudio {
	jps := JiffiesPerSample(m.audio.format.SampleRate)
	at := int((j + jps - 1) / jps)
	if at >= m.frames {
		return nil
	}
	invariant(at > 0, "split of pcm at zero")
	tail := get(m.factory.audioPcm)
	m.audio.AddRef()
	tail.audio = m.audio
	tail.offset = m.offset + at
	tail.frames = m.frames - at
	tail.trackOffset = m.trackOffset + uint64(at)*jps
	tail.ramp = m.ramp.split(uint64(at), uint64(m.frames))
	m.frames = at
	return tail
}

// SetRamp applies a ramp fragment.
func (m *MsgAudioPcm) SetRamp(start uint32, remaining *uint64, dir RampDirection) (uint32, MsgAudio) {
	return setRamp(m, &m.ramp, start, remaining, dir)
}

// MsgSilence is synthesized silence.
type MsgSilence struct {
	msgBase
	format PcmFormat
	frames uint64
	ramp   Ramp
}

func (*MsgSilence) Kind() Kind { return KindSilence }

func (m *MsgSilence) clear() {
	m.frames = 0
	m.ramp.Reset()
}

// Format of the silence.
func (m *MsgSilence) Format() PcmFormat { return m.format }

// Ramp returns the ramp annotation.
func (m *MsgSilence) Ramp() Ramp { return m.ramp }

// Jiffies returns the duration of the message.
func (m *MsgSilence) Jiffies() uint64 {
	return m.frames * JiffiesPerSample(m.format.SampleRate)
}

// Split divides the message at the first sample boundary at or after j.
func (m *MsgSilence) Split(j uint64) MsgAudio {
	jps := JiffiesPerSample(m.format.SampleRate)
	at := (j + jps - 1) / jps
	if at >= m.frames {
		return nil
	}
	invariant(at > 0, "split of silence at zero")
	tail := get(m.factory.silence)
	tail.format = m.format
	tail.frames = m.frames - at
	tail.ramp = m.ramp.split(at, m.frames)
	m.frames = at
	return tail
}

// SetRamp applies a ramp fragment.
func (m *MsgSilence) SetRamp(start uint32, remaining *uint64, dir RampDirection) (uint32, MsgAudio) {
	return setRamp(m, &m.ramp, start, remaining, dir)
}

func setRamp(m MsgAudio, r *Ramp, start uint32, remaining *uint64, dir RampDirection) (uint32, MsgAudio) {
	invariant(*remaining > 0, "ramp with no remaining duration")
	var split MsgAudio
	if *remaining < m.Jiffies() {
		split = m.Split(*remaining)
	}
	fragment := m.Jiffies()
	end := rampEnd(start, fragment, *remaining, dir)
	r.Set(start, end)
	if fragment >= *remaining {
		*remaining = 0
	} else {
		*remaining -= fragment
	}
	return end, split
}

// MsgPlayable is audio ready for the driver, ramps are applied while it is
// read.
type MsgPlayable struct {
	msgBase
	// audio is nil for silence.
	audio  *DecodedAudio
	format PcmFormat
	offset int
	frames int
	pos    int
	ramp   Ramp
}

func (*MsgPlayable) Kind() Kind { return KindPlayable }

func (m *MsgPlayable) clear() {
	if m.audio != nil {
		m.audio.RemoveRef()
		m.audio = nil
	}
	m.offset, m.frames, m.pos = 0, 0, 0
	m.ramp.Reset()
}

// Format of the samples.
func (m *MsgPlayable) Format() PcmFormat { return m.format }

// Frames returns total number of frames.
func (m *MsgPlayable) Frames() int { return m.frames }

// Remaining returns number of frames not read yet.
func (m *MsgPlayable) Remaining() int { return m.frames - m.pos }

// Silent reports if the message was made of silence.
func (m *MsgPlayable) Silent() bool { return m.audio == nil }

// Ramp returns the ramp annotation.
func (m *MsgPlayable) Ramp() Ramp { return m.ramp }

// Jiffies returns the duration of the message.
func (m *MsgPlayable) Jiffies() uint64 {
	return uint64(m.frames) * JiffiesPerSample(m.format.SampleRate)
}

// Read copies ramped interleaved samples into dst and returns the number
// of frames written. dst should fit whole frames.
func (m *MsgPlayable) Read(dst []int) int {
	ch := m.format.Channels
	n := min(len(dst)/ch, m.frames-m.pos)
	for f := 0; f < n; f++ {
		frame := m.pos + f
		gain := int64(0x7fff)
		if m.ramp.Enabled {
			gain = int64(Gain(m.ramp.at(uint64(frame), uint64(m.frames))))
		}
		for c := 0; c < ch; c++ {
			var s int64
			if m.audio != nil {
				s = int64(m.audio.buf.Data[(m.offset+frame)*ch+c])
			}
			if gain != 0x7fff {
				s = s * gain >> 15
			}
			dst[f*ch+c] = int(s)
		}
	}
	m.pos += n
	return n
}
