package playout

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Kind identifies a message variant. Kinds are bit flags so that sets of
// kinds can be used as filters.
type Kind uint32

// Message kinds.
const (
	KindMode Kind = 1 << iota
	KindSession
	KindTrack
	KindDelay
	KindEncodedStream
	KindAudioEncoded
	KindMetaText
	KindHalt
	KindFlush
	KindWait
	KindDecodedStream
	KindAudioPcm
	KindSilence
	KindPlayable
	KindQuit

	KindNone Kind = 0
	KindAll  Kind = KindQuit<<1 - 1
)

var kindNames = [...]string{
	"Mode", "Session", "Track", "Delay", "EncodedStream", "AudioEncoded",
	"MetaText", "Halt", "Flush", "Wait", "DecodedStream", "AudioPcm",
	"Silence", "Playable", "Quit",
}

func (k Kind) String() string {
	var names []string
	for i, name := range kindNames {
		if k&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// Msg is a pipeline message. The set of implementations is closed, every
// message comes from a MsgFactory pool and is returned there when the last
// reference is removed.
type Msg interface {
	Kind() Kind
	AddRef()
	RemoveRef()
	base() *msgBase
}

// MsgAudio is implemented by messages carrying audio.
type MsgAudio interface {
	Msg
	// Jiffies returns the duration of the message.
	Jiffies() uint64
	Format() PcmFormat
	// SetRamp ramps the message from start in direction dir. remaining
	// is the ramp duration left and is reduced by the ramped jiffies. If
	// the message is longer than remaining, it's split and the unramped
	// remainder is returned.
	SetRamp(start uint32, remaining *uint64, dir RampDirection) (uint32, MsgAudio)
	// Split divides the message at the first sample boundary at or after
	// jiffies. The receiver keeps the head, nil is returned if the message
	// is not longer than that.
	Split(jiffies uint64) MsgAudio
	// Ramp returns the ramp annotation.
	Ramp() Ramp
}

type msgBase struct {
	refs    atomic.Int32
	slot    int
	self    interface{ clear() }
	pool    interface{ Put(int) }
	factory *MsgFactory
	// next links messages in a msgQueue.
	next Msg
}

func (b *msgBase) base() *msgBase { return b }

// AddRef adds a reference.
func (b *msgBase) AddRef() {
	if b.refs.Add(1) <= 1 {
		panic("playout: AddRef on released message")
	}
}

// RemoveRef removes a reference and releases the message to its pool when
// none are left.
func (b *msgBase) RemoveRef() {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		b.self.clear()
		b.next = nil
		b.pool.Put(b.slot)
	case n < 0:
		panic("playout: RemoveRef on released message")
	}
}

// Refs returns the current reference count, used by tests.
func Refs(m Msg) int {
	return int(m.base().refs.Load())
}

// Track describes a logical track.
type Track struct {
	ID       uint32
	URI      string
	Metadata string
}

// MsgMode announces a change of the stream source mode.
type MsgMode struct {
	msgBase
	Mode string
	// SupportsGorging is true for modes where pre-roll buffering is
	// allowed, i.e. not real-time sources.
	SupportsGorging  bool
	SupportsNextPrev bool
}

func (*MsgMode) Kind() Kind { return KindMode }
func (m *MsgMode) clear()   { m.Mode = "" }

// MsgSession marks a new filler session.
type MsgSession struct {
	msgBase
	ID uint32
}

func (*MsgSession) Kind() Kind { return KindSession }
func (*MsgSession) clear()     {}

// MsgTrack marks the start of a logical track.
type MsgTrack struct {
	msgBase
	Track         Track
	StartOfStream bool
}

func (*MsgTrack) Kind() Kind { return KindTrack }
func (m *MsgTrack) clear()   { m.Track = Track{} }

// MsgDelay sets the delay that VariableDelay elements apply.
type MsgDelay struct {
	msgBase
	Jiffies uint64
}

func (*MsgDelay) Kind() Kind { return KindDelay }
func (*MsgDelay) clear()     {}

// EncodedStreamInfo describes an encoded stream.
type EncodedStreamInfo struct {
	URI        string
	MetaText   string
	TotalBytes uint64
	TrackID    uint32
	StreamID   uint32
	Seekable   bool
	Live       bool
	Handler    StreamHandler
}

// MsgEncodedStream starts a new encoded stream.
type MsgEncodedStream struct {
	msgBase
	EncodedStreamInfo
}

func (*MsgEncodedStream) Kind() Kind { return KindEncodedStream }
func (m *MsgEncodedStream) clear()   { m.EncodedStreamInfo = EncodedStreamInfo{} }

// EncodedAudioMaxBytes is the capacity of a single MsgAudioEncoded.
const EncodedAudioMaxBytes = 6144

// MsgAudioEncoded carries a chunk of encoded stream data.
type MsgAudioEncoded struct {
	msgBase
	data []byte
}

func (*MsgAudioEncoded) Kind() Kind { return KindAudioEncoded }
func (m *MsgAudioEncoded) clear()   { m.data = m.data[:0] }

// Bytes returns the encoded data.
func (m *MsgAudioEncoded) Bytes() []byte { return m.data }

// MsgMetaText carries in-band metadata, e.g. radio titles.
type MsgMetaText struct {
	msgBase
	Text string
}

func (*MsgMetaText) Kind() Kind { return KindMetaText }
func (m *MsgMetaText) clear()   { m.Text = "" }

// HaltIDNone is the id of halts not requested by anyone.
const HaltIDNone uint32 = 0

// MsgHalt tells downstream elements that audio stops here.
type MsgHalt struct {
	msgBase
	ID uint32
}

func (*MsgHalt) Kind() Kind { return KindHalt }
func (*MsgHalt) clear()     {}

// FlushIDInvalid is never assigned to a flush.
const FlushIDInvalid uint32 = 0

// MsgFlush marks the end of data being discarded.
type MsgFlush struct {
	msgBase
	ID uint32
}

func (*MsgFlush) Kind() Kind { return KindFlush }
func (*MsgFlush) clear()     {}

// MsgWait marks an expected gap in the stream.
type MsgWait struct {
	msgBase
}

func (*MsgWait) Kind() Kind { return KindWait }
func (*MsgWait) clear()     {}

// PcmFormat of decoded audio.
type PcmFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f PcmFormat) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// DecodedStreamInfo describes a decoded stream.
type DecodedStreamInfo struct {
	PcmFormat
	TrackID   uint32
	StreamID  uint32
	BitRate   int
	CodecName string
	// TrackLength and SampleStart are in jiffies and samples.
	TrackLength uint64
	SampleStart uint64
	Lossless    bool
	Seekable    bool
	Live        bool
	Handler     StreamHandler
}

// MsgDecodedStream starts a new decoded stream.
type MsgDecodedStream struct {
	msgBase
	Info DecodedStreamInfo
}

func (*MsgDecodedStream) Kind() Kind { return KindDecodedStream }
func (m *MsgDecodedStream) clear()   { m.Info = DecodedStreamInfo{} }

// MsgQuit is the last message a pipeline delivers.
type MsgQuit struct {
	msgBase
}

func (*MsgQuit) Kind() Kind { return KindQuit }
func (*MsgQuit) clear()     {}
