package playout

import (
	"sync"

	"github.com/go-audio/audio"

	"pipelined.dev/playout/internal/pool"
	"pipelined.dev/playout/metric"
)

// FactoryConfig sets the number of messages of each kind.
type FactoryConfig struct {
	EncodedStream int
	AudioEncoded  int
	DecodedAudio  int
	AudioPcm      int
	Silence       int
	Playable      int
	Control       int // Mode, Session, Track, Delay, DecodedStream, MetaText, Halt.
	Flush         int // Flush, Wait.
}

// DefaultFactoryConfig mirrors the default pipeline configuration.
func DefaultFactoryConfig() FactoryConfig {
	return DefaultConfig().factoryConfig()
}

// MsgFactory creates messages from fixed pools.
type MsgFactory struct {
	mode          *pool.Fixed[MsgMode]
	session       *pool.Fixed[MsgSession]
	track         *pool.Fixed[MsgTrack]
	delay         *pool.Fixed[MsgDelay]
	encodedStream *pool.Fixed[MsgEncodedStream]
	audioEncoded  *pool.Fixed[MsgAudioEncoded]
	metaText      *pool.Fixed[MsgMetaText]
	halt          *pool.Fixed[MsgHalt]
	flush         *pool.Fixed[MsgFlush]
	wait          *pool.Fixed[MsgWait]
	decodedStream *pool.Fixed[MsgDecodedStream]
	decodedAudio  *pool.Fixed[DecodedAudio]
	audioPcm      *pool.Fixed[MsgAudioPcm]
	silence       *pool.Fixed[MsgSilence]
	playable      *pool.Fixed[MsgPlayable]
	quit          *pool.Fixed[MsgQuit]

	m           sync.Mutex
	nextFlushID uint32
}

type pooled[T any] interface {
	*T
	Msg
	clear()
}

func newMsgPool[T any, P pooled[T]](f *MsgFactory, name string, size int) *pool.Fixed[T] {
	p := pool.New[T](name, size, nil)
	for i := 0; i < size; i++ {
		m := P(p.At(i))
		b := m.base()
		b.slot = i
		b.self = m
		b.pool = p
		b.factory = f
	}
	return p
}

func get[T any, P pooled[T]](p *pool.Fixed[T]) P {
	t, _ := p.Get()
	m := P(t)
	b := m.base()
	b.refs.Store(1)
	b.next = nil
	return m
}

// NewMsgFactory allocates all pools.
func NewMsgFactory(cfg FactoryConfig) *MsgFactory {
	f := &MsgFactory{nextFlushID: FlushIDInvalid + 1}
	f.mode = newMsgPool[MsgMode](f, "mode", cfg.Control)
	f.session = newMsgPool[MsgSession](f, "session", cfg.Control)
	f.track = newMsgPool[MsgTrack](f, "track", cfg.Control)
	f.delay = newMsgPool[MsgDelay](f, "delay", cfg.Control)
	f.encodedStream = newMsgPool[MsgEncodedStream](f, "encoded stream", cfg.EncodedStream)
	f.metaText = newMsgPool[MsgMetaText](f, "metatext", cfg.Control)
	f.halt = newMsgPool[MsgHalt](f, "halt", cfg.Control)
	f.flush = newMsgPool[MsgFlush](f, "flush", cfg.Flush)
	f.wait = newMsgPool[MsgWait](f, "wait", cfg.Flush)
	f.decodedStream = newMsgPool[MsgDecodedStream](f, "decoded stream", cfg.Control)
	f.audioPcm = newMsgPool[MsgAudioPcm](f, "audio pcm", cfg.AudioPcm)
	f.silence = newMsgPool[MsgSilence](f, "silence", cfg.Silence)
	f.playable = newMsgPool[MsgPlayable](f, "playable", cfg.Playable)
	f.quit = newMsgPool[MsgQuit](f, "quit", 1)

	f.audioEncoded = newMsgPool[MsgAudioEncoded](f, "audio encoded", cfg.AudioEncoded)
	for i := 0; i < cfg.AudioEncoded; i++ {
		f.audioEncoded.At(i).data = make([]byte, 0, EncodedAudioMaxBytes)
	}
	f.decodedAudio = pool.New("decoded audio", cfg.DecodedAudio, func(d *DecodedAudio, i int) {
		d.slot = i
		d.buf = audio.IntBuffer{
			Format: &d.format,
			Data:   make([]int, 0, DecodedAudioMaxSamples),
		}
	})
	for i := 0; i < cfg.DecodedAudio; i++ {
		f.decodedAudio.At(i).pool = f.decodedAudio
	}
	return f
}

// NextFlushID mints a flush id.
func (f *MsgFactory) NextFlushID() uint32 {
	f.m.Lock()
	defer f.m.Unlock()
	id := f.nextFlushID
	f.nextFlushID++
	return id
}

// CreateMode creates a mode message.
func (f *MsgFactory) CreateMode(mode string, supportsGorging, supportsNextPrev bool) *MsgMode {
	m := get(f.mode)
	m.Mode = mode
	m.SupportsGorging = supportsGorging
	m.SupportsNextPrev = supportsNextPrev
	return m
}

// CreateSession creates a session message.
func (f *MsgFactory) CreateSession(id uint32) *MsgSession {
	m := get(f.session)
	m.ID = id
	return m
}

// CreateTrack creates a track message.
func (f *MsgFactory) CreateTrack(t Track, startOfStream bool) *MsgTrack {
	m := get(f.track)
	m.Track = t
	m.StartOfStream = startOfStream
	return m
}

// CreateDelay creates a delay message.
func (f *MsgFactory) CreateDelay(jiffies uint64) *MsgDelay {
	m := get(f.delay)
	m.Jiffies = jiffies
	return m
}

// CreateEncodedStream creates an encoded stream message.
func (f *MsgFactory) CreateEncodedStream(info EncodedStreamInfo) *MsgEncodedStream {
	m := get(f.encodedStream)
	m.EncodedStreamInfo = info
	return m
}

// CreateAudioEncoded copies up to EncodedAudioMaxBytes of data into a new
// message. It returns the message and number of bytes consumed.
func (f *MsgFactory) CreateAudioEncoded(data []byte) (*MsgAudioEncoded, int) {
	m := get(f.audioEncoded)
	n := min(len(data), EncodedAudioMaxBytes)
	m.data = append(m.data[:0], data[:n]...)
	return m, n
}

// CreateMetaText creates a metatext message.
func (f *MsgFactory) CreateMetaText(text string) *MsgMetaText {
	m := get(f.metaText)
	m.Text = text
	return m
}

// CreateHalt creates a halt message.
func (f *MsgFactory) CreateHalt(id uint32) *MsgHalt {
	m := get(f.halt)
	m.ID = id
	return m
}

// CreateFlush creates a flush message.
func (f *MsgFactory) CreateFlush(id uint32) *MsgFlush {
	m := get(f.flush)
	m.ID = id
	return m
}

// CreateWait creates a wait message.
func (f *MsgFactory) CreateWait() *MsgWait {
	return get(f.wait)
}

// CreateDecodedStream creates a decoded stream message.
func (f *MsgFactory) CreateDecodedStream(info DecodedStreamInfo) *MsgDecodedStream {
	m := get(f.decodedStream)
	m.Info = info
	return m
}

// CreateAudioPcm copies interleaved samples into a pooled buffer. It
// returns the message and number of samples consumed, which is limited by
// DecodedAudioMaxSamples and rounded down to whole frames.
func (f *MsgFactory) CreateAudioPcm(samples []int, format PcmFormat, trackOffset uint64) (*MsgAudioPcm, int) {
	n := min(len(samples), DecodedAudioMaxSamples)
	n -= n % format.Channels
	invariant(n > 0, "pcm message with no frames")
	d, _ := f.decodedAudio.Get()
	d.refs.Store(1)
	d.format.SampleRate = format.SampleRate
	d.format.NumChannels = format.Channels
	d.buf.SourceBitDepth = format.BitDepth
	d.buf.Data = append(d.buf.Data[:0], samples[:n]...)

	m := get(f.audioPcm)
	m.audio = d
	m.offset = 0
	m.frames = n / format.Channels
	m.trackOffset = trackOffset
	return m, n
}

// CreateSilence creates silence of at least jiffies duration, rounded up to
// whole samples.
func (f *MsgFactory) CreateSilence(jiffies uint64, format PcmFormat) *MsgSilence {
	jps := JiffiesPerSample(format.SampleRate)
	m := get(f.silence)
	m.format = format
	m.frames = (jiffies + jps - 1) / jps
	return m
}

// CreatePlayable converts audio into a playable message. The reference to
// the source message is consumed.
func (f *MsgFactory) CreatePlayable(a MsgAudio) *MsgPlayable {
	p := get(f.playable)
	switch m := a.(type) {
	case *MsgAudioPcm:
		m.audio.AddRef()
		p.audio = m.audio
		p.format = m.Format()
		p.offset = m.offset
		p.frames = m.frames
		p.ramp = m.ramp
	case *MsgSilence:
		p.audio = nil
		p.format = m.format
		p.frames = int(m.frames)
		p.ramp = m.ramp
	default:
		panic("playout: playable from " + a.Kind().String())
	}
	p.pos = 0
	a.RemoveRef()
	return p
}

// CreateQuit creates the quit message.
func (f *MsgFactory) CreateQuit() *MsgQuit {
	return get(f.quit)
}

// InUse returns number of taken messages of kind k.
func (f *MsgFactory) InUse(k Kind) int {
	if p := f.poolOf(k); p != nil {
		return p.InUse()
	}
	return 0
}

// Peak returns max number of taken messages of kind k.
func (f *MsgFactory) Peak(k Kind) int {
	if p := f.poolOf(k); p != nil {
		return p.Peak()
	}
	return 0
}

type poolStats interface {
	InUse() int
	Peak() int
}

func (f *MsgFactory) poolOf(k Kind) poolStats {
	switch k {
	case KindMode:
		return f.mode
	case KindSession:
		return f.session
	case KindTrack:
		return f.track
	case KindDelay:
		return f.delay
	case KindEncodedStream:
		return f.encodedStream
	case KindAudioEncoded:
		return f.audioEncoded
	case KindMetaText:
		return f.metaText
	case KindHalt:
		return f.halt
	case KindFlush:
		return f.flush
	case KindWait:
		return f.wait
	case KindDecodedStream:
		return f.decodedStream
	case KindAudioPcm:
		return f.audioPcm
	case KindSilence:
		return f.silence
	case KindPlayable:
		return f.playable
	case KindQuit:
		return f.quit
	}
	return nil
}

// DecodedAudioInUse returns number of taken sample buffers.
func (f *MsgFactory) DecodedAudioInUse() int {
	return f.decodedAudio.InUse()
}

// ReportPools publishes pool usage of every kind.
func (f *MsgFactory) ReportPools() {
	for k := KindMode; k <= KindQuit; k <<= 1 {
		metric.PoolInUse(k.String(), f.InUse(k))
	}
	metric.PoolInUse("DecodedAudio", f.DecodedAudioInUse())
}
