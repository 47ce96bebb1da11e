// Package mock provides mocks for pipeline collaborators and allows to
// execute integration tests.
package mock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"pipelined.dev/playout"
)

// Source is a scripted upstream element. Messages pushed to it are
// returned by Pull in order, Pull blocks while it's empty.
type Source struct {
	m      sync.Mutex
	cond   *sync.Cond
	msgs   []playout.Msg
	pulled int
}

// Push appends m.
func (s *Source) Push(m playout.Msg) {
	s.m.Lock()
	defer s.m.Unlock()
	s.init()
	s.msgs = append(s.msgs, m)
	s.cond.Broadcast()
}

// Pull implements playout.Element.
func (s *Source) Pull() playout.Msg {
	s.m.Lock()
	defer s.m.Unlock()
	s.init()
	for len(s.msgs) == 0 {
		s.cond.Wait()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	s.pulled++
	return m
}

// Len returns the number of messages not pulled yet.
func (s *Source) Len() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.msgs)
}

// Pulled returns the number of pulled messages.
func (s *Source) Pulled() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.pulled
}

func (s *Source) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.m)
	}
}

// Sink mocks up a driver.Sink interface. Samples of all writes are
// appended to one buffer.
type Sink struct {
	Hooks
	ErrorOnOpen  error
	ErrorOnWrite error
	// Discard drops samples, only counters are updated.
	Discard bool

	m       sync.Mutex
	formats []playout.PcmFormat
	samples []int
	writes  int
	open    bool
}

// Hooks counts lifecycle calls.
type Hooks struct {
	Opened int
	Closed int
	Halted int
}

// Open implements driver.Sink.
func (s *Sink) Open(f playout.PcmFormat) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.Opened++
	if s.ErrorOnOpen != nil {
		return s.ErrorOnOpen
	}
	s.formats = append(s.formats, f)
	s.open = true
	return nil
}

// Write implements driver.Sink.
func (s *Sink) Write(samples []int) error {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.open {
		return errors.New("mock sink: write to closed sink")
	}
	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.writes++
	if !s.Discard {
		s.samples = append(s.samples, samples...)
	}
	return nil
}

// Halt implements driver.Halter.
func (s *Sink) Halt() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.Halted++
	return nil
}

// Close implements driver.Sink.
func (s *Sink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.Closed++
	s.open = false
	return nil
}

// Samples returns a copy of written samples.
func (s *Sink) Samples() []int {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]int(nil), s.samples...)
}

// Formats returns formats passed to Open.
func (s *Sink) Formats() []playout.PcmFormat {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]playout.PcmFormat(nil), s.formats...)
}

// Writes returns number of successful writes.
func (s *Sink) Writes() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.writes
}

// Counters returns a snapshot of hooks.
func (s *Sink) Counters() Hooks {
	s.m.Lock()
	defer s.m.Unlock()
	return s.Hooks
}

// Observer records every notification of the pipeline and track
// observers.
type Observer struct {
	m        sync.Mutex
	states   []playout.PipelineState
	modes    []string
	tracks   []playout.Track
	metaText []string
	times    []uint
	streams  []playout.DecodedStreamInfo
	played   []playout.Track
	failed   []playout.Track
	changed  chan struct{}
}

// NewObserver creates an observer.
func NewObserver() *Observer {
	return &Observer{changed: make(chan struct{}, 1)}
}

// Changed is signalled after every notification.
func (o *Observer) Changed() <-chan struct{} {
	return o.changed
}

func (o *Observer) record(fn func()) {
	o.m.Lock()
	fn()
	o.m.Unlock()
	select {
	case o.changed <- struct{}{}:
	default:
	}
}

// NotifyPipelineState implements playout.Observer.
func (o *Observer) NotifyPipelineState(s playout.PipelineState) {
	o.record(func() { o.states = append(o.states, s) })
}

// NotifyMode implements playout.PropertyObserver.
func (o *Observer) NotifyMode(mode string) {
	o.record(func() { o.modes = append(o.modes, mode) })
}

// NotifyTrack implements playout.PropertyObserver.
func (o *Observer) NotifyTrack(t playout.Track, _ string, _ bool) {
	o.record(func() { o.tracks = append(o.tracks, t) })
}

// NotifyMetaText implements playout.PropertyObserver.
func (o *Observer) NotifyMetaText(text string) {
	o.record(func() { o.metaText = append(o.metaText, text) })
}

// NotifyTime implements playout.PropertyObserver.
func (o *Observer) NotifyTime(seconds, _ uint) {
	o.record(func() { o.times = append(o.times, seconds) })
}

// NotifyStreamInfo implements playout.PropertyObserver.
func (o *Observer) NotifyStreamInfo(info playout.DecodedStreamInfo) {
	o.record(func() { o.streams = append(o.streams, info) })
}

// NotifyTrackPlay implements playout.TrackObserver.
func (o *Observer) NotifyTrackPlay(t playout.Track) {
	o.record(func() { o.played = append(o.played, t) })
}

// NotifyTrackFail implements playout.TrackObserver.
func (o *Observer) NotifyTrackFail(t playout.Track) {
	o.record(func() { o.failed = append(o.failed, t) })
}

// States returns recorded pipeline states.
func (o *Observer) States() []playout.PipelineState {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]playout.PipelineState(nil), o.states...)
}

// State returns the last pipeline state and false if there was none.
func (o *Observer) State() (playout.PipelineState, bool) {
	o.m.Lock()
	defer o.m.Unlock()
	if len(o.states) == 0 {
		return 0, false
	}
	return o.states[len(o.states)-1], true
}

// Modes returns recorded modes.
func (o *Observer) Modes() []string {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]string(nil), o.modes...)
}

// Tracks returns recorded tracks.
func (o *Observer) Tracks() []playout.Track {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]playout.Track(nil), o.tracks...)
}

// MetaText returns recorded meta text.
func (o *Observer) MetaText() []string {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]string(nil), o.metaText...)
}

// Times returns recorded seconds.
func (o *Observer) Times() []uint {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]uint(nil), o.times...)
}

// Streams returns recorded stream infos.
func (o *Observer) Streams() []playout.DecodedStreamInfo {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]playout.DecodedStreamInfo(nil), o.streams...)
}

// Played returns tracks reported by NotifyTrackPlay.
func (o *Observer) Played() []playout.Track {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]playout.Track(nil), o.played...)
}

// Failed returns tracks reported by NotifyTrackFail.
func (o *Observer) Failed() []playout.Track {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]playout.Track(nil), o.failed...)
}

// StreamHandler mocks playout.StreamHandler. Every call is counted, the
// answers are set with public fields.
type StreamHandler struct {
	Play   playout.StreamPlay
	SeekID uint32
	StopID uint32

	m        sync.Mutex
	oks      int
	seeks    []uint64
	stops    int
	starving int
}

// OkToPlay implements playout.StreamHandler.
func (h *StreamHandler) OkToPlay(uint32, uint32) playout.StreamPlay {
	h.m.Lock()
	defer h.m.Unlock()
	h.oks++
	return h.Play
}

// TrySeek implements playout.StreamHandler.
func (h *StreamHandler) TrySeek(_, _ uint32, offset uint64) uint32 {
	h.m.Lock()
	defer h.m.Unlock()
	h.seeks = append(h.seeks, offset)
	return h.SeekID
}

// TryStop implements playout.StreamHandler.
func (h *StreamHandler) TryStop(uint32, uint32) uint32 {
	h.m.Lock()
	defer h.m.Unlock()
	h.stops++
	return h.StopID
}

// NotifyStarving implements playout.StreamHandler.
func (h *StreamHandler) NotifyStarving(string, uint32, uint32) {
	h.m.Lock()
	defer h.m.Unlock()
	h.starving++
}

// OkToPlayCalls returns the number of OkToPlay calls.
func (h *StreamHandler) OkToPlayCalls() int {
	h.m.Lock()
	defer h.m.Unlock()
	return h.oks
}

// Seeks returns offsets passed to TrySeek.
func (h *StreamHandler) Seeks() []uint64 {
	h.m.Lock()
	defer h.m.Unlock()
	return append([]uint64(nil), h.seeks...)
}

// Stops returns the number of TryStop calls.
func (h *StreamHandler) Stops() int {
	h.m.Lock()
	defer h.m.Unlock()
	return h.stops
}

// Starvations returns the number of NotifyStarving calls.
func (h *StreamHandler) Starvations() int {
	h.m.Lock()
	defer h.m.Unlock()
	return h.starving
}

// codecMagic starts every stream produced by Encode.
const codecMagic = "MOCKPCM\x00"

// codecHeaderSize is magic, sample rate, channels and bit depth.
const codecHeaderSize = len(codecMagic) + 4 + 2 + 2

// Encode produces a stream decoded by Codec: a small header followed by
// 16 bit little endian samples.
func Encode(format playout.PcmFormat, samples []int) []byte {
	b := make([]byte, codecHeaderSize, codecHeaderSize+2*len(samples))
	copy(b, codecMagic)
	binary.LittleEndian.PutUint32(b[8:], uint32(format.SampleRate))
	binary.LittleEndian.PutUint16(b[12:], uint16(format.Channels))
	binary.LittleEndian.PutUint16(b[14:], 16)
	for _, v := range samples {
		b = binary.LittleEndian.AppendUint16(b, uint16(int16(v)))
	}
	return b
}

// Codec decodes streams produced by Encode. It is seekable.
type Codec struct {
	ErrorOnDecode error

	r        io.Reader
	channels int
	read     []byte

	m         sync.Mutex
	seekFrame uint64
	ready     bool
}

// Name implements playout.Codec.
func (*Codec) Name() string { return "MOCK" }

// Recognise implements playout.Codec.
func (*Codec) Recognise(header []byte) bool {
	return strings.HasPrefix(string(header), codecMagic)
}

// StreamInitialise implements playout.Codec. The length of the stream
// is not known.
func (c *Codec) StreamInitialise(r io.Reader) (playout.CodecInfo, error) {
	h := make([]byte, codecHeaderSize)
	if _, err := io.ReadFull(r, h); err != nil {
		return playout.CodecInfo{}, fmt.Errorf("mock codec: %w", err)
	}
	format := playout.PcmFormat{
		SampleRate: int(binary.LittleEndian.Uint32(h[8:])),
		Channels:   int(binary.LittleEndian.Uint16(h[12:])),
		BitDepth:   int(binary.LittleEndian.Uint16(h[14:])),
	}
	if format.Channels == 0 {
		return playout.CodecInfo{}, errors.New("mock codec: no channels")
	}
	c.r = r
	c.channels = format.Channels
	c.m.Lock()
	c.ready = true
	c.m.Unlock()
	return playout.CodecInfo{
		PcmFormat: format,
		BitRate:   format.SampleRate * format.Channels * 16,
		Lossless:  true,
		Seekable:  true,
	}, nil
}

// Decode implements playout.Codec.
func (c *Codec) Decode(buf []int) (int, error) {
	if c.ErrorOnDecode != nil {
		return 0, c.ErrorOnDecode
	}
	n := len(buf) - len(buf)%c.channels
	if cap(c.read) < 2*n {
		c.read = make([]byte, 2*n)
	}
	b := c.read[:2*n]
	frame := 2 * c.channels
	read, err := io.ReadAtLeast(c.r, b, frame)
	if rem := read % frame; rem != 0 && err == nil {
		var m int
		m, err = io.ReadFull(c.r, b[read:read+frame-rem])
		read += m
	}
	read -= read % frame
	if read == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}
	for i := 0; i < read/2; i++ {
		buf[i] = int(int16(binary.LittleEndian.Uint16(b[2*i:])))
	}
	return read / 2, nil
}

// SeekOffset implements playout.Codec.
func (c *Codec) SeekOffset(frame uint64) (uint64, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.ready {
		return 0, false
	}
	c.seekFrame = frame
	return uint64(codecHeaderSize) + frame*uint64(2*c.channels), true
}

// Resync implements playout.Codec.
func (c *Codec) Resync(r io.Reader) error {
	c.r = r
	return nil
}

// Protocol serves in-memory streams by uri. Streams are written in chunks
// of ChunkSize bytes; Block holds a stream after its first chunk until
// the stream is cancelled or Release is called.
type Protocol struct {
	ChunkSize int
	Block     bool

	m       sync.Mutex
	streams map[string][]byte
	release chan struct{}
	started []string
}

// Add registers data for uri.
func (p *Protocol) Add(uri string, data []byte) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.streams == nil {
		p.streams = make(map[string][]byte)
		p.release = make(chan struct{})
	}
	p.streams[uri] = data
}

// Release lets blocked streams continue.
func (p *Protocol) Release() {
	p.m.Lock()
	defer p.m.Unlock()
	if p.release != nil {
		close(p.release)
		p.release = make(chan struct{})
	}
}

// Started returns uris of started streams.
func (p *Protocol) Started() []string {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]string(nil), p.started...)
}

// Stream implements playout.Protocol.
func (p *Protocol) Stream(ctx context.Context, uri string, out playout.Supply) playout.ProtocolStreamResult {
	p.m.Lock()
	data, ok := p.streams[uri]
	release := p.release
	block := p.Block
	if ok {
		p.started = append(p.started, uri)
	}
	p.m.Unlock()
	if !ok {
		return playout.StreamNotSupported
	}
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = playout.EncodedAudioMaxBytes
	}
	out.OutputStream(uri, uint64(len(data)), true, false)
	pos := 0
	for pos < len(data) {
		if offset, flushID, ok := out.SeekRequest(); ok {
			pos = int(min(offset, uint64(len(data))))
			out.OutputFlush(flushID)
		}
		end := min(pos+chunk, len(data))
		if _, err := out.Write(data[pos:end]); err != nil {
			return playout.StreamStopped
		}
		pos = end
		if block {
			block = false
			select {
			case <-ctx.Done():
				return playout.StreamStopped
			case <-release:
			}
		}
	}
	return playout.StreamSuccess
}

// Supply records the output of a protocol. A seek set with Seek is
// returned once by SeekRequest after Write was called SeekAfter times.
type Supply struct {
	ErrorOnWrite error

	m         sync.Mutex
	data      []byte
	streams   []string
	flushes   []uint32
	meta      []string
	writes    int
	seek      *supplySeek
	seekAfter int
}

type supplySeek struct {
	offset  uint64
	flushID uint32
}

// Seek requests a seek to offset after writes calls to Write.
func (s *Supply) Seek(offset uint64, flushID uint32, writes int) {
	s.m.Lock()
	defer s.m.Unlock()
	s.seek = &supplySeek{offset: offset, flushID: flushID}
	s.seekAfter = writes
}

// Write implements playout.Supply.
func (s *Supply) Write(p []byte) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.ErrorOnWrite != nil {
		return 0, s.ErrorOnWrite
	}
	s.writes++
	s.data = append(s.data, p...)
	return len(p), nil
}

// OutputStream implements playout.Supply.
func (s *Supply) OutputStream(uri string, _ uint64, _, _ bool) uint32 {
	s.m.Lock()
	defer s.m.Unlock()
	s.streams = append(s.streams, uri)
	return uint32(len(s.streams))
}

// OutputMetaText implements playout.Supply.
func (s *Supply) OutputMetaText(text string) {
	s.m.Lock()
	defer s.m.Unlock()
	s.meta = append(s.meta, text)
}

// OutputDelay implements playout.Supply.
func (*Supply) OutputDelay(uint64) {}

// OutputWait implements playout.Supply.
func (*Supply) OutputWait() {}

// OutputFlush implements playout.Supply.
func (s *Supply) OutputFlush(flushID uint32) {
	s.m.Lock()
	defer s.m.Unlock()
	s.flushes = append(s.flushes, flushID)
}

// SeekRequest implements playout.Supply.
func (s *Supply) SeekRequest() (uint64, uint32, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.seek == nil || s.writes < s.seekAfter {
		return 0, 0, false
	}
	seek := s.seek
	s.seek = nil
	return seek.offset, seek.flushID, true
}

// Data returns written bytes.
func (s *Supply) Data() []byte {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]byte(nil), s.data...)
}

// Streams returns uris passed to OutputStream.
func (s *Supply) Streams() []string {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]string(nil), s.streams...)
}

// Flushes returns flush ids passed to OutputFlush.
func (s *Supply) Flushes() []uint32 {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]uint32(nil), s.flushes...)
}
