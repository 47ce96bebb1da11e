package playout

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/playout/log"
)

// ProtocolStreamResult is the outcome of Protocol.Stream.
type ProtocolStreamResult int

// Stream results.
const (
	StreamSuccess ProtocolStreamResult = iota
	StreamStopped
	StreamErrorRecoverable
	StreamErrorUnrecoverable
	StreamNotSupported
)

func (r ProtocolStreamResult) String() string {
	switch r {
	case StreamSuccess:
		return "success"
	case StreamStopped:
		return "stopped"
	case StreamErrorRecoverable:
		return "recoverable error"
	case StreamErrorUnrecoverable:
		return "unrecoverable error"
	case StreamNotSupported:
		return "not supported"
	}
	return "unknown"
}

// Supply is what a Protocol writes a stream to. Data written after
// OutputStream belongs to that stream.
type Supply interface {
	io.Writer
	// OutputStream starts a new stream and returns its id.
	OutputStream(uri string, totalBytes uint64, seekable, live bool) uint32
	OutputMetaText(text string)
	OutputDelay(jiffies uint64)
	OutputWait()
	OutputFlush(flushID uint32)
	// SeekRequest returns a pending seek. The protocol restarts at offset
	// and outputs Flush(flushID) before data from there.
	SeekRequest() (offset uint64, flushID uint32, ok bool)
}

// Protocol fetches streams of a URI scheme.
type Protocol interface {
	// Stream blocks until the stream ends or ctx is cancelled. It returns
	// StreamNotSupported for URIs it doesn't handle.
	Stream(ctx context.Context, uri string, out Supply) ProtocolStreamResult
}

// UriProvider provides tracks of a mode.
type UriProvider interface {
	Mode() string
	SupportsGorging() bool
	SupportsNextPrev() bool
	// Begin makes trackID the next track returned by GetNext.
	Begin(trackID uint32)
	// BeginLater is Begin, but the track waits for Play once it reaches
	// the pipeline.
	BeginLater(trackID uint32)
	// GetNext returns the next track. PlayNo means there is nothing to play.
	GetNext() (Track, StreamPlay)
	MoveNext() bool
	MovePrevious() bool
}

// Filler pulls tracks from a UriProvider and streams them through
// protocols into the encoded reservoir. It runs on its own goroutine.
type Filler struct {
	factory   *MsgFactory
	out       Pusher
	ids       *IDManager
	logger    log.Logger
	supplier  *Supplier
	providers []UriProvider
	protocols []Protocol

	m         sync.Mutex
	cond      *sync.Cond
	active    UriProvider
	mode      string
	stopped   bool
	quit      bool
	sendHalt  bool
	newMode   bool
	haltID    uint32
	sessionID uint32
	session   xid.ID
	// cancel interrupts the stream being fetched.
	cancel context.CancelFunc
}

// NewFiller creates a stopped Filler pushing into out.
func NewFiller(factory *MsgFactory, out Pusher, ids *IDManager, logger log.Logger) *Filler {
	f := &Filler{
		factory: factory,
		out:     out,
		ids:     ids,
		logger:  logger,
		stopped: true,
	}
	f.cond = sync.NewCond(&f.m)
	f.supplier = newSupplier(factory, out, ids)
	return f
}

// AddUriProvider registers a provider for its mode.
func (f *Filler) AddUriProvider(p UriProvider) {
	f.providers = append(f.providers, p)
}

// AddProtocol registers a protocol. Protocols are tried in order.
func (f *Filler) AddProtocol(p Protocol) {
	f.protocols = append(f.protocols, p)
}

// Play starts playing trackID of mode.
func (f *Filler) Play(mode string, trackID uint32) error {
	return f.begin(mode, trackID, false)
}

// PlayLater prefetches trackID of mode. Its stream waits in the pipeline
// until Play.
func (f *Filler) PlayLater(mode string, trackID uint32) error {
	return f.begin(mode, trackID, true)
}

func (f *Filler) begin(mode string, trackID uint32, later bool) error {
	p := f.provider(mode)
	if p == nil {
		return fmt.Errorf("%w: no provider for mode %q", ErrInvalidState, mode)
	}
	f.m.Lock()
	defer f.m.Unlock()
	if later {
		p.BeginLater(trackID)
	} else {
		p.Begin(trackID)
	}
	if f.active != p {
		f.newMode = true
	}
	f.active, f.mode = p, mode
	f.stopped = false
	f.sessionID++
	f.session = xid.New()
	f.cond.Broadcast()
	return nil
}

// Stop stops filling and interrupts the current stream. It returns the id
// of the halt that follows the last data pushed.
func (f *Filler) Stop() uint32 {
	f.m.Lock()
	f.stopped = true
	f.sendHalt = true
	f.haltID++
	id := f.haltID
	f.interrupt()
	f.cond.Broadcast()
	f.m.Unlock()
	return id
}

// Next moves to the next track if mode is active.
func (f *Filler) Next(mode string) bool {
	return f.move(mode, UriProvider.MoveNext)
}

// Prev moves to the previous track if mode is active.
func (f *Filler) Prev(mode string) bool {
	return f.move(mode, UriProvider.MovePrevious)
}

func (f *Filler) move(mode string, move func(UriProvider) bool) bool {
	f.m.Lock()
	defer f.m.Unlock()
	if f.active == nil || f.mode != mode {
		return false
	}
	if !move(f.active) {
		return false
	}
	f.stopped = false
	f.cond.Broadcast()
	return true
}

// Quit ends Run after pushing Quit.
func (f *Filler) Quit() {
	f.m.Lock()
	f.quit = true
	f.interrupt()
	f.cond.Broadcast()
	f.m.Unlock()
}

func (f *Filler) interrupt() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Run fills until Quit.
func (f *Filler) Run() error {
	for {
		f.m.Lock()
		for f.stopped && !f.quit && !f.sendHalt {
			f.cond.Wait()
		}
		switch {
		case f.sendHalt:
			f.sendHalt = false
			id := f.haltID
			f.m.Unlock()
			f.out.Push(f.factory.CreateHalt(id))
			continue
		case f.quit:
			f.m.Unlock()
			f.out.Push(f.factory.CreateQuit())
			return nil
		}
		p := f.active
		track, status := p.GetNext()
		if status == PlayNo {
			f.stopped = true
			f.m.Unlock()
			f.out.Push(f.factory.CreateHalt(HaltIDNone))
			continue
		}
		newMode, sessionID := f.newMode, f.sessionID
		f.newMode = false
		ctx, cancel := context.WithCancel(context.Background())
		f.cancel = cancel
		entry := f.logger.WithFields(logrus.Fields{"session": f.session.String(), "track": track.ID})
		f.m.Unlock()

		if newMode {
			f.out.Push(f.factory.CreateMode(p.Mode(), p.SupportsGorging(), p.SupportsNextPrev()))
			f.out.Push(f.factory.CreateSession(sessionID))
		}
		f.out.Push(f.factory.CreateTrack(track, true))
		entry.Debug("streaming ", track.URI)
		result := f.stream(ctx, track, status == PlayYes)
		f.m.Lock()
		f.cancel = nil
		f.m.Unlock()
		cancel()
		switch result {
		case StreamSuccess, StreamStopped:
			entry.Debug("stream ended: ", result)
		default:
			entry.Warn("stream of ", track.URI, ": ", result)
		}
	}
}

func (f *Filler) stream(ctx context.Context, track Track, playNow bool) ProtocolStreamResult {
	ctx = f.supplier.begin(ctx, track.ID, playNow)
	defer f.supplier.end()
	for _, p := range f.protocols {
		if r := p.Stream(ctx, track.URI, f.supplier); r != StreamNotSupported {
			return r
		}
	}
	return StreamNotSupported
}

func (f *Filler) provider(mode string) UriProvider {
	for _, p := range f.providers {
		if p.Mode() == mode {
			return p
		}
	}
	return nil
}

// Supplier turns protocol output into messages and is the StreamHandler
// of every stream the Filler starts.
type Supplier struct {
	factory *MsgFactory
	out     Pusher
	ids     *IDManager

	m         sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	trackID   uint32
	streamID  uint32
	playNow   bool
	seekable  bool
	stopFlush uint32
	seekFlush uint32
	seekAt    uint64
}

func newSupplier(factory *MsgFactory, out Pusher, ids *IDManager) *Supplier {
	return &Supplier{
		factory: factory,
		out:     out,
		ids:     ids,
	}
}

func (s *Supplier) begin(ctx context.Context, trackID uint32, playNow bool) context.Context {
	s.m.Lock()
	defer s.m.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.trackID, s.streamID = trackID, 0
	s.playNow = playNow
	s.seekable = false
	s.stopFlush = FlushIDInvalid
	s.seekFlush = FlushIDInvalid
	return s.ctx
}

// end closes the stream. A flush requested by TryStop follows its last
// data.
func (s *Supplier) end() {
	s.m.Lock()
	s.cancel()
	s.ctx, s.cancel = nil, nil
	flush := s.stopFlush
	s.stopFlush = FlushIDInvalid
	s.streamID = 0
	s.m.Unlock()
	if flush != FlushIDInvalid {
		s.out.Push(s.factory.CreateFlush(flush))
	}
}

// OutputStream implements Supply.
func (s *Supplier) OutputStream(uri string, totalBytes uint64, seekable, live bool) uint32 {
	id := s.ids.NextStreamID()
	s.m.Lock()
	s.streamID = id
	s.seekable = seekable
	trackID, playNow := s.trackID, s.playNow
	s.m.Unlock()
	s.ids.AddStream(trackID, id, playNow)
	s.out.Push(s.factory.CreateEncodedStream(EncodedStreamInfo{
		URI:        uri,
		TotalBytes: totalBytes,
		TrackID:    trackID,
		StreamID:   id,
		Seekable:   seekable,
		Live:       live,
		Handler:    s,
	}))
	return id
}

// Write pushes p as encoded audio. It fails once the stream is
// interrupted.
func (s *Supplier) Write(p []byte) (int, error) {
	s.m.Lock()
	ctx := s.ctx
	s.m.Unlock()
	written := 0
	for len(p) > 0 {
		if ctx == nil {
			return written, context.Canceled
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		m, n := s.factory.CreateAudioEncoded(p)
		s.out.Push(m)
		written += n
		p = p[n:]
	}
	return written, nil
}

// OutputMetaText implements Supply.
func (s *Supplier) OutputMetaText(text string) {
	s.out.Push(s.factory.CreateMetaText(text))
}

// OutputDelay implements Supply.
func (s *Supplier) OutputDelay(jiffies uint64) {
	s.out.Push(s.factory.CreateDelay(jiffies))
}

// OutputWait implements Supply.
func (s *Supplier) OutputWait() {
	s.out.Push(s.factory.CreateWait())
}

// OutputFlush implements Supply.
func (s *Supplier) OutputFlush(flushID uint32) {
	s.out.Push(s.factory.CreateFlush(flushID))
}

// SeekRequest implements Supply.
func (s *Supplier) SeekRequest() (uint64, uint32, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.seekFlush == FlushIDInvalid {
		return 0, FlushIDInvalid, false
	}
	id := s.seekFlush
	s.seekFlush = FlushIDInvalid
	return s.seekAt, id, true
}

func (s *Supplier) current(trackID, streamID uint32) bool {
	return s.ctx != nil && s.trackID == trackID && s.streamID == streamID
}

// OkToPlay implements StreamHandler.
func (s *Supplier) OkToPlay(trackID, streamID uint32) StreamPlay {
	return s.ids.OkToPlay(trackID, streamID)
}

// TrySeek implements StreamHandler.
func (s *Supplier) TrySeek(trackID, streamID uint32, offset uint64) uint32 {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.current(trackID, streamID) || !s.seekable || s.ctx.Err() != nil {
		return FlushIDInvalid
	}
	s.seekAt = offset
	s.seekFlush = s.factory.NextFlushID()
	return s.seekFlush
}

// TryStop implements StreamHandler.
func (s *Supplier) TryStop(trackID, streamID uint32) uint32 {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.current(trackID, streamID) || s.ctx.Err() != nil {
		return FlushIDInvalid
	}
	if s.stopFlush == FlushIDInvalid {
		s.stopFlush = s.factory.NextFlushID()
	}
	s.cancel()
	return s.stopFlush
}

// NotifyStarving implements StreamHandler.
func (s *Supplier) NotifyStarving(string, uint32, uint32) {}
