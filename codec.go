package playout

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"pipelined.dev/playout/log"
)

// CodecInfo describes a stream a codec has initialised.
type CodecInfo struct {
	PcmFormat
	BitRate int
	// TotalFrames is zero if the length is unknown.
	TotalFrames uint64
	Lossless    bool
	Seekable    bool
}

// Codec decodes a container format into interleaved samples. A codec is
// used for one stream at a time.
type Codec interface {
	Name() string
	// Recognise reports if the stream starting with header can be decoded.
	Recognise(header []byte) bool
	// StreamInitialise parses stream headers from r and keeps r for Decode.
	StreamInitialise(r io.Reader) (CodecInfo, error)
	// Decode reads samples into buf and returns the number of samples, a
	// multiple of channels. io.EOF ends the stream.
	Decode(buf []int) (int, error)
	// SeekOffset returns the byte offset of frame. It must be safe to call
	// while Decode runs.
	SeekOffset(frame uint64) (uint64, bool)
	// Resync continues decoding from r, which starts at the last offset
	// returned by SeekOffset.
	Resync(r io.Reader) error
}

// headerSize is how much of a stream is read to recognise the codec.
const headerSize = 64

// errSeekFlush is returned by streamReader when the flush of a seek
// arrives, data after it starts at the seek offset.
var errSeekFlush = errors.New("seek flush")

// CodecController turns encoded streams into decoded audio. It runs on
// its own goroutine, pulling from the encoded reservoir and pushing into
// the decoded reservoir.
type CodecController struct {
	upstream   Element
	downstream Pusher
	factory    *MsgFactory
	logger     log.Logger
	codecs     []Codec

	reader streamReader
	buf    []int

	m         sync.Mutex
	stream    EncodedStreamInfo
	codec     Codec
	info      CodecInfo
	active    bool
	seekFlush uint32
	seekFrame uint64
}

// NewCodecController creates a CodecController.
func NewCodecController(factory *MsgFactory, upstream Element, downstream Pusher, logger log.Logger) *CodecController {
	c := &CodecController{
		upstream:   upstream,
		downstream: downstream,
		factory:    factory,
		logger:     logger,
		buf:        make([]int, DecodedAudioMaxSamples),
	}
	c.reader.c = c
	return c
}

// AddCodec registers a codec. Codecs are tried in order.
func (c *CodecController) AddCodec(codec Codec) {
	c.codecs = append(c.codecs, codec)
}

// StartSeek asks the source of the current stream to restart at seconds.
// It returns the id of the flush which precedes data at the new position.
func (c *CodecController) StartSeek(trackID, streamID uint32, seconds uint) (uint32, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.active || c.stream.TrackID != trackID || c.stream.StreamID != streamID {
		return FlushIDInvalid, ErrStreamNotFound
	}
	if !c.stream.Seekable || !c.info.Seekable {
		return FlushIDInvalid, ErrNotSeekable
	}
	frame := uint64(seconds) * uint64(c.info.SampleRate)
	if c.info.TotalFrames != 0 && frame >= c.info.TotalFrames {
		return FlushIDInvalid, fmt.Errorf("%w: %ds beyond end of stream", ErrNotSeekable, seconds)
	}
	offset, ok := c.codec.SeekOffset(frame)
	if !ok {
		return FlushIDInvalid, ErrNotSeekable
	}
	flushID := handlerOrNull(c.stream.Handler).TrySeek(trackID, streamID, offset)
	if flushID == FlushIDInvalid {
		return FlushIDInvalid, ErrNotSeekable
	}
	c.seekFlush = flushID
	c.seekFrame = frame
	return flushID, nil
}

// Run decodes streams until Quit.
func (c *CodecController) Run() error {
	for {
		m := c.reader.next()
		switch msg := m.(type) {
		case *MsgQuit:
			c.downstream.Push(m)
			return nil
		case *MsgEncodedStream:
			info := msg.EncodedStreamInfo
			c.downstream.Push(m)
			c.decodeStream(info)
		case *MsgAudioEncoded:
			// data of a stream which failed to start
			m.RemoveRef()
		default:
			c.downstream.Push(m)
		}
	}
}

func (c *CodecController) decodeStream(stream EncodedStreamInfo) {
	c.reader.start()
	header := make([]byte, headerSize)
	n, err := io.ReadFull(&c.reader, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		c.fail(stream, err)
		return
	}
	header = header[:n]
	codec := c.recognise(header)
	if codec == nil {
		c.fail(stream, fmt.Errorf("%w: %s", ErrCodecNotFound, stream.URI))
		return
	}
	info, err := codec.StreamInitialise(io.MultiReader(bytes.NewReader(header), &c.reader))
	if err != nil {
		c.fail(stream, fmt.Errorf("%s: %w", codec.Name(), err))
		return
	}
	if !SupportedSampleRate(info.SampleRate) || info.Channels < 1 {
		c.fail(stream, fmt.Errorf("%s: unsupported format %s", codec.Name(), info.PcmFormat))
		return
	}

	c.m.Lock()
	c.stream, c.codec, c.info, c.active = stream, codec, info, true
	c.seekFlush = FlushIDInvalid
	c.m.Unlock()
	defer func() {
		c.m.Lock()
		c.active = false
		c.codec = nil
		c.m.Unlock()
	}()

	c.logger.WithField("codec", codec.Name()).WithField("format", info.PcmFormat.String()).
		Debug("stream ", stream.StreamID, " of track ", stream.TrackID)
	c.pushDecodedStream(stream, codec, info, 0)
	var frame uint64
	for {
		err := c.decode(info, &frame)
		switch {
		case err == nil, errors.Is(err, io.EOF):
			c.reader.drain()
			return
		case errors.Is(err, errSeekFlush):
			c.m.Lock()
			frame = c.seekFrame
			c.m.Unlock()
			if err := codec.Resync(&c.reader); err != nil {
				c.fail(stream, fmt.Errorf("%s: resync: %w", codec.Name(), err))
				return
			}
			c.pushDecodedStream(stream, codec, info, frame)
		default:
			c.fail(stream, fmt.Errorf("%s: %w", codec.Name(), err))
			return
		}
	}
}

// decode pushes full sample buffers until the stream ends. A partial
// buffer is pushed at the end of the stream and dropped on seek.
func (c *CodecController) decode(info CodecInfo, frame *uint64) error {
	filled := 0
	for {
		n, err := c.codec.Decode(c.buf[filled:])
		filled += n
		if filled == len(c.buf) || (err != nil && filled > 0 && !errors.Is(err, errSeekFlush)) {
			c.pushAudio(info, c.buf[:filled], frame)
			filled = 0
		}
		if err != nil {
			return err
		}
	}
}

func (c *CodecController) pushAudio(info CodecInfo, samples []int, frame *uint64) {
	for len(samples) >= info.Channels {
		offset := SamplesToJiffies(*frame, info.SampleRate)
		m, n := c.factory.CreateAudioPcm(samples, info.PcmFormat, offset)
		*frame += uint64(n / info.Channels)
		samples = samples[n:]
		c.downstream.Push(m)
	}
}

func (c *CodecController) pushDecodedStream(stream EncodedStreamInfo, codec Codec, info CodecInfo, start uint64) {
	c.downstream.Push(c.factory.CreateDecodedStream(DecodedStreamInfo{
		PcmFormat:   info.PcmFormat,
		TrackID:     stream.TrackID,
		StreamID:    stream.StreamID,
		BitRate:     info.BitRate,
		CodecName:   codec.Name(),
		TrackLength: SamplesToJiffies(info.TotalFrames, info.SampleRate),
		SampleStart: start,
		Lossless:    info.Lossless,
		Seekable:    stream.Seekable && info.Seekable,
		Live:        stream.Live,
		Handler:     stream.Handler,
	}))
}

// fail ends a stream which can't be decoded. The source is stopped and a
// halt tells downstream no audio follows.
func (c *CodecController) fail(stream EncodedStreamInfo, err error) {
	c.logger.WithField("track", stream.TrackID).WithField("stream", stream.StreamID).Warn(err)
	handlerOrNull(stream.Handler).TryStop(stream.TrackID, stream.StreamID)
	c.reader.drain()
	c.downstream.Push(c.factory.CreateHalt(HaltIDNone))
}

func (c *CodecController) recognise(header []byte) Codec {
	for _, codec := range c.codecs {
		if codec.Recognise(header) {
			return codec
		}
	}
	return nil
}

func (c *CodecController) isSeekFlush(id uint32) bool {
	c.m.Lock()
	defer c.m.Unlock()
	if c.seekFlush != FlushIDInvalid && id == c.seekFlush {
		c.seekFlush = FlushIDInvalid
		return true
	}
	return false
}

// streamReader reads encoded data of the current stream. Control messages
// inside the stream are passed downstream, a message starting something
// new ends the stream and is kept for the controller.
type streamReader struct {
	c       *CodecController
	pending Msg
	data    *MsgAudioEncoded
	offset  int
	ended   bool
}

// next returns the message which ended the last stream or pulls a new
// one.
func (r *streamReader) next() Msg {
	if m := r.pending; m != nil {
		r.pending = nil
		return m
	}
	return r.c.upstream.Pull()
}

func (r *streamReader) start() {
	r.ended = false
}

func (r *streamReader) Read(p []byte) (int, error) {
	for r.data == nil {
		if r.ended {
			return 0, io.EOF
		}
		m := r.c.upstream.Pull()
		switch msg := m.(type) {
		case *MsgAudioEncoded:
			r.data, r.offset = msg, 0
		case *MsgHalt, *MsgTrack, *MsgEncodedStream, *MsgMode, *MsgSession, *MsgQuit:
			r.pending = m
			r.ended = true
		case *MsgFlush:
			seek := r.c.isSeekFlush(msg.ID)
			r.c.downstream.Push(m)
			if seek {
				return 0, errSeekFlush
			}
		default:
			r.c.downstream.Push(m)
		}
	}
	n := copy(p, r.data.Bytes()[r.offset:])
	r.offset += n
	if r.offset == len(r.data.Bytes()) {
		r.data.RemoveRef()
		r.data = nil
	}
	return n, nil
}

// drain discards the rest of the stream.
func (r *streamReader) drain() {
	if r.data != nil {
		r.data.RemoveRef()
		r.data = nil
	}
	var skip [512]byte
	for {
		if _, err := r.Read(skip[:]); errors.Is(err, io.EOF) {
			return
		}
	}
}
