// Package wav is a codec for RIFF/WAVE streams.
package wav

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/playout"
)

// ErrUnsupportedFormat is returned for compressed, 8 bit or odd bit depth
// data.
var ErrUnsupportedFormat = errors.New("unsupported wav format")

const pcmFormat = 1

// Codec decodes integer PCM wav streams. It is seekable: a seek is
// resolved to a byte offset inside the data chunk.
type Codec struct {
	decoder *wav.Decoder
	buf     audio.IntBuffer
	format  playout.PcmFormat
	frame   int

	// dataOffset and frameBytes are set by StreamInitialise and read by
	// SeekOffset from other goroutines.
	dataOffset atomic.Uint64
	frameBytes atomic.Uint64
	dataBytes  uint64
	seekFrame  atomic.Uint64
}

// New returns a wav codec.
func New() *Codec {
	return &Codec{}
}

// Name implements playout.Codec.
func (*Codec) Name() string { return "WAV" }

// Recognise implements playout.Codec.
func (*Codec) Recognise(header []byte) bool {
	return len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE"
}

// StreamInitialise implements playout.Codec.
func (c *Codec) StreamInitialise(r io.Reader) (playout.CodecInfo, error) {
	s := &stream{r: r}
	d := wav.NewDecoder(s)
	if err := d.FwdToPCM(); err != nil {
		return playout.CodecInfo{}, fmt.Errorf("wav: %w", err)
	}
	if err := d.Err(); err != nil {
		return playout.CodecInfo{}, fmt.Errorf("wav: %w", err)
	}
	if d.PCMChunk == nil {
		return playout.CodecInfo{}, fmt.Errorf("wav: %w", wav.ErrPCMChunkNotFound)
	}
	if d.WavAudioFormat != pcmFormat {
		return playout.CodecInfo{}, fmt.Errorf("%w: format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 16, 24, 32:
	default:
		return playout.CodecInfo{}, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, d.BitDepth)
	}
	c.decoder = d
	c.format = playout.PcmFormat{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	frameBytes := uint64(d.NumChans) * uint64(d.BitDepth/8)
	c.frameBytes.Store(frameBytes)
	c.dataOffset.Store(s.pos)
	c.dataBytes = uint64(d.PCMSize)
	d.PCMChunk.R = &frameReader{r: io.LimitReader(s, int64(d.PCMSize)), frame: int(frameBytes)}
	return playout.CodecInfo{
		PcmFormat:   c.format,
		BitRate:     int(d.AvgBytesPerSec) * 8,
		TotalFrames: c.dataBytes / frameBytes,
		Lossless:    true,
		Seekable:    true,
	}, nil
}

// Decode implements playout.Codec.
func (c *Codec) Decode(buf []int) (int, error) {
	c.buf.Data = buf[:len(buf)-len(buf)%c.format.Channels]
	n, err := c.decoder.PCMBuffer(&c.buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// SeekOffset implements playout.Codec.
func (c *Codec) SeekOffset(frame uint64) (uint64, bool) {
	fb := c.frameBytes.Load()
	if fb == 0 {
		return 0, false
	}
	c.seekFrame.Store(frame)
	return c.dataOffset.Load() + frame*fb, true
}

// Resync implements playout.Codec.
func (c *Codec) Resync(r io.Reader) error {
	fb := c.frameBytes.Load()
	skip := c.seekFrame.Load() * fb
	if skip > c.dataBytes {
		return fmt.Errorf("wav: seek beyond data")
	}
	c.decoder.PCMChunk.R = &frameReader{r: io.LimitReader(r, int64(c.dataBytes-skip)), frame: int(fb)}
	return nil
}

// stream adapts a forward only reader to the decoder, which only needs to
// know its position.
type stream struct {
	r   io.Reader
	pos uint64
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.pos += uint64(n)
	return n, err
}

func (s *stream) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekCurrent || offset < 0 {
		return int64(s.pos), errors.New("wav: stream only seeks forward")
	}
	_, err := io.CopyN(io.Discard, s, offset)
	return int64(s.pos), err
}

// frameReader only returns whole frames so that samples never straddle
// two reads.
type frameReader struct {
	r     io.Reader
	frame int
}

func (f *frameReader) Read(p []byte) (int, error) {
	size := len(p) - len(p)%f.frame
	if size == 0 {
		return 0, io.ErrShortBuffer
	}
	n, err := io.ReadAtLeast(f.r, p[:size], f.frame)
	if err != nil {
		// a trailing partial frame is padding
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}
	if rem := n % f.frame; rem != 0 {
		m, err := io.ReadFull(f.r, p[n:n+f.frame-rem])
		n += m
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, err
		}
	}
	return n - n%f.frame, nil
}
