// Package mp3 is a codec for MPEG-1/2 layer 3 streams.
package mp3

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"pipelined.dev/playout"
)

// go-mp3 always produces 16 bit little endian stereo.
const (
	channels      = 2
	bytesPerFrame = 4
	bitDepth      = 16
)

// Codec decodes mp3 streams. Streams are not seekable because the frame
// index needs the whole stream.
type Codec struct {
	decoder *mp3.Decoder
	raw     []byte
}

// New returns an mp3 codec.
func New() *Codec {
	return &Codec{}
}

// Name implements playout.Codec.
func (*Codec) Name() string { return "MP3" }

// Recognise implements playout.Codec. It accepts an ID3v2 tag or an mpeg
// audio frame sync with layer 3.
func (*Codec) Recognise(header []byte) bool {
	if len(header) >= 3 && string(header[:3]) == "ID3" {
		return true
	}
	return len(header) >= 2 && header[0] == 0xff && header[1]&0xe0 == 0xe0 && header[1]&0x06 == 0x02
}

// StreamInitialise implements playout.Codec.
func (c *Codec) StreamInitialise(r io.Reader) (playout.CodecInfo, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return playout.CodecInfo{}, fmt.Errorf("mp3: %w", err)
	}
	c.decoder = d
	return playout.CodecInfo{
		PcmFormat: playout.PcmFormat{
			SampleRate: d.SampleRate(),
			Channels:   channels,
			BitDepth:   bitDepth,
		},
	}, nil
}

// Decode implements playout.Codec.
func (c *Codec) Decode(buf []int) (int, error) {
	frames := len(buf) / channels
	if n := frames * bytesPerFrame; cap(c.raw) < n {
		c.raw = make([]byte, n)
	}
	raw := c.raw[:frames*bytesPerFrame]
	n, err := io.ReadAtLeast(c.decoder, raw, bytesPerFrame)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	n -= n % bytesPerFrame
	for i := 0; i < n/2; i++ {
		buf[i] = int(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}
	if n > 0 {
		return n / 2, nil
	}
	return 0, err
}

// SeekOffset implements playout.Codec.
func (*Codec) SeekOffset(uint64) (uint64, bool) {
	return 0, false
}

// Resync implements playout.Codec.
func (*Codec) Resync(io.Reader) error {
	return playout.ErrNotSeekable
}
