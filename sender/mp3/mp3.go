// Package mp3 is a sender which encodes the audio teed by the pipeline
// splitter to mp3.
package mp3

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viert/lame"

	"pipelined.dev/playout"
	"pipelined.dev/playout/log"
)

const (
	defaultBitRate = 192
	defaultQuality = 2
	queueSize      = 32
	bufferSamples  = playout.DecodedAudioMaxSamples
)

// chunk is pcm converted to 16 bit on the pushing thread.
type chunk struct {
	format playout.PcmFormat
	data   []byte
}

// Sender encodes pipeline audio to mp3 and writes it to out. Push only
// converts samples, encoding runs in Run. When Run falls behind the
// queue is full and audio is dropped rather than delaying the driver.
type Sender struct {
	factory *playout.MsgFactory
	out     io.Writer
	logger  log.Logger
	bitRate int
	quality int

	chunks   chan chunk
	quit     chan struct{}
	quitOnce sync.Once
	samples  []int
	dropped  int
}

// Option configures a sender.
type Option func(*Sender)

// WithBitRate sets the mp3 bitrate in kbit/s.
func WithBitRate(bitRate int) Option {
	return func(s *Sender) {
		s.bitRate = bitRate
	}
}

// WithQuality sets the lame quality, 0 is best and 9 is worst.
func WithQuality(quality int) Option {
	return func(s *Sender) {
		s.quality = quality
	}
}

// New creates a sender writing to out.
func New(factory *playout.MsgFactory, out io.Writer, logger log.Logger, options ...Option) *Sender {
	if logger == nil {
		logger = log.Silent()
	}
	s := Sender{
		factory: factory,
		out:     out,
		logger:  logger,
		bitRate: defaultBitRate,
		quality: defaultQuality,
		chunks:  make(chan chunk, queueSize),
		quit:    make(chan struct{}),
		samples: make([]int, bufferSamples),
	}
	for _, option := range options {
		option(&s)
	}
	return &s
}

// Push implements playout.Pusher. It consumes the reference to m.
func (s *Sender) Push(m playout.Msg) {
	switch m.(type) {
	case *playout.MsgAudioPcm, *playout.MsgSilence:
		s.pushAudio(m.(playout.MsgAudio))
		return
	case *playout.MsgQuit:
		s.quitOnce.Do(func() { close(s.quit) })
	}
	m.RemoveRef()
}

func (s *Sender) pushAudio(a playout.MsgAudio) {
	format := a.Format()
	p := s.factory.CreatePlayable(a)
	defer p.RemoveRef()
	if format.Channels == 0 {
		return
	}
	shift := format.BitDepth - 16
	buf := new(bytes.Buffer)
	for p.Remaining() > 0 {
		n := p.Read(s.samples) * format.Channels
		for _, v := range s.samples[:n] {
			if err := binary.Write(buf, binary.LittleEndian, int16(v>>shift)); err != nil {
				return
			}
		}
	}
	s.send(chunk{format: format, data: buf.Bytes()})
}

func (s *Sender) send(c chunk) {
	select {
	case s.chunks <- c:
	default:
		s.dropped++
		if s.dropped == 1 || s.dropped%100 == 0 {
			s.logger.WithField("dropped", s.dropped).Warn("mp3 sender: queue full")
		}
	}
}

// Run encodes until Quit is pushed or ctx is done. Audio queued before
// Quit is encoded.
func (s *Sender) Run(ctx context.Context) error {
	var (
		wr     *lame.LameWriter
		format playout.PcmFormat
	)
	defer func() {
		if wr != nil {
			wr.Close()
		}
	}()
	encode := func(c chunk) error {
		if wr == nil || c.format != format {
			if wr != nil {
				if err := wr.Close(); err != nil {
					return err
				}
			}
			format = c.format
			wr = s.writer(format)
		}
		_, err := wr.Write(c.data)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-s.chunks:
			if err := encode(c); err != nil {
				return err
			}
		case <-s.quit:
			for {
				select {
				case c := <-s.chunks:
					if err := encode(c); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

func (s *Sender) writer(format playout.PcmFormat) *lame.LameWriter {
	wr := lame.NewWriter(s.out)
	wr.Encoder.SetBitrate(s.bitRate)
	wr.Encoder.SetQuality(s.quality)
	wr.Encoder.SetNumChannels(format.Channels)
	wr.Encoder.SetInSamplerate(format.SampleRate)
	if format.Channels == 2 {
		wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	wr.Encoder.SetVBR(lame.VBR_RH)
	wr.Encoder.InitParams()
	s.logger.WithFields(logrus.Fields{
		"bitRate": s.bitRate,
		"quality": s.quality,
		"format":  format.String(),
	}).Debug("mp3 sender: encoder")
	return wr
}
