// Package driver pulls audio from the end of a playout pipeline and plays
// it through a Sink.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/playout"
	"pipelined.dev/playout/log"
	"pipelined.dev/playout/metric"
)

// Sink plays interleaved samples.
type Sink interface {
	// Open prepares the sink for format. It is called before the first
	// audio of every format.
	Open(playout.PcmFormat) error
	// Write plays samples of the opened format. Samples are scaled to the
	// format bit depth.
	Write(samples []int) error
	// Close releases the sink. Open can be called again afterwards.
	Close() error
}

// Halter is implemented by sinks which want to know when the pipeline
// halted, for example to drain hardware buffers.
type Halter interface {
	Halt() error
}

// Option configures a driver.
type Option func(*driver)

// WithPullLatency feeds the duration of every pull into l.
func WithPullLatency(l *metric.Latency) Option {
	return func(d *driver) {
		d.pullLatency = l
	}
}

// WithWriteInterval feeds the interval between sink writes into l.
func WithWriteInterval(l *metric.Latency) Option {
	return func(d *driver) {
		d.writeInterval = metric.Meter(l)
	}
}

// WithBufferFrames sets the size of the buffer passed to Sink.Write.
func WithBufferFrames(frames int) Option {
	return func(d *driver) {
		d.bufferFrames = frames
	}
}

const defaultBufferFrames = 512

type driver struct {
	source        playout.Element
	sink          Sink
	logger        log.Logger
	pullLatency   *metric.Latency
	writeInterval metric.ResetFunc
	bufferFrames  int

	buf    []int
	format playout.PcmFormat
	open   bool
	err    error
}

// Run pulls from source until Quit. Playable audio is written to sink.
// Once ctx is done or the sink failed, the sink is closed and audio is
// discarded: the pipeline still has to deliver Quit, so pulling goes on.
// Run returns the first sink error or the context error.
func Run(ctx context.Context, source playout.Element, sink Sink, logger log.Logger, options ...Option) error {
	if logger == nil {
		logger = log.Silent()
	}
	d := driver{
		source:       source,
		sink:         sink,
		logger:       logger,
		bufferFrames: defaultBufferFrames,
	}
	for _, option := range options {
		option(&d)
	}
	measure := func() {}
	if d.writeInterval != nil {
		measure = d.writeInterval()
	}
	for {
		if d.err == nil && ctx.Err() != nil {
			d.fail(ctx.Err())
		}
		msg := d.pull()
		quit := false
		switch m := msg.(type) {
		case *playout.MsgPlayable:
			if d.play(m) {
				measure()
			}
		case *playout.MsgDecodedStream:
			d.stream(m.Info)
		case *playout.MsgHalt:
			d.halt(m.ID)
		case *playout.MsgQuit:
			quit = true
		default:
			d.logger.WithField("kind", msg.Kind().String()).Warn("driver: unexpected message")
		}
		msg.RemoveRef()
		if quit {
			d.close()
			return d.err
		}
	}
}

func (d *driver) pull() playout.Msg {
	if d.pullLatency == nil {
		return d.source.Pull()
	}
	start := time.Now()
	msg := d.source.Pull()
	d.pullLatency.Observe(time.Since(start))
	return msg
}

func (d *driver) stream(info playout.DecodedStreamInfo) {
	d.logger.WithFields(logrus.Fields{
		"track":  info.TrackID,
		"stream": info.StreamID,
		"codec":  info.CodecName,
		"format": info.PcmFormat.String(),
	}).Debug("driver: stream")
	if d.err != nil || (d.open && info.PcmFormat == d.format) {
		return
	}
	d.close()
	if err := d.sink.Open(info.PcmFormat); err != nil {
		d.fail(err)
		return
	}
	d.format = info.PcmFormat
	d.open = true
	d.buf = make([]int, d.bufferFrames*info.Channels)
}

// play writes m to the sink. It returns false if audio was discarded.
func (d *driver) play(m *playout.MsgPlayable) bool {
	if d.err != nil || m.Format().Channels == 0 {
		return false
	}
	if !d.open || m.Format() != d.format {
		// Playable of a format not announced by a DecodedStream, which
		// happens for silence generated before the first stream.
		d.stream(playout.DecodedStreamInfo{PcmFormat: m.Format()})
		if d.err != nil {
			return false
		}
	}
	for m.Remaining() > 0 {
		n := m.Read(d.buf)
		if err := d.sink.Write(d.buf[:n*d.format.Channels]); err != nil {
			d.fail(err)
			return false
		}
	}
	return true
}

func (d *driver) halt(id uint32) {
	d.logger.WithField("halt", id).Debug("driver: halt")
	if d.err != nil || !d.open {
		return
	}
	if h, ok := d.sink.(Halter); ok {
		if err := h.Halt(); err != nil {
			d.fail(err)
		}
	}
}

func (d *driver) fail(err error) {
	if !errors.Is(err, context.Canceled) {
		d.logger.Error("driver: ", err)
	}
	d.err = err
	d.close()
}

func (d *driver) close() {
	if !d.open {
		return
	}
	d.open = false
	if err := d.sink.Close(); err != nil && d.err == nil {
		d.err = err
	}
}
