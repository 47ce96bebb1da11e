// Package portaudio is a driver sink which plays audio with the default
// output device.
package portaudio

import (
	"github.com/gordonklaus/portaudio"

	"pipelined.dev/playout"
)

// Sink represents portaudio sink which allows to play audio using default
// device. The portaudio api is initialised by Open and terminated by Close.
type Sink struct {
	bufferFrames int
	buf          []float32
	pos          int
	scale        float32
	stream       *portaudio.Stream
}

// NewSink returns new sink which writes bufferFrames frames to the device
// at once.
func NewSink(bufferFrames int) *Sink {
	return &Sink{bufferFrames: bufferFrames}
}

// Open implements driver.Sink.
func (s *Sink) Open(format playout.PcmFormat) error {
	s.buf = make([]float32, s.bufferFrames*format.Channels)
	s.pos = 0
	s.scale = 1 / float32(int64(1)<<(format.BitDepth-1))
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), s.bufferFrames, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}
	s.stream = stream
	return nil
}

// Write implements driver.Sink. Samples are converted to float and
// written to the device whenever a device buffer is full.
func (s *Sink) Write(samples []int) error {
	for _, v := range samples {
		s.buf[s.pos] = float32(v) * s.scale
		s.pos++
		if s.pos == len(s.buf) {
			if err := s.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Halt implements driver.Halter. The partial buffer is padded with
// silence and played.
func (s *Sink) Halt() error {
	if s.pos == 0 {
		return nil
	}
	clear(s.buf[s.pos:])
	return s.flush()
}

func (s *Sink) flush() error {
	s.pos = 0
	return s.stream.Write()
}

// Close terminates portaudio structures.
func (s *Sink) Close() error {
	if s.stream == nil {
		return nil
	}
	if err := s.Halt(); err != nil {
		return err
	}
	err := s.stream.Stop()
	if err != nil {
		return err
	}
	err = s.stream.Close()
	if err != nil {
		return err
	}
	s.stream = nil
	return portaudio.Terminate()
}
