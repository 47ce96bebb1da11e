// Package wav is a driver sink which records audio to wav files.
package wav

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/playout"
)

// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")

const pcmFormat = 1

// Sink saves audio to wav files. A wav file has a single format, so every
// Open after the first starts a new file with a numeric suffix:
// out.wav, out.1.wav, out.2.wav.
type Sink struct {
	path    string
	files   []string
	file    *os.File
	encoder *wav.Encoder
	buf     audio.IntBuffer
}

// NewSink creates new wav sink.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Files returns the paths of files created so far.
func (s *Sink) Files() []string {
	return append([]string(nil), s.files...)
}

// Open implements driver.Sink.
func (s *Sink) Open(format playout.PcmFormat) error {
	switch format.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, format.BitDepth)
	}
	path := s.nextPath()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	s.files = append(s.files, path)
	s.file = f
	s.encoder = wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, pcmFormat)
	s.buf = audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		SourceBitDepth: format.BitDepth,
	}
	return nil
}

func (s *Sink) nextPath() string {
	if len(s.files) == 0 {
		return s.path
	}
	ext := filepath.Ext(s.path)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(s.path, ext), len(s.files), ext)
}

// Write implements driver.Sink.
func (s *Sink) Write(samples []int) error {
	s.buf.Data = samples
	return s.encoder.Write(&s.buf)
}

// Close flushes encoder and closes the file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.encoder.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file, s.encoder = nil, nil
	return err
}
