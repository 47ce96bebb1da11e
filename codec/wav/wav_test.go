package wav_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/playout"
	"pipelined.dev/playout/codec/wav"
)

// encode returns a wav file with samples.
func encode(t *testing.T, bitDepth, channels int, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	e := gowav.NewEncoder(f, 44100, bitDepth, channels, 1)
	require.NoError(t, e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: 44100},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

func decodeAll(t *testing.T, c *wav.Codec) []int {
	t.Helper()
	buf := make([]int, 6)
	var samples []int
	for {
		n, err := c.Decode(buf)
		if errors.Is(err, io.EOF) {
			return samples
		}
		require.NoError(t, err)
		samples = append(samples, buf[:n]...)
	}
}

func TestCodec(t *testing.T) {
	samples := sequence(16)
	data := encode(t, 16, 2, samples)
	c := wav.New()
	assert.Equal(t, "WAV", c.Name())
	assert.True(t, c.Recognise(data[:64]))
	assert.False(t, c.Recognise([]byte("ID3\x04")))

	_, ok := c.SeekOffset(0)
	assert.False(t, ok, "seek before initialise")

	info, err := c.StreamInitialise(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, playout.PcmFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}, info.PcmFormat)
	assert.Equal(t, uint64(8), info.TotalFrames)
	assert.Equal(t, 44100*4*8, info.BitRate)
	assert.True(t, info.Lossless)
	assert.True(t, info.Seekable)
	assert.Equal(t, samples, decodeAll(t, c))
}

func TestCodecSeek(t *testing.T) {
	samples := sequence(16)
	data := encode(t, 16, 2, samples)
	c := wav.New()
	_, err := c.StreamInitialise(bytes.NewReader(data))
	require.NoError(t, err)

	start, ok := c.SeekOffset(0)
	require.True(t, ok)
	assert.Equal(t, uint64(44), start)

	offset, ok := c.SeekOffset(5)
	require.True(t, ok)
	assert.Equal(t, start+5*4, offset)
	require.NoError(t, c.Resync(bytes.NewReader(data[offset:])))
	assert.Equal(t, samples[10:], decodeAll(t, c))

	c.SeekOffset(9)
	assert.Error(t, c.Resync(bytes.NewReader(nil)), "seek beyond data")
}

func TestCodecUnsupported(t *testing.T) {
	data := encode(t, 8, 1, sequence(4))
	_, err := wav.New().StreamInitialise(bytes.NewReader(data))
	assert.ErrorIs(t, err, wav.ErrUnsupportedFormat)

	_, err = wav.New().StreamInitialise(bytes.NewReader([]byte("RIFF")))
	assert.Error(t, err)
}
