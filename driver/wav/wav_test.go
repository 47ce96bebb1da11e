package wav_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/playout"
	wavsink "pipelined.dev/playout/driver/wav"
)

func decode(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return d, buf.Data
}

func TestSink(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.wav")
	s := wavsink.NewSink(out)

	stereo := playout.PcmFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}
	require.NoError(t, s.Open(stereo))
	require.NoError(t, s.Write([]int{1, -1, 2, -2}))
	require.NoError(t, s.Write([]int{3, -3}))
	require.NoError(t, s.Close())

	mono := playout.PcmFormat{SampleRate: 48000, Channels: 1, BitDepth: 24}
	require.NoError(t, s.Open(mono))
	require.NoError(t, s.Write([]int{1 << 20, -1 << 20}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	files := s.Files()
	assert.Equal(t, []string{out, filepath.Join(dir, "out.1.wav")}, files)

	d, samples := decode(t, files[0])
	assert.Equal(t, uint32(44100), d.SampleRate)
	assert.Equal(t, uint16(2), d.NumChans)
	assert.Equal(t, []int{1, -1, 2, -2, 3, -3}, samples)

	d, samples = decode(t, files[1])
	assert.Equal(t, uint32(48000), d.SampleRate)
	assert.Equal(t, uint16(24), d.BitDepth)
	assert.Equal(t, []int{1 << 20, -1 << 20}, samples)
}

func TestSinkUnsupportedBitDepth(t *testing.T) {
	s := wavsink.NewSink(filepath.Join(t.TempDir(), "out.wav"))
	err := s.Open(playout.PcmFormat{SampleRate: 44100, Channels: 2, BitDepth: 8})
	assert.ErrorIs(t, err, wavsink.ErrUnsupportedBitDepth)
	assert.Empty(t, s.Files())
}
