package mp3_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/playout"
	"pipelined.dev/playout/codec/mp3"
)

func TestRecognise(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		ok     bool
	}{
		{name: "id3 tag", header: []byte("ID3\x04\x00"), ok: true},
		{name: "layer 3 sync", header: []byte{0xff, 0xfb, 0x90, 0x64}, ok: true},
		{name: "mpeg2 layer 3 sync", header: []byte{0xff, 0xf3, 0x90, 0x64}, ok: true},
		{name: "layer 2 sync", header: []byte{0xff, 0xfd, 0x90, 0x64}},
		{name: "wav", header: []byte("RIFF\x00\x00\x00\x00WAVE")},
		{name: "short", header: []byte{0xff}},
	}
	c := mp3.New()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.ok, c.Recognise(test.header))
		})
	}
}

func TestNotSeekable(t *testing.T) {
	c := mp3.New()
	assert.Equal(t, "MP3", c.Name())
	_, ok := c.SeekOffset(100)
	assert.False(t, ok)
	assert.ErrorIs(t, c.Resync(bytes.NewReader(nil)), playout.ErrNotSeekable)
}

func TestStreamInitialiseInvalid(t *testing.T) {
	_, err := mp3.New().StreamInitialise(bytes.NewReader([]byte("not an mp3 stream")))
	assert.Error(t, err)
}
