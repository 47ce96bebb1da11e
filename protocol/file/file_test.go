package file_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/playout"
	"pipelined.dev/playout/mock"
	"pipelined.dev/playout/protocol/file"
)

func write(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("0123456789"), size/10)
	path := filepath.Join(t.TempDir(), "stream.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestStream(t *testing.T) {
	path, data := write(t, 2*playout.EncodedAudioMaxBytes+100)
	tests := []struct {
		name string
		uri  string
	}{
		{name: "path", uri: path},
		{name: "file scheme", uri: "file://" + path},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var s mock.Supply
			res := file.New().Stream(context.Background(), test.uri, &s)
			assert.Equal(t, playout.StreamSuccess, res)
			assert.Equal(t, data, s.Data())
			assert.Equal(t, []string{test.uri}, s.Streams())
		})
	}
}

func TestStreamSeek(t *testing.T) {
	path, data := write(t, 2*playout.EncodedAudioMaxBytes)
	var s mock.Supply
	s.Seek(10, 5, 1)
	res := file.New().Stream(context.Background(), path, &s)
	assert.Equal(t, playout.StreamSuccess, res)

	expected := append([]byte(nil), data[:playout.EncodedAudioMaxBytes]...)
	expected = append(expected, data[10:]...)
	assert.Equal(t, expected, s.Data())
	assert.Equal(t, []uint32{5}, s.Flushes())
}

func TestStreamResults(t *testing.T) {
	path, _ := write(t, 100)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	tests := []struct {
		name   string
		ctx    context.Context
		uri    string
		supply *mock.Supply
		result playout.ProtocolStreamResult
	}{
		{
			name:   "other scheme",
			ctx:    context.Background(),
			uri:    "http://localhost/a.wav",
			supply: &mock.Supply{},
			result: playout.StreamNotSupported,
		},
		{
			name:   "missing file",
			ctx:    context.Background(),
			uri:    filepath.Join(t.TempDir(), "missing.wav"),
			supply: &mock.Supply{},
			result: playout.StreamErrorUnrecoverable,
		},
		{
			name:   "cancelled",
			ctx:    cancelled,
			uri:    path,
			supply: &mock.Supply{},
			result: playout.StreamStopped,
		},
		{
			name:   "write failed",
			ctx:    context.Background(),
			uri:    path,
			supply: &mock.Supply{ErrorOnWrite: errors.New("stopped")},
			result: playout.StreamStopped,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := file.New().Stream(test.ctx, test.uri, test.supply)
			assert.Equal(t, test.result, res)
		})
	}
}
