package mock_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/playout"
	"pipelined.dev/playout/mock"
)

var format = playout.PcmFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}

func TestSource(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := playout.NewMsgFactory(playout.DefaultFactoryConfig())
	var s mock.Source
	s.Push(f.CreateHalt(1))
	s.Push(f.CreateHalt(2))
	assert.Equal(t, 2, s.Len())

	for _, id := range []uint32{1, 2} {
		m := s.Pull()
		assert.Equal(t, id, m.(*playout.MsgHalt).ID)
		m.RemoveRef()
	}

	pulled := make(chan playout.Msg)
	go func() {
		pulled <- s.Pull()
	}()
	s.Push(f.CreateQuit())
	m := <-pulled
	assert.Equal(t, playout.KindQuit, m.Kind())
	m.RemoveRef()
	assert.Equal(t, 3, s.Pulled())
	assert.Zero(t, s.Len())
}

func TestSink(t *testing.T) {
	var s mock.Sink
	assert.Error(t, s.Write([]int{1, 2}))
	require.NoError(t, s.Open(format))
	require.NoError(t, s.Write([]int{1, 2}))
	require.NoError(t, s.Write([]int{3, 4}))
	require.NoError(t, s.Halt())
	require.NoError(t, s.Close())

	assert.Equal(t, []int{1, 2, 3, 4}, s.Samples())
	assert.Equal(t, []playout.PcmFormat{format}, s.Formats())
	assert.Equal(t, 2, s.Writes())
	assert.Equal(t, mock.Hooks{Opened: 1, Closed: 1, Halted: 1}, s.Counters())

	errOpen := errors.New("open")
	failing := mock.Sink{ErrorOnOpen: errOpen}
	assert.ErrorIs(t, failing.Open(format), errOpen)
	assert.Empty(t, failing.Formats())
}

func TestObserver(t *testing.T) {
	o := mock.NewObserver()
	o.NotifyPipelineState(playout.PipelinePlaying)
	<-o.Changed()
	o.NotifyTrack(playout.Track{ID: 3, URI: "a"}, "playlist", true)
	o.NotifyTime(1, 10)
	o.NotifyTrackFail(playout.Track{ID: 4})

	state, ok := o.State()
	assert.True(t, ok)
	assert.Equal(t, playout.PipelinePlaying, state)
	assert.Equal(t, []uint{1}, o.Times())
	require.Len(t, o.Tracks(), 1)
	assert.Equal(t, uint32(3), o.Tracks()[0].ID)
	require.Len(t, o.Failed(), 1)
	assert.Equal(t, uint32(4), o.Failed()[0].ID)
	assert.Empty(t, o.Played())
}

func TestCodec(t *testing.T) {
	samples := []int{1, -2, 3, -4, 5, -6}
	data := mock.Encode(format, samples)

	var c mock.Codec
	assert.True(t, c.Recognise(data[:16]))
	assert.False(t, c.Recognise([]byte("RIFF....WAVE")))
	_, ok := c.SeekOffset(1)
	assert.False(t, ok, "seek before initialise")

	info, err := c.StreamInitialise(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, format, info.PcmFormat)
	assert.True(t, info.Seekable)

	buf := make([]int, 4)
	var decoded []int
	for {
		n, err := c.Decode(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		decoded = append(decoded, buf[:n]...)
	}
	assert.Equal(t, samples, decoded)

	offset, ok := c.SeekOffset(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(len(data)-8), offset)
}

func TestProtocol(t *testing.T) {
	data := []byte("0123456789")
	p := mock.Protocol{ChunkSize: 4}
	p.Add("mem://a", data)

	var s mock.Supply
	s.Seek(2, 7, 1)
	res := p.Stream(context.Background(), "mem://a", &s)
	assert.Equal(t, playout.StreamSuccess, res)
	assert.Equal(t, "0123"+"2345"+"6789", string(s.Data()))
	assert.Equal(t, []uint32{7}, s.Flushes())
	assert.Equal(t, []string{"mem://a"}, s.Streams())
	assert.Equal(t, []string{"mem://a"}, p.Started())

	res = p.Stream(context.Background(), "mem://b", &s)
	assert.Equal(t, playout.StreamNotSupported, res)
}

func TestProtocolBlock(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := mock.Protocol{ChunkSize: 4, Block: true}
	p.Add("mem://a", []byte("0123456789"))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan playout.ProtocolStreamResult)
	var s mock.Supply
	go func() {
		result <- p.Stream(ctx, "mem://a", &s)
	}()
	cancel()
	assert.Equal(t, playout.StreamStopped, <-result)
	assert.Equal(t, "0123", string(s.Data()))

	released := &mock.Supply{}
	go func() {
		result <- p.Stream(context.Background(), "mem://a", released)
	}()
	assert.Eventually(t, func() bool { return len(released.Data()) == 4 }, time.Second, time.Millisecond)
	p.Release()
	assert.Equal(t, playout.StreamSuccess, <-result)
	assert.Equal(t, "0123456789", string(released.Data()))
}
