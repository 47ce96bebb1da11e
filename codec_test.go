package playout

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/playout/log"
)

// byteCodec decodes "TCOD" followed by one signed byte per sample of
// testFormat.
type byteCodec struct {
	r   io.Reader
	tmp []byte
}

func (*byteCodec) Name() string { return "TCOD" }

func (*byteCodec) Recognise(header []byte) bool {
	return bytes.HasPrefix(header, []byte("TCOD"))
}

func (c *byteCodec) StreamInitialise(r io.Reader) (CodecInfo, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return CodecInfo{}, err
	}
	c.r = r
	return CodecInfo{PcmFormat: testFormat, Seekable: true}, nil
}

func (c *byteCodec) Decode(buf []int) (int, error) {
	if len(c.tmp) < len(buf) {
		c.tmp = make([]byte, len(buf))
	}
	n, err := io.ReadFull(c.r, c.tmp[:len(buf)])
	n -= n % testFormat.Channels
	for i, b := range c.tmp[:n] {
		buf[i] = int(int8(b))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (*byteCodec) SeekOffset(frame uint64) (uint64, bool) {
	return 4 + frame*uint64(testFormat.Channels), true
}

func (c *byteCodec) Resync(r io.Reader) error {
	c.r = r
	return nil
}

func encoded(f *MsgFactory, data []byte) *MsgAudioEncoded {
	m, n := f.CreateAudioEncoded(data)
	if n != len(data) {
		panic("encoded: too many bytes for one message")
	}
	return m
}

func sequence(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i + 1)
	}
	return data
}

func TestCodecControllerDecode(t *testing.T) {
	f := newTestFactory()
	h := &handler{}
	src := newScript(t,
		encodedStream(f, 1, 1, h),
		encoded(f, append([]byte("TCOD"), sequence(20)...)),
		f.CreateMetaText("text"),
		encoded(f, sequence(20)),
		f.CreateTrack(Track{ID: 2}, true),
		f.CreateQuit(),
	)
	out := &collector{}
	c := NewCodecController(f, src, out, log.Silent())
	c.AddCodec(&byteCodec{})
	require.NoError(t, c.Run())

	assert.Equal(t, []Kind{
		KindEncodedStream, KindMetaText, KindDecodedStream, KindAudioPcm, KindTrack, KindQuit,
	}, out.kinds())
	ds := out.msgs[2].(*MsgDecodedStream)
	assert.Equal(t, "TCOD", ds.Info.CodecName)
	assert.Equal(t, testFormat, ds.Info.PcmFormat)
	assert.True(t, ds.Info.Seekable)
	assert.Equal(t, h, ds.Info.Handler)

	a := out.msgs[3].(*MsgAudioPcm)
	assert.Equal(t, 20, a.Frames())
	assert.Equal(t, append(sequence(20), sequence(20)...), samplesToBytes(a.Samples()))
	assert.Zero(t, a.TrackOffset())
	out.release()
	assertReleased(t, f)
}

func samplesToBytes(samples []int) []byte {
	b := make([]byte, len(samples))
	for i, s := range samples {
		b[i] = byte(s)
	}
	return b
}

func TestCodecControllerNotRecognised(t *testing.T) {
	f := newTestFactory()
	h := &handler{}
	src := newScript(t,
		encodedStream(f, 1, 1, h),
		encoded(f, []byte("RIFF....")),
		encoded(f, sequence(10)),
		f.CreateQuit(),
	)
	out := &collector{}
	c := NewCodecController(f, src, out, log.Silent())
	c.AddCodec(&byteCodec{})
	require.NoError(t, c.Run())

	assert.Equal(t, []Kind{KindEncodedStream, KindHalt, KindQuit}, out.kinds())
	assert.Equal(t, 1, h.stops)
	out.release()
	assertReleased(t, f)
}

func TestCodecControllerSeek(t *testing.T) {
	f := newTestFactory()
	h := &handler{seekID: 5}
	src := newFeed()
	out := &collector{}
	c := NewCodecController(f, src, out, log.Silent())
	c.AddCodec(&byteCodec{})

	_, err := c.StartSeek(1, 1, 0)
	assert.ErrorIs(t, err, ErrStreamNotFound, "no stream")

	done := make(chan error)
	go func() {
		done <- c.Run()
	}()
	src.Push(encodedStream(f, 1, 1, h))
	src.Push(encoded(f, append([]byte("TCOD"), sequence(100)...)))
	require.Eventually(t, func() bool {
		return out.len() == 2
	}, time.Second, time.Millisecond)

	_, err = c.StartSeek(1, 2, 0)
	assert.ErrorIs(t, err, ErrStreamNotFound, "other stream")
	id, err := c.StartSeek(1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), id)
	assert.Equal(t, []uint64{4}, h.seeks)

	src.Push(f.CreateFlush(5))
	src.Push(encoded(f, sequence(20)))
	src.Push(f.CreateHalt(HaltIDNone))
	src.Push(f.CreateQuit())
	require.NoError(t, <-done)

	assert.Equal(t, []Kind{
		KindEncodedStream, KindDecodedStream, KindFlush, KindDecodedStream, KindAudioPcm, KindHalt, KindQuit,
	}, out.kinds(), "audio before the seek flush is dropped")
	a := out.msgs[4].(*MsgAudioPcm)
	assert.Equal(t, sequence(20), samplesToBytes(a.Samples()))
	out.release()
	assertReleased(t, f)
}
