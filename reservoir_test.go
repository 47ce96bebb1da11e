package playout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodedReservoir(t *testing.T) {
	f := newTestFactory()
	r := NewDecodedReservoir(40*jps, 2)
	assert.True(t, r.PullWouldBlock())

	r.Push(decodedStream(f, 1, 1, nil))
	r.Push(pcm(f, 20, 100))
	r.Push(f.CreateMetaText("text"))
	assert.False(t, r.PushWouldBlock())
	r.Push(pcm(f, 20, 100))
	assert.True(t, r.PushWouldBlock(), "full by jiffies")
	assert.Equal(t, uint64(40*jps), r.Size())
	assert.Equal(t, 1, r.Streams())
	assert.Equal(t, 4, r.Len())

	assert.Equal(t, []Kind{KindDecodedStream, KindAudioPcm}, pullKinds(r, 2))
	assert.Equal(t, uint64(20*jps), r.Size())
	assert.Zero(t, r.Streams())

	r.Push(decodedStream(f, 1, 2, nil))
	r.Push(decodedStream(f, 1, 3, nil))
	assert.True(t, r.PushWouldBlock(), "full by streams")

	assert.Equal(t, 2, r.Purge(keepControl))
	assert.Zero(t, r.Size())
	assert.Equal(t, 2, r.Len())

	r.Block()
	assert.True(t, r.PullWouldBlock())
	r.Unblock()
	assert.Equal(t, []Kind{KindDecodedStream, KindDecodedStream}, pullKinds(r, 2))
	assertReleased(t, f)
}

func TestEncodedReservoir(t *testing.T) {
	f := newTestFactory()
	r := NewEncodedReservoir(100, 4)
	assert.Equal(t, uint64(100), r.Capacity())

	m, n := f.CreateAudioEncoded(make([]byte, 150))
	assert.Equal(t, 150, n)
	r.Push(m)
	assert.Equal(t, uint64(150), r.Size(), "message larger than capacity is admitted")
	assert.True(t, r.PushWouldBlock())

	pulled := make(chan struct{})
	go func() {
		r.Push(f.CreateHalt(HaltIDNone))
		close(pulled)
	}()
	assert.Equal(t, []Kind{KindAudioEncoded}, pullKinds(r, 1))
	<-pulled
	assert.Equal(t, []Kind{KindHalt}, pullKinds(r, 1))
	assertReleased(t, f)
}
