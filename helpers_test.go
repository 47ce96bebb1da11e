package playout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = PcmFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}

// jps is jiffies per sample of testFormat.
const jps = JiffiesPerSecond / 44100

// script is an upstream element returning messages in order. Pulling
// past the end fails the test.
type script struct {
	t    *testing.T
	msgs []Msg
}

func newScript(t *testing.T, msgs ...Msg) *script {
	return &script{t: t, msgs: msgs}
}

func (s *script) Pull() Msg {
	require.NotEmpty(s.t, s.msgs, "pulled past end of script")
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m
}

func (s *script) add(msgs ...Msg) {
	s.msgs = append(s.msgs, msgs...)
}

// feed is a thread safe upstream element, Pull blocks while empty.
type feed struct {
	m    sync.Mutex
	cond *sync.Cond
	msgs []Msg
}

func newFeed() *feed {
	f := &feed{}
	f.cond = sync.NewCond(&f.m)
	return f
}

func (f *feed) Push(m Msg) {
	f.m.Lock()
	defer f.m.Unlock()
	f.msgs = append(f.msgs, m)
	f.cond.Broadcast()
}

func (f *feed) Pull() Msg {
	f.m.Lock()
	defer f.m.Unlock()
	for len(f.msgs) == 0 {
		f.cond.Wait()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m
}

// collector is a thread safe Pusher recording messages.
type collector struct {
	m    sync.Mutex
	msgs []Msg
}

func (c *collector) Push(m Msg) {
	c.m.Lock()
	defer c.m.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) kinds() []Kind {
	c.m.Lock()
	defer c.m.Unlock()
	var kinds []Kind
	for _, m := range c.msgs {
		kinds = append(kinds, m.Kind())
	}
	return kinds
}

func (c *collector) len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.msgs)
}

func (c *collector) release() {
	c.m.Lock()
	defer c.m.Unlock()
	for _, m := range c.msgs {
		m.RemoveRef()
	}
	c.msgs = nil
}

func newTestFactory() *MsgFactory {
	return NewMsgFactory(DefaultFactoryConfig())
}

// pcm creates frames of testFormat with all samples set to v.
func pcm(f *MsgFactory, frames int, v int) *MsgAudioPcm {
	samples := make([]int, frames*testFormat.Channels)
	for i := range samples {
		samples[i] = v
	}
	m, n := f.CreateAudioPcm(samples, testFormat, 0)
	if n != len(samples) {
		panic("pcm: too many frames for one message")
	}
	return m
}

func decodedStream(f *MsgFactory, trackID, streamID uint32, h StreamHandler) *MsgDecodedStream {
	return f.CreateDecodedStream(DecodedStreamInfo{
		PcmFormat: testFormat,
		TrackID:   trackID,
		StreamID:  streamID,
		CodecName: "test",
		Seekable:  true,
		Handler:   h,
	})
}

// pullKinds pulls n messages and returns their kinds. Messages are
// released.
func pullKinds(e Element, n int) []Kind {
	kinds := make([]Kind, 0, n)
	for i := 0; i < n; i++ {
		m := e.Pull()
		kinds = append(kinds, m.Kind())
		m.RemoveRef()
	}
	return kinds
}

// assertReleased checks that no messages of the factory leaked.
func assertReleased(t *testing.T, f *MsgFactory) {
	t.Helper()
	for k := KindMode; k <= KindQuit; k <<= 1 {
		assert.Zero(t, f.InUse(k), "%v in use", k)
	}
	assert.Zero(t, f.DecodedAudioInUse(), "decoded audio in use")
}

// handler is a StreamHandler recording calls.
type handler struct {
	m        sync.Mutex
	play     StreamPlay
	seekID   uint32
	stopID   uint32
	oks      int
	seeks    []uint64
	stops    int
	starving int
}

func (h *handler) OkToPlay(uint32, uint32) StreamPlay {
	h.m.Lock()
	defer h.m.Unlock()
	h.oks++
	return h.play
}

func (h *handler) TrySeek(_, _ uint32, offset uint64) uint32 {
	h.m.Lock()
	defer h.m.Unlock()
	h.seeks = append(h.seeks, offset)
	return h.seekID
}

func (h *handler) TryStop(uint32, uint32) uint32 {
	h.m.Lock()
	defer h.m.Unlock()
	h.stops++
	return h.stopID
}

func (h *handler) NotifyStarving(string, uint32, uint32) {
	h.m.Lock()
	defer h.m.Unlock()
	h.starving++
}

// stateRecorder records stopper, waiter and starvation notifications.
type stateRecorder struct {
	nullObserver
	m      sync.Mutex
	events []string
}

func (r *stateRecorder) record(e string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.events = append(r.events, e)
}

func (r *stateRecorder) get() []string {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]string(nil), r.events...)
}

func (r *stateRecorder) NotifyPaused()  { r.record("paused") }
func (r *stateRecorder) NotifyStopped() { r.record("stopped") }
func (r *stateRecorder) NotifyPipelineWaiting(w bool) {
	if w {
		r.record("waiting")
		return
	}
	r.record("not waiting")
}
func (r *stateRecorder) NotifyStarvationMonitorBuffering(b bool) {
	if b {
		r.record("buffering")
		return
	}
	r.record("not buffering")
}
