package playout

import (
	"sync"
)

// Reporter derives playback properties from the messages passing it and
// notifies its observer when they change.
type Reporter struct {
	upstream Element
	observer PropertyObserver

	m        sync.Mutex
	mode     string
	track    Track
	info     DecodedStreamInfo
	seconds  uint
	duration uint
	// reported is false until the first time notification of a stream.
	reported bool
}

// NewReporter creates a Reporter.
func NewReporter(upstream Element, observer PropertyObserver) *Reporter {
	if observer == nil {
		observer = nullObserver{}
	}
	return &Reporter{upstream: upstream, observer: observer}
}

// Mode returns the current mode.
func (r *Reporter) Mode() string {
	r.m.Lock()
	defer r.m.Unlock()
	return r.mode
}

// Track returns the current track.
func (r *Reporter) Track() Track {
	r.m.Lock()
	defer r.m.Unlock()
	return r.track
}

// Seconds returns the playback position in the current track.
func (r *Reporter) Seconds() uint {
	r.m.Lock()
	defer r.m.Unlock()
	return r.seconds
}

// Pull implements Element.
func (r *Reporter) Pull() Msg {
	m := r.upstream.Pull()
	switch msg := m.(type) {
	case *MsgMode:
		r.m.Lock()
		r.mode = msg.Mode
		r.m.Unlock()
		r.observer.NotifyMode(msg.Mode)
	case *MsgTrack:
		r.m.Lock()
		r.track = msg.Track
		mode := r.mode
		r.m.Unlock()
		r.observer.NotifyTrack(msg.Track, mode, msg.StartOfStream)
	case *MsgMetaText:
		r.observer.NotifyMetaText(msg.Text)
	case *MsgDecodedStream:
		r.m.Lock()
		r.info = msg.Info
		r.info.Handler = nil
		r.duration = uint(JiffiesToMs(msg.Info.TrackLength) / 1000)
		r.reported = false
		info := r.info
		r.m.Unlock()
		r.observer.NotifyStreamInfo(info)
	case *MsgAudioPcm:
		r.time(msg.TrackOffset() + msg.Jiffies())
	}
	return m
}

func (r *Reporter) time(offset uint64) {
	seconds := uint(offset / JiffiesPerSecond)
	r.m.Lock()
	if r.reported && seconds == r.seconds {
		r.m.Unlock()
		return
	}
	r.reported = true
	r.seconds = seconds
	duration := r.duration
	r.m.Unlock()
	r.observer.NotifyTime(seconds, duration)
}
