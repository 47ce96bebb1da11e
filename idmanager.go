package playout

import (
	"sync"
)

// StreamRemover removes a stream from the pipeline if it is the one
// currently playing.
type StreamRemover interface {
	RemoveStream(trackID, streamID uint32) bool
}

// PlayStatusObserver is told the answer to every OkToPlay.
type PlayStatusObserver interface {
	NotifyStreamPlayStatus(trackID, streamID uint32, status StreamPlay)
}

type idEntry struct {
	trackID  uint32
	streamID uint32
	playNow  bool
}

// IDManager mints track and stream ids and tracks which streams are
// still wanted. Streams are registered when the filler starts them and
// become active when the pipeline asks OkToPlay. Invalidated streams are
// answered PlayNo, or removed from the pipeline if already active.
type IDManager struct {
	remover   StreamRemover
	observers []PlayStatusObserver

	m            sync.Mutex
	active       idEntry
	haveActive   bool
	pending      []idEntry
	nextTrackID  uint32
	nextStreamID uint32
}

// NewIDManager creates an IDManager. remover may be nil in tests.
func NewIDManager(remover StreamRemover) *IDManager {
	return &IDManager{
		remover:      remover,
		nextTrackID:  1,
		nextStreamID: 1,
	}
}

// AddObserver registers o. Must be called before streams are added.
func (i *IDManager) AddObserver(o PlayStatusObserver) {
	i.observers = append(i.observers, o)
}

// NextTrackID mints a track id.
func (i *IDManager) NextTrackID() uint32 {
	i.m.Lock()
	defer i.m.Unlock()
	id := i.nextTrackID
	i.nextTrackID++
	return id
}

// NextStreamID mints a stream id.
func (i *IDManager) NextStreamID() uint32 {
	i.m.Lock()
	defer i.m.Unlock()
	id := i.nextStreamID
	i.nextStreamID++
	return id
}

// AddStream registers a stream the filler has started. playNow false makes
// OkToPlay answer PlayLater.
func (i *IDManager) AddStream(trackID, streamID uint32, playNow bool) {
	i.m.Lock()
	defer i.m.Unlock()
	i.pending = append(i.pending, idEntry{trackID: trackID, streamID: streamID, playNow: playNow})
}

// OkToPlay makes the stream active. Registered streams queued before it
// are dropped, they never reached the pipeline.
func (i *IDManager) OkToPlay(trackID, streamID uint32) StreamPlay {
	status := i.okToPlay(trackID, streamID)
	for _, o := range i.observers {
		o.NotifyStreamPlayStatus(trackID, streamID, status)
	}
	return status
}

func (i *IDManager) okToPlay(trackID, streamID uint32) StreamPlay {
	i.m.Lock()
	defer i.m.Unlock()
	for n, e := range i.pending {
		if e.trackID != trackID || e.streamID != streamID {
			continue
		}
		i.active, i.haveActive = e, true
		i.pending = append(i.pending[:0], i.pending[n+1:]...)
		if e.playNow {
			return PlayYes
		}
		return PlayLater
	}
	return PlayNo
}

// InvalidateAt invalidates all streams of trackID.
func (i *IDManager) InvalidateAt(trackID uint32) {
	i.m.Lock()
	kept := i.pending[:0]
	for _, e := range i.pending {
		if e.trackID != trackID {
			kept = append(kept, e)
		}
	}
	i.pending = kept
	remove, active := i.takeActive(func(e idEntry) bool { return e.trackID == trackID })
	i.m.Unlock()
	if remove {
		i.remove(active)
	}
}

// InvalidateAfter invalidates streams registered after the last stream of
// trackID. Nothing is invalidated if trackID is unknown.
func (i *IDManager) InvalidateAfter(trackID uint32) {
	i.m.Lock()
	defer i.m.Unlock()
	last := -1
	for n, e := range i.pending {
		if e.trackID == trackID {
			last = n
		}
	}
	switch {
	case last >= 0:
		i.pending = i.pending[:last+1]
	case i.haveActive && i.active.trackID == trackID:
		i.pending = i.pending[:0]
	}
}

// InvalidatePending invalidates all streams not yet active.
func (i *IDManager) InvalidatePending() {
	i.m.Lock()
	defer i.m.Unlock()
	i.pending = i.pending[:0]
}

// InvalidateAll invalidates all streams and removes the active one.
func (i *IDManager) InvalidateAll() {
	i.m.Lock()
	i.pending = i.pending[:0]
	remove, active := i.takeActive(func(idEntry) bool { return true })
	i.m.Unlock()
	if remove {
		i.remove(active)
	}
}

func (i *IDManager) takeActive(match func(idEntry) bool) (bool, idEntry) {
	if !i.haveActive || !match(i.active) {
		return false, idEntry{}
	}
	i.haveActive = false
	return true, i.active
}

func (i *IDManager) remove(e idEntry) {
	if i.remover != nil {
		i.remover.RemoveStream(e.trackID, e.streamID)
	}
}
