package playout

// TrackInspector reports whether tracks manage to play. A track plays once
// its first audio passes, it fails if the next track starts before that.
type TrackInspector struct {
	upstream  Element
	observers []TrackObserver

	track   Track
	pending bool
	// live streams never report failure, they may legitimately be silent.
	live bool
}

// NewTrackInspector creates a TrackInspector.
func NewTrackInspector(upstream Element) *TrackInspector {
	return &TrackInspector{upstream: upstream}
}

// AddObserver registers o. Must be called before the pipeline runs.
func (t *TrackInspector) AddObserver(o TrackObserver) {
	t.observers = append(t.observers, o)
}

// Pull implements Element.
func (t *TrackInspector) Pull() Msg {
	m := t.upstream.Pull()
	switch msg := m.(type) {
	case *MsgTrack:
		if !t.live {
			t.fail()
		}
		t.track = msg.Track
		t.pending = true
		t.live = false
	case *MsgEncodedStream:
		t.live = msg.Live
	case *MsgDecodedStream:
		t.live = t.live || msg.Info.Live
	case *MsgQuit:
		if !t.live {
			t.fail()
		}
	case *MsgAudioPcm:
		if t.pending {
			t.pending = false
			for _, o := range t.observers {
				o.NotifyTrackPlay(t.track)
			}
		}
	}
	return m
}

func (t *TrackInspector) fail() {
	if !t.pending {
		return
	}
	t.pending = false
	for _, o := range t.observers {
		o.NotifyTrackFail(t.track)
	}
}
