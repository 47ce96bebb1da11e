package playout

import (
	"sync"

	"pipelined.dev/playout/log"
)

type seekerState int

const (
	seekerRunning seekerState = iota
	seekerRampingDown
	seekerFlushing
	seekerRampingUp
)

// Seeker moves playback of the current stream to a new position. Audio is
// ramped down, the source restarted through the Seekable and data up to
// the seek flush discarded.
type Seeker struct {
	upstream Element
	seekable Seekable
	duration uint64
	logger   log.Logger

	m        sync.Mutex
	state    seekerState
	ramp     rampState
	queue    pendingQueue
	seconds  uint
	flushID  uint32
	stream   bool
	canSeek  bool
	trackID  uint32
	streamID uint32
}

// NewSeeker creates a Seeker ramping over duration jiffies.
func NewSeeker(upstream Element, seekable Seekable, duration uint64, logger log.Logger) *Seeker {
	return &Seeker{
		upstream: upstream,
		seekable: seekable,
		duration: duration,
		logger:   logger,
		ramp:     newRampState("seeker"),
	}
}

// Seek requests a move to seconds from the start of the track. It returns
// false if the stream is not the one playing or cannot seek.
func (s *Seeker) Seek(trackID, streamID uint32, seconds uint, rampDown bool) bool {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.stream || !s.canSeek || s.trackID != trackID || s.streamID != streamID {
		return false
	}
	s.seconds = seconds
	switch s.state {
	case seekerRampingDown:
		// the running ramp will seek to the new position
	case seekerRunning, seekerRampingUp:
		if rampDown {
			if s.state == seekerRampingUp {
				s.ramp.reverse(RampDown, s.duration)
			} else {
				s.ramp.start(RampDown, s.duration)
			}
			s.state = seekerRampingDown
			if s.ramp.done() {
				s.startSeek()
			}
			break
		}
		s.startSeek()
	case seekerFlushing:
		s.startSeek()
	}
	return true
}

// startSeek restarts the source. A failed seek ramps back up.
func (s *Seeker) startSeek() {
	flushID, err := s.seekable.StartSeek(s.trackID, s.streamID, s.seconds)
	if err != nil {
		s.logger.Warn("seek to ", s.seconds, "s failed: ", err)
		s.rampUp()
		return
	}
	s.state = seekerFlushing
	s.flushID = flushID
}

func (s *Seeker) rampUp() {
	if s.ramp.position == RampMax {
		s.state = seekerRunning
		s.ramp.reset(RampMax)
		return
	}
	s.state = seekerRampingUp
	s.ramp.start(RampUp, s.duration)
}

// Pull implements Element.
func (s *Seeker) Pull() Msg {
	for {
		m := s.queue.next(s.upstream)
		s.m.Lock()
		m = s.process(m)
		s.m.Unlock()
		if m != nil {
			return m
		}
	}
}

func (s *Seeker) process(m Msg) Msg {
	switch msg := m.(type) {
	case *MsgTrack, *MsgEncodedStream:
		s.state = seekerRunning
		s.ramp.reset(RampMax)
		s.stream = false
		s.flushID = FlushIDInvalid
	case *MsgDecodedStream:
		if s.state == seekerFlushing {
			return drop(m)
		}
		s.stream = true
		s.canSeek = msg.Info.Seekable
		s.trackID, s.streamID = msg.Info.TrackID, msg.Info.StreamID
	case *MsgFlush:
		if s.state == seekerFlushing && msg.ID == s.flushID {
			s.flushID = FlushIDInvalid
			s.rampUp()
			return drop(m)
		}
	case *MsgHalt:
		if s.state == seekerRampingDown {
			s.ramp.reset(RampMin)
			s.startSeek()
		}
	case *MsgMetaText:
		if s.state == seekerFlushing {
			return drop(m)
		}
	case *MsgAudioPcm, *MsgSilence:
		a, _ := isAudio(msg)
		switch s.state {
		case seekerFlushing:
			return drop(m)
		case seekerRampingDown:
			if split := s.ramp.apply(a); split != nil {
				split.RemoveRef()
			}
			if s.ramp.done() {
				s.startSeek()
			}
		case seekerRampingUp:
			if split := s.ramp.apply(a); split != nil {
				s.queue.EnqueueAtHead(split)
			}
			if s.ramp.done() {
				s.state = seekerRunning
			}
		}
	}
	return m
}
