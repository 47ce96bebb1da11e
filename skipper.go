package playout

import (
	"sync"

	"pipelined.dev/playout/metric"
)

type skipperState int

const (
	skipperRunning skipperState = iota
	skipperRampingDown
	skipperDiscarding
)

// Skipper removes the rest of a stream, ramping it down first when audio
// is audible.
type Skipper struct {
	upstream Element
	factory  *MsgFactory
	duration uint64

	m       sync.Mutex
	unblock *sync.Cond
	blocked bool
	state   skipperState
	ramp    rampState
	queue   pendingQueue

	haveStream bool
	trackID    uint32
	streamID   uint32
	handler    StreamHandler
	flushID    uint32

	haltPending bool
	// removeAll discards everything until Halt(haltID).
	removeAll bool
	haltID    uint32
}

// NewSkipper creates a Skipper which ramps down over duration jiffies.
func NewSkipper(factory *MsgFactory, upstream Element, duration uint64) *Skipper {
	s := &Skipper{
		upstream: upstream,
		factory:  factory,
		duration: duration,
		ramp:     newRampState("skipper"),
		handler:  nullHandler{},
		flushID:  FlushIDInvalid,
	}
	s.unblock = sync.NewCond(&s.m)
	return s
}

// RemoveCurrentStream removes the stream currently flowing. With ramp
// false the pipeline is assumed to be silent already.
func (s *Skipper) RemoveCurrentStream(ramp bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.haveStream {
		s.remove(ramp)
	}
}

// TryRemoveStream removes the stream if it is the one currently flowing.
// It returns false and does nothing otherwise.
func (s *Skipper) TryRemoveStream(trackID, streamID uint32, ramp bool) bool {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.haveStream || s.trackID != trackID || s.streamID != streamID {
		return false
	}
	s.remove(ramp)
	return true
}

// RemoveAll removes the current stream and discards every following
// message until Halt(haltID), which is passed on.
func (s *Skipper) RemoveAll(haltID uint32, ramp bool) {
	s.m.Lock()
	defer s.m.Unlock()
	s.removeAll = true
	s.haltID = haltID
	if s.haveStream {
		s.remove(ramp)
		return
	}
	s.state = skipperDiscarding
}

// Block stops Pull until Unblock.
func (s *Skipper) Block() {
	s.m.Lock()
	defer s.m.Unlock()
	s.blocked = true
}

// Unblock resumes Pull.
func (s *Skipper) Unblock() {
	s.m.Lock()
	defer s.m.Unlock()
	s.blocked = false
	s.unblock.Broadcast()
}

func (s *Skipper) remove(ramp bool) {
	if s.state != skipperRunning {
		return
	}
	s.flushID = s.handler.TryStop(s.trackID, s.streamID)
	if ramp {
		s.state = skipperRampingDown
		s.ramp.start(RampDown, s.duration)
		return
	}
	s.state = skipperDiscarding
}

func (s *Skipper) reset() {
	s.state = skipperRunning
	s.ramp.reset(RampMax)
	s.flushID = FlushIDInvalid
	s.haveStream = false
}

// Pull implements Element.
func (s *Skipper) Pull() Msg {
	for {
		s.m.Lock()
		for s.blocked {
			s.unblock.Wait()
		}
		if s.haltPending {
			s.haltPending = false
			s.m.Unlock()
			metric.Halt("skipper")
			return s.factory.CreateHalt(HaltIDNone)
		}
		s.m.Unlock()

		m := s.queue.next(s.upstream)

		s.m.Lock()
		m = s.process(m)
		s.m.Unlock()
		if m != nil {
			return m
		}
	}
}

func drop(m Msg) Msg {
	m.RemoveRef()
	return nil
}

func (s *Skipper) process(m Msg) Msg {
	discarding := s.state == skipperDiscarding
	switch msg := m.(type) {
	case *MsgTrack:
		if s.removeAll {
			return drop(m)
		}
		s.reset()
		return m
	case *MsgEncodedStream:
		if s.removeAll {
			return drop(m)
		}
		s.reset()
		s.haveStream = true
		s.trackID, s.streamID = msg.TrackID, msg.StreamID
		s.handler = handlerOrNull(msg.Handler)
		return m
	case *MsgMode, *MsgSession:
		if s.removeAll {
			return drop(m)
		}
		return m
	case *MsgHalt:
		if s.removeAll {
			if msg.ID != s.haltID {
				return drop(m)
			}
			s.removeAll = false
			s.reset()
			return m
		}
		if s.state == skipperRampingDown {
			s.ramp.reset(RampMin)
			s.state = skipperDiscarding
		}
		return m
	case *MsgFlush:
		if s.flushID != FlushIDInvalid && msg.ID == s.flushID {
			s.flushID = FlushIDInvalid
			return drop(m)
		}
		if s.removeAll {
			return drop(m)
		}
		return m
	case *MsgWait:
		if s.removeAll {
			return drop(m)
		}
		return m
	case *MsgQuit:
		return m
	case *MsgAudioPcm, *MsgSilence:
		if discarding {
			return drop(m)
		}
		if s.state == skipperRampingDown {
			a, _ := isAudio(msg)
			if split := s.ramp.apply(a); split != nil {
				split.RemoveRef()
			}
			if s.ramp.done() {
				s.state = skipperDiscarding
				s.haltPending = true
			}
		}
		return m
	}
	// Delay, MetaText and DecodedStream belong to the stream being removed.
	if discarding || s.removeAll {
		return drop(m)
	}
	return m
}
