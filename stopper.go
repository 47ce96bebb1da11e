package playout

import (
	"sync"

	"pipelined.dev/playout/metric"
)

type stopperState int

const (
	stopperRunning stopperState = iota
	stopperRampingDown
	stopperRampingUp
	stopperPaused
	stopperStopped
)

func (s stopperState) String() string {
	switch s {
	case stopperRunning:
		return "running"
	case stopperRampingDown:
		return "ramping down"
	case stopperRampingUp:
		return "ramping up"
	case stopperPaused:
		return "paused"
	case stopperStopped:
		return "stopped"
	}
	return "unknown"
}

// Stopper is the play/pause/stop state machine. It is the only element
// that holds the pipeline halted: Pull blocks while paused or stopped.
type Stopper struct {
	upstream Element
	factory  *MsgFactory
	observer StopperObserver
	duration uint64

	m      sync.Mutex
	resume *sync.Cond
	state  stopperState
	// target is the state to enter when a ramp down completes.
	target stopperState
	ramp   rampState
	queue  pendingQueue

	haltPending bool
	haltID      uint32
	notify      func()

	trackID  uint32
	streamID uint32
	handler  StreamHandler
	// checked is set once OkToPlay was asked for the current stream.
	checked bool
	// discarding drops the rest of a stream refused by OkToPlay.
	discarding bool
	// flushing drops data of a stopped stream until flushID or a new
	// stream.
	flushing bool
	flushID  uint32
	quit     bool
}

// NewStopper creates a Stopper which ramps over duration jiffies.
func NewStopper(factory *MsgFactory, upstream Element, observer StopperObserver, duration uint64) *Stopper {
	if observer == nil {
		observer = nullObserver{}
	}
	s := &Stopper{
		upstream: upstream,
		factory:  factory,
		observer: observer,
		duration: duration,
		state:    stopperStopped,
		ramp:     newRampState("stopper"),
		handler:  nullHandler{},
	}
	s.resume = sync.NewCond(&s.m)
	return s
}

// Play starts or resumes playback. A ramp down in progress is reversed
// from its current position.
func (s *Stopper) Play() {
	s.m.Lock()
	defer s.m.Unlock()
	switch s.state {
	case stopperRampingDown:
		s.state = stopperRampingUp
		s.ramp.reverse(RampUp, s.duration)
		if s.ramp.done() {
			s.state = stopperRunning
			s.ramp.reset(RampMax)
		}
	case stopperPaused, stopperStopped:
		if s.ramp.position < RampMax {
			s.state = stopperRampingUp
			s.ramp.start(RampUp, s.duration)
		} else {
			s.state = stopperRunning
		}
		s.resume.Broadcast()
	}
}

// BeginPause ramps down and then holds the pipeline paused.
func (s *Stopper) BeginPause() {
	s.m.Lock()
	defer s.m.Unlock()
	s.beginHalt(stopperPaused, HaltIDNone)
}

// BeginStop ramps down, stops the current stream and holds the pipeline
// stopped. The halt emitted when the ramp completes carries haltID.
func (s *Stopper) BeginStop(haltID uint32) {
	s.m.Lock()
	defer s.m.Unlock()
	s.beginHalt(stopperStopped, haltID)
}

// StopNow stops without ramping, the pipeline is assumed silent.
func (s *Stopper) StopNow(haltID uint32) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.state == stopperStopped {
		s.emitHalt(haltID, nil)
		return
	}
	s.ramp.reset(RampMin)
	s.enter(stopperStopped, haltID)
}

// Quit lets all messages through so that Quit reaches the driver.
func (s *Stopper) Quit() {
	s.m.Lock()
	defer s.m.Unlock()
	s.quit = true
	s.resume.Broadcast()
}

// State returns the state name, used by tests and logs.
func (s *Stopper) State() string {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state.String()
}

func (s *Stopper) beginHalt(target stopperState, haltID uint32) {
	switch s.state {
	case stopperRunning:
		s.state, s.target, s.haltID = stopperRampingDown, target, haltID
		s.ramp.start(RampDown, s.duration)
	case stopperRampingUp:
		s.state, s.target, s.haltID = stopperRampingDown, target, haltID
		s.ramp.reverse(RampDown, s.duration)
		if s.ramp.done() {
			s.enter(target, haltID)
		}
	case stopperRampingDown:
		// a pause in progress is upgraded to stop, not the other way
		if target == stopperStopped {
			s.target, s.haltID = target, haltID
		}
	case stopperPaused:
		if target == stopperStopped {
			s.enter(target, haltID)
		}
	case stopperStopped:
		if target == stopperStopped && haltID != HaltIDNone {
			s.emitHalt(haltID, nil)
		}
	}
}

// enter completes a transition to paused or stopped. Must be called with
// the lock held.
func (s *Stopper) enter(target stopperState, haltID uint32) {
	s.state = target
	notify := s.observer.NotifyPaused
	if target == stopperStopped {
		notify = s.observer.NotifyStopped
		s.stopStream()
	}
	s.emitHalt(haltID, notify)
}

func (s *Stopper) emitHalt(haltID uint32, notify func()) {
	s.haltPending = true
	s.haltID = haltID
	s.notify = notify
	s.resume.Broadcast()
}

// stopStream asks the stream handler to stop. Queued data of the stream
// is dropped, the rest is discarded until its flush.
func (s *Stopper) stopStream() {
	s.queue.Clear()
	s.flushID = s.handler.TryStop(s.trackID, s.streamID)
	s.flushing = true
}

// Pull implements Element.
func (s *Stopper) Pull() Msg {
	for {
		s.m.Lock()
		if s.haltPending {
			s.haltPending = false
			h := s.factory.CreateHalt(s.haltID)
			notify := s.notify
			s.haltID, s.notify = HaltIDNone, nil
			s.m.Unlock()
			metric.Halt("stopper")
			if notify != nil {
				notify()
			}
			return h
		}
		for (s.state == stopperPaused || s.state == stopperStopped) && !s.quit && !s.haltPending {
			s.resume.Wait()
		}
		if s.haltPending {
			s.m.Unlock()
			continue
		}
		// the pending queue is cleared by stopStream on the control
		// thread, it's only touched with the lock held
		m := s.queue.Dequeue()
		s.m.Unlock()
		if m == nil {
			m = s.upstream.Pull()
		}

		s.m.Lock()
		m = s.process(m)
		s.m.Unlock()
		if m != nil {
			return m
		}
	}
}

func (s *Stopper) process(m Msg) Msg {
	if s.state == stopperRampingDown {
		switch m.(type) {
		case *MsgTrack, *MsgEncodedStream, *MsgDecodedStream, *MsgHalt:
			return s.haltAtBoundary(m)
		}
	}
	switch msg := m.(type) {
	case *MsgTrack:
		s.flushing = false
		s.discarding = false
		return m
	case *MsgEncodedStream:
		s.flushing = false
		s.discarding = false
		s.checked = false
		s.trackID, s.streamID = msg.TrackID, msg.StreamID
		s.handler = handlerOrNull(msg.Handler)
		msg.RemoveRef()
		return nil
	case *MsgDecodedStream:
		if s.flushing || s.discarding {
			msg.RemoveRef()
			return nil
		}
		s.trackID, s.streamID = msg.Info.TrackID, msg.Info.StreamID
		if msg.Info.Handler != nil {
			s.handler = msg.Info.Handler
		}
		if s.checked {
			return m
		}
		s.checked = true
		switch s.handler.OkToPlay(s.trackID, s.streamID) {
		case PlayNo:
			s.discarding = true
			msg.RemoveRef()
			metric.Halt("stopper")
			return s.factory.CreateHalt(HaltIDNone)
		case PlayLater:
			s.state = stopperStopped
			s.emitHalt(HaltIDNone, s.observer.NotifyStopped)
		}
		return m
	case *MsgFlush:
		if s.flushing && msg.ID == s.flushID {
			s.flushing = false
			msg.RemoveRef()
			return nil
		}
		return m
	case *MsgHalt, *MsgWait, *MsgQuit:
		return m
	case *MsgAudioPcm, *MsgSilence:
		if s.flushing || s.discarding {
			msg.RemoveRef()
			return nil
		}
		a, _ := isAudio(msg)
		return s.processAudio(a)
	}
	if s.flushing || s.discarding {
		m.RemoveRef()
		return nil
	}
	return m
}

func (s *Stopper) processAudio(a MsgAudio) Msg {
	switch s.state {
	case stopperRampingDown:
		if split := s.ramp.apply(a); split != nil {
			s.queue.EnqueueAtHead(split)
		}
		if s.ramp.done() {
			s.enter(s.target, s.haltID)
		}
	case stopperRampingUp:
		if split := s.ramp.apply(a); split != nil {
			s.queue.EnqueueAtHead(split)
		}
		if s.ramp.done() {
			s.state = stopperRunning
		}
	}
	return a
}

// haltAtBoundary completes a ramp down early when the stream ends before
// the ramp does. m is processed again after the halt.
func (s *Stopper) haltAtBoundary(m Msg) Msg {
	s.ramp.reset(RampMin)
	s.enter(s.target, s.haltID)
	s.queue.EnqueueAtHead(m)
	return nil
}
