package playout

import (
	"sync"

	"pipelined.dev/playout/metric"
)

type starvationState int

const (
	starvationBuffering starvationState = iota
	starvationRunning
	starvationRampingDown
	starvationRampingUp
)

var starvationStates = []string{"buffering", "running", "ramping down", "ramping up"}

func (s starvationState) String() string {
	return starvationStates[s]
}

// StarvationMonitor is the last buffer before the driver. It ramps audio
// down when the buffer is about to run dry without a planned halt, and
// holds audio back until gorgeSize is buffered again before ramping up.
//
// A goroutine started with Run pulls from upstream and enqueues, the
// driver side calls Pull.
type StarvationMonitor struct {
	upstream  Element
	factory   *MsgFactory
	observer  StarvationObserver
	normalMax uint64
	threshold uint64
	gorge     uint64
	rampUp    uint64
	gauges    metric.Gauges

	m        sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	q        sizedQueue
	state    starvationState
	ramp     rampState
	// planned is set while buffering was caused by a halt, not by
	// starvation.
	planned bool
	// halts counts queued halts.
	halts       int
	haltEmitted bool
	quit        bool
	events      []func()

	mode     string
	trackID  uint32
	streamID uint32
	handler  StreamHandler
}

// NewStarvationMonitor creates a StarvationMonitor. Sizes are in jiffies
// and must satisfy threshold < normalMax < gorge and rampUp < gorge.
func NewStarvationMonitor(factory *MsgFactory, upstream Element, observer StarvationObserver,
	normalMax, threshold, gorge, rampUp uint64) (*StarvationMonitor, error) {
	if err := validateStarvation(threshold, normalMax, gorge, rampUp); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = nullObserver{}
	}
	s := &StarvationMonitor{
		upstream:  upstream,
		factory:   factory,
		observer:  observer,
		normalMax: normalMax,
		threshold: threshold,
		gorge:     gorge,
		rampUp:    rampUp,
		gauges:    metric.Reservoir("starvation"),
		q:         sizedQueue{size: jiffiesSize},
		state:     starvationBuffering,
		ramp:      newRampState("starvation"),
		planned:   true,
		handler:   nullHandler{},
	}
	s.notFull = sync.NewCond(&s.m)
	s.notEmpty = sync.NewCond(&s.m)
	return s, nil
}

// Run pulls from upstream until Quit is enqueued.
func (s *StarvationMonitor) Run() error {
	for {
		m := s.upstream.Pull()
		_, quit := m.(*MsgQuit)
		s.Enqueue(m)
		if quit {
			return nil
		}
	}
}

// State returns the state name.
func (s *StarvationMonitor) State() string {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state.String()
}

// Jiffies returns buffered audio.
func (s *StarvationMonitor) Jiffies() uint64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.q.total
}

// Enqueue adds m, then blocks while the buffer is full. m is queued before
// the check, so a message larger than the buffer can't deadlock.
func (s *StarvationMonitor) Enqueue(m Msg) {
	s.m.Lock()
	s.q.Enqueue(m)
	switch m.(type) {
	case *MsgHalt:
		s.halts++
		if s.state == starvationBuffering && s.q.total > 0 {
			s.leaveBuffering()
		}
	case *MsgQuit:
		s.quit = true
		if s.state == starvationBuffering {
			s.state = starvationRunning
			s.ramp.reset(RampMax)
		}
	}
	if s.state == starvationBuffering && s.q.total >= s.gorge {
		s.leaveBuffering()
	}
	s.gauges.Set(s.q.total, s.q.streams)
	s.notEmpty.Broadcast()
	events := s.takeEvents()
	s.m.Unlock()
	runEvents(events)

	s.m.Lock()
	defer s.m.Unlock()
	for !s.quit && s.full() {
		s.notFull.Wait()
	}
}

func (s *StarvationMonitor) full() bool {
	if s.state == starvationBuffering {
		return s.q.total >= s.gorge
	}
	return s.q.total >= s.normalMax
}

// leaveBuffering starts delivering audio. Audio ramped down by starvation
// is ramped up, a planned halt left the gain at max.
func (s *StarvationMonitor) leaveBuffering() {
	if s.ramp.position == RampMax {
		s.state = starvationRunning
	} else {
		invariant(s.ramp.position == RampMin, "starvation monitor buffering at ramp %d", s.ramp.position)
		s.state = starvationRampingUp
		s.ramp.start(RampUp, s.rampUp)
	}
	if !s.planned {
		s.post(func() {
			metric.Buffering(false)
			s.observer.NotifyStarvationMonitorBuffering(false)
		})
	}
	s.planned = false
	s.haltEmitted = false
}

func (s *StarvationMonitor) canPull() bool {
	if s.q.Empty() {
		return false
	}
	if s.state != starvationBuffering || s.quit {
		return true
	}
	return s.q.total == 0 && (s.planned || s.halts > 0)
}

// starving reports if a halt must be synthesized: the buffer ran dry and
// no halt explains it.
func (s *StarvationMonitor) starving() bool {
	return s.state == starvationBuffering && s.q.total == 0 && !s.planned &&
		s.halts == 0 && !s.haltEmitted && !s.quit
}

// Pull implements Element.
func (s *StarvationMonitor) Pull() Msg {
	s.m.Lock()
	for !s.canPull() {
		if s.starving() {
			s.haltEmitted = true
			s.m.Unlock()
			metric.Halt("starvation")
			return s.factory.CreateHalt(HaltIDNone)
		}
		s.notEmpty.Wait()
	}
	m := s.q.Dequeue()
	switch msg := m.(type) {
	case *MsgMode:
		s.mode = msg.Mode
	case *MsgDecodedStream:
		s.trackID, s.streamID = msg.Info.TrackID, msg.Info.StreamID
		s.handler = handlerOrNull(msg.Info.Handler)
	case *MsgHalt:
		s.halts--
		if s.q.total == 0 && s.state != starvationBuffering {
			s.state = starvationBuffering
			s.planned = true
			s.ramp.reset(RampMax)
		}
	case *MsgAudioPcm, *MsgSilence:
		a, _ := isAudio(msg)
		s.processAudio(a)
	}
	s.gauges.Set(s.q.total, s.q.streams)
	s.notFull.Broadcast()
	events := s.takeEvents()
	s.m.Unlock()
	runEvents(events)
	return m
}

func (s *StarvationMonitor) processAudio(a MsgAudio) {
	if s.quit {
		return
	}
	invariant(s.state != starvationBuffering, "starvation monitor delivered audio while buffering")
	remaining := s.q.total
	if s.state == starvationRunning && s.halts == 0 && remaining < s.threshold {
		invariant(s.ramp.position == RampMax, "starvation ramp down from %d", s.ramp.position)
		s.state = starvationRampingDown
		s.ramp.start(RampDown, remaining+a.Jiffies())
		metric.Starvation()
	}
	switch s.state {
	case starvationRampingDown:
		if split := s.ramp.apply(a); split != nil {
			s.q.EnqueueAtHead(split)
		}
		if s.ramp.position == RampMin {
			s.state = starvationBuffering
			s.planned = false
			mode, trackID, streamID, handler := s.mode, s.trackID, s.streamID, s.handler
			s.post(func() {
				metric.Buffering(true)
				s.observer.NotifyStarvationMonitorBuffering(true)
				handler.NotifyStarving(mode, trackID, streamID)
			})
		}
	case starvationRampingUp:
		if split := s.ramp.apply(a); split != nil {
			s.q.EnqueueAtHead(split)
		}
		if s.ramp.position == RampMax {
			s.state = starvationRunning
		}
	}
}

// EnqueueWouldBlock reports if Enqueue would block now.
func (s *StarvationMonitor) EnqueueWouldBlock() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.full()
}

// PullWouldBlock reports if Pull would block now.
func (s *StarvationMonitor) PullWouldBlock() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return !s.canPull() && !s.starving()
}

// post queues a notification to run once the lock is released.
func (s *StarvationMonitor) post(f func()) {
	s.events = append(s.events, f)
}

func (s *StarvationMonitor) takeEvents() []func() {
	e := s.events
	s.events = nil
	return e
}

func runEvents(events []func()) {
	for _, f := range events {
		f()
	}
}
