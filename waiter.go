package playout

import (
	"sync"
)

type waiterState int

const (
	waiterRunning waiterState = iota
	waiterRampingDown
	waiterFlushing
	waiterRampingUp
)

// Waiter handles expected gaps in a stream, e.g. a sender changing format.
// Wait ramps down and discards until the source's flush, the MsgWait that
// follows is reported to the observer until audio resumes.
type Waiter struct {
	upstream Element
	observer WaiterObserver
	duration uint64

	m       sync.Mutex
	state   waiterState
	ramp    rampState
	queue   pendingQueue
	flushID uint32
	waiting bool
}

// NewWaiter creates a Waiter ramping over duration jiffies.
func NewWaiter(upstream Element, observer WaiterObserver, duration uint64) *Waiter {
	if observer == nil {
		observer = nullObserver{}
	}
	return &Waiter{
		upstream: upstream,
		observer: observer,
		duration: duration,
		ramp:     newRampState("waiter"),
	}
}

// Wait discards data until Flush(flushID), ramping down first if rampDown
// is set.
func (w *Waiter) Wait(flushID uint32, rampDown bool) {
	w.m.Lock()
	defer w.m.Unlock()
	w.flushID = flushID
	switch {
	case rampDown && w.state == waiterRunning:
		w.state = waiterRampingDown
		w.ramp.start(RampDown, w.duration)
	case rampDown && w.state == waiterRampingUp:
		w.state = waiterRampingDown
		w.ramp.reverse(RampDown, w.duration)
		if w.ramp.done() {
			w.state = waiterFlushing
		}
	case w.state != waiterRampingDown:
		w.state = waiterFlushing
	}
}

// Pull implements Element.
func (w *Waiter) Pull() Msg {
	for {
		m := w.queue.next(w.upstream)
		w.m.Lock()
		m, notify := w.process(m)
		w.m.Unlock()
		if notify != nil {
			notify()
		}
		if m != nil {
			return m
		}
	}
}

func (w *Waiter) endWait() func() {
	if !w.waiting {
		return nil
	}
	w.waiting = false
	return func() { w.observer.NotifyPipelineWaiting(false) }
}

func (w *Waiter) process(m Msg) (Msg, func()) {
	switch msg := m.(type) {
	case *MsgTrack, *MsgEncodedStream:
		w.state = waiterRunning
		w.ramp.reset(RampMax)
		w.flushID = FlushIDInvalid
		return m, w.endWait()
	case *MsgFlush:
		if w.flushID != FlushIDInvalid && msg.ID == w.flushID {
			w.flushID = FlushIDInvalid
			if w.ramp.position < RampMax {
				w.state = waiterRampingUp
				w.ramp.start(RampUp, w.duration)
			} else {
				w.state = waiterRunning
			}
			return drop(m), nil
		}
	case *MsgWait:
		if w.waiting {
			return m, nil
		}
		w.waiting = true
		return m, func() { w.observer.NotifyPipelineWaiting(true) }
	case *MsgHalt:
		if w.state == waiterRampingDown {
			w.ramp.reset(RampMin)
			w.state = waiterFlushing
		}
	case *MsgMetaText:
		if w.state == waiterFlushing {
			return drop(m), nil
		}
	case *MsgAudioPcm, *MsgSilence:
		a, _ := isAudio(msg)
		switch w.state {
		case waiterFlushing:
			return drop(m), nil
		case waiterRampingDown:
			if split := w.ramp.apply(a); split != nil {
				split.RemoveRef()
			}
			if w.ramp.done() {
				w.state = waiterFlushing
			}
		case waiterRampingUp:
			if split := w.ramp.apply(a); split != nil {
				w.queue.EnqueueAtHead(split)
			}
			if w.ramp.done() {
				w.state = waiterRunning
			}
		}
		return m, w.endWait()
	}
	return m, nil
}
