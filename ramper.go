package playout

import (
	"pipelined.dev/playout/metric"
)

// rampState is a ramp run by an element. It is owned by the thread which
// pulls through the element.
type rampState struct {
	element   string
	position  uint32
	remaining uint64
	duration  uint64
	direction RampDirection
}

func newRampState(element string) rampState {
	return rampState{element: element, position: RampMax}
}

// start begins a ramp in dir over duration jiffies from the current
// position.
func (r *rampState) start(dir RampDirection, duration uint64) {
	r.direction = dir
	r.duration = duration
	r.remaining = duration
	metric.Ramp(r.element, dir.String())
}

// reverse turns the ramp around at the current position. The new ramp
// moves at the rate of a ramp over the whole range in full jiffies, so a
// reversal of a ramp started at an end point takes as long as that ramp
// has run. It's zero length only if the position already is the end
// point of dir.
func (r *rampState) reverse(dir RampDirection, full uint64) {
	distance := uint64(r.position - RampMin)
	if dir == RampUp {
		distance = uint64(RampMax - r.position)
	}
	r.start(dir, muldivCeil(full, distance, uint64(RampMax-RampMin)))
}

// consumed returns jiffies ramped so far.
func (r *rampState) consumed() uint64 {
	return r.duration - r.remaining
}

// apply ramps m and returns the unramped remainder if m was split.
func (r *rampState) apply(m MsgAudio) MsgAudio {
	if r.remaining == 0 {
		return nil
	}
	end, split := m.SetRamp(r.position, &r.remaining, r.direction)
	r.position = end
	return split
}

// done reports if the ramp has run its full duration.
func (r *rampState) done() bool {
	return r.remaining == 0
}

// reset ends any ramp, position is set to p.
func (r *rampState) reset(p uint32) {
	r.position = p
	r.remaining = 0
	r.duration = 0
	r.direction = RampNone
}

func isAudio(m Msg) (MsgAudio, bool) {
	switch a := m.(type) {
	case *MsgAudioPcm:
		return a, true
	case *MsgSilence:
		return a, true
	}
	return nil, false
}

// Ramper ramps up the start of streams that do not begin at their first
// sample, i.e. live streams and streams restarted at an offset.
type Ramper struct {
	upstream Element
	duration uint64
	ramp     rampState
	queue    pendingQueue
	ramping  bool
}

// NewRamper creates a Ramper with ramp duration in jiffies.
func NewRamper(upstream Element, duration uint64) *Ramper {
	return &Ramper{
		upstream: upstream,
		duration: duration,
		ramp:     newRampState("ramper"),
	}
}

// Pull implements Element.
func (r *Ramper) Pull() Msg {
	m := r.queue.next(r.upstream)
	switch msg := m.(type) {
	case *MsgDecodedStream:
		if msg.Info.SampleStart != 0 || msg.Info.Live {
			r.ramping = true
			r.ramp.reset(RampMin)
			r.ramp.start(RampUp, r.duration)
		} else {
			r.ramping = false
			r.ramp.reset(RampMax)
		}
	case *MsgHalt:
		r.ramping = false
		r.ramp.reset(RampMax)
	case *MsgAudioPcm, *MsgSilence:
		if r.ramping {
			a, _ := isAudio(msg)
			if split := r.ramp.apply(a); split != nil {
				r.queue.EnqueueAtHead(split)
			}
			if r.ramp.done() {
				r.ramping = false
			}
		}
	}
	return m
}
