package playout

type delayState int

const (
	delayStarting delayState = iota
	delayRunning
	delayRampingDown
	delayAdjusting
	delayRampingUp
)

func (s delayState) String() string {
	switch s {
	case delayStarting:
		return "starting"
	case delayRunning:
		return "running"
	case delayRampingDown:
		return "ramping down"
	case delayAdjusting:
		return "adjusting"
	case delayRampingUp:
		return "ramping up"
	}
	return "unknown"
}

// maxSilenceJiffies limits the duration of a single inserted silence.
var maxSilenceJiffies = MsToJiffies(5)

// VariableDelay applies the delay requested by MsgDelay. The part of the
// delay a downstream element already applies is subtracted, the rest is
// limited to max if max is not zero. Changes are made by ramping down,
// inserting silence or dropping audio, then ramping up.
type VariableDelay struct {
	upstream   Element
	factory    *MsgFactory
	downstream uint64
	max        uint64
	duration   uint64

	state  delayState
	ramp   rampState
	queue  pendingQueue
	delay  uint64
	adjust int64
	format PcmFormat
}

// NewVariableDelay creates a VariableDelay. name labels its ramp metrics.
func NewVariableDelay(factory *MsgFactory, upstream Element, name string, downstream, max, duration uint64) *VariableDelay {
	return &VariableDelay{
		upstream:   upstream,
		factory:    factory,
		downstream: downstream,
		max:        max,
		duration:   duration,
		ramp:       newRampState(name),
	}
}

// Delay returns the delay currently targeted.
func (v *VariableDelay) Delay() uint64 { return v.delay }

// Pull implements Element.
func (v *VariableDelay) Pull() Msg {
	for {
		if v.state == delayAdjusting && v.adjust > 0 && v.format.SampleRate != 0 {
			return v.silence()
		}
		m := v.queue.next(v.upstream)
		if m = v.process(m); m != nil {
			return m
		}
	}
}

func (v *VariableDelay) target(requested uint64) uint64 {
	var t uint64
	if requested > v.downstream {
		t = requested - v.downstream
	}
	if v.max != 0 && t > v.max {
		t = v.max
	}
	return t
}

func (v *VariableDelay) process(m Msg) Msg {
	switch msg := m.(type) {
	case *MsgMode:
		v.state = delayStarting
		v.ramp.reset(RampMax)
		v.delay, v.adjust = 0, 0
	case *MsgDelay:
		v.setDelay(v.target(msg.Jiffies))
	case *MsgDecodedStream:
		v.format = msg.Info.PcmFormat
	case *MsgHalt:
		if v.state == delayRampingDown {
			v.ramp.reset(RampMin)
			v.state = delayAdjusting
		}
	case *MsgAudioPcm, *MsgSilence:
		a, _ := isAudio(msg)
		return v.processAudio(a)
	}
	return m
}

func (v *VariableDelay) setDelay(t uint64) {
	if t == v.delay {
		return
	}
	v.adjust += int64(t) - int64(v.delay)
	v.delay = t
	switch v.state {
	case delayStarting:
		if v.adjust < 0 {
			v.adjust = 0
		}
	case delayRunning:
		v.state = delayRampingDown
		v.ramp.start(RampDown, v.duration)
	case delayRampingUp:
		v.state = delayRampingDown
		v.ramp.reverse(RampDown, v.duration)
		if v.ramp.done() {
			v.state = delayAdjusting
		}
	}
	if v.adjust == 0 && v.state == delayAdjusting {
		v.finishAdjust()
	}
}

func (v *VariableDelay) processAudio(a MsgAudio) Msg {
	switch v.state {
	case delayStarting:
		v.format = a.Format()
		if v.adjust > 0 {
			v.queue.EnqueueAtHead(a)
			v.state = delayAdjusting
			return nil
		}
		v.state = delayRunning
	case delayRampingDown:
		if split := v.ramp.apply(a); split != nil {
			v.queue.EnqueueAtHead(split)
		}
		if v.ramp.done() {
			v.state = delayAdjusting
			if v.adjust == 0 {
				v.finishAdjust()
			}
		}
	case delayAdjusting:
		if v.adjust > 0 {
			v.queue.EnqueueAtHead(a)
			return nil
		}
		return v.dropAudio(a)
	case delayRampingUp:
		if split := v.ramp.apply(a); split != nil {
			v.queue.EnqueueAtHead(split)
		}
		if v.ramp.done() {
			v.state = delayRunning
		}
	}
	return a
}

// dropAudio shortens the delay by discarding audio.
func (v *VariableDelay) dropAudio(a MsgAudio) Msg {
	need := uint64(-v.adjust)
	if a.Jiffies() <= need {
		v.adjust += int64(a.Jiffies())
		a.RemoveRef()
		if v.adjust == 0 {
			v.finishAdjust()
		}
		return nil
	}
	tail := a.Split(need)
	if tail == nil {
		v.adjust = 0
		a.RemoveRef()
		v.finishAdjust()
		return nil
	}
	v.adjust += int64(a.Jiffies())
	a.RemoveRef()
	if v.adjust >= 0 {
		v.adjust = 0
	}
	v.finishAdjust()
	v.queue.EnqueueAtHead(tail)
	return nil
}

func (v *VariableDelay) silence() Msg {
	s := v.factory.CreateSilence(min(uint64(v.adjust), maxSilenceJiffies), v.format)
	v.adjust -= int64(s.Jiffies())
	if v.adjust <= 0 {
		v.adjust = 0
		v.finishAdjust()
	}
	return s
}

func (v *VariableDelay) finishAdjust() {
	if v.ramp.position == RampMax {
		v.state = delayRunning
		return
	}
	v.state = delayRampingUp
	v.ramp.start(RampUp, v.duration)
}
