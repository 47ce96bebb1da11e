package playout

import (
	"math"
	"math/bits"
)

// Ramp positions. Position is linear in time, the audible gain for a
// position comes from gainCurve.
const (
	RampMin uint32 = 0
	RampMax uint32 = 1 << 30
)

// RampDirection of a ramp.
type RampDirection int

// Ramp directions.
const (
	RampNone RampDirection = iota
	RampUp
	RampDown
	RampMute
)

func (d RampDirection) String() string {
	switch d {
	case RampUp:
		return "up"
	case RampDown:
		return "down"
	case RampMute:
		return "mute"
	default:
		return "none"
	}
}

// gainCurve maps ramp positions to 15 bit gain. The curve is
// ((n-i)/n)^2.5, it drops to about -60dB at 15/16 of the ramp and reaches
// silence at the end.
const gainCurveSize = 512

var gainCurve = func() (c [gainCurveSize]uint16) {
	for i := range c {
		c[i] = uint16(math.Round(0x7fff * math.Pow(float64(gainCurveSize-i)/gainCurveSize, 2.5)))
	}
	return
}()

// Gain returns the 15 bit fractional gain for ramp position v.
func Gain(v uint32) uint16 {
	if v >= RampMax {
		return 0x7fff
	}
	i := uint64(RampMax-v) * gainCurveSize / uint64(RampMax)
	if i >= gainCurveSize {
		i = gainCurveSize - 1
	}
	return gainCurve[i]
}

// Ramp annotates an audio message. Position moves linearly from Start to
// End across the message.
type Ramp struct {
	Start     uint32
	End       uint32
	Direction RampDirection
	Enabled   bool
}

// Reset removes the ramp.
func (r *Ramp) Reset() {
	*r = Ramp{}
}

// Set applies a ramp moving from start to end across the message. If the
// message is already ramped, the quieter of the two wins at each end and
// crossing ramps are not split.
func (r *Ramp) Set(start, end uint32) {
	if !r.Enabled {
		r.Start, r.End, r.Enabled = start, end, true
	} else {
		// A chord between the lower endpoints never exceeds either ramp,
		// min of two lines is concave.
		r.Start, r.End = min(r.Start, start), min(r.End, end)
	}
	switch {
	case r.End < r.Start:
		r.Direction = RampDown
	case r.End > r.Start:
		r.Direction = RampUp
	case r.Start == RampMin:
		r.Direction = RampMute
	default:
		r.Direction = RampNone
	}
}

// at returns the position after pos out of total frames.
func (r Ramp) at(pos, total uint64) uint32 {
	if total == 0 {
		return r.End
	}
	if r.End >= r.Start {
		return r.Start + uint32(muldiv(uint64(r.End-r.Start), pos, total))
	}
	return r.Start - uint32(muldiv(uint64(r.Start-r.End), pos, total))
}

// split divides the ramp at pos of total, the receiver keeps the head.
func (r *Ramp) split(pos, total uint64) Ramp {
	if !r.Enabled {
		return Ramp{}
	}
	mid := r.at(pos, total)
	tail := *r
	tail.Start = mid
	r.End = mid
	return tail
}

// rampEnd returns the position reached after fragment jiffies of a ramp
// which starts at start and has remaining jiffies left to run.
func rampEnd(start uint32, fragment, remaining uint64, dir RampDirection) uint32 {
	switch dir {
	case RampDown:
		if fragment >= remaining {
			return RampMin
		}
		return start - uint32(muldiv(uint64(start-RampMin), fragment, remaining))
	case RampUp:
		if fragment >= remaining {
			return RampMax
		}
		return start + uint32(muldiv(uint64(RampMax-start), fragment, remaining))
	case RampMute:
		return RampMin
	}
	return start
}

// muldiv returns a*b/c without intermediate overflow, the result is
// expected to fit uint64.
func muldiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// muldivCeil is muldiv rounded up.
func muldivCeil(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, rem := bits.Div64(hi, lo, c)
	if rem != 0 {
		q++
	}
	return q
}
