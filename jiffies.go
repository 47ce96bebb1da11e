package playout

import (
	"fmt"
	"time"
)

// Jiffies constants. JiffiesPerSecond is divisible by all supported sample
// rates, so any whole number of samples is a whole number of jiffies.
const (
	JiffiesPerSecond = 56448000
	JiffiesPerMs     = JiffiesPerSecond / 1000
)

var sampleRates = [...]int{
	7350, 8000, 11025, 12000, 14700, 16000, 22050, 24000, 29400, 32000,
	44100, 48000, 88200, 96000, 176400, 192000,
}

// SupportedSampleRate reports if jiffies can be computed for the rate.
func SupportedSampleRate(sampleRate int) bool {
	for _, r := range sampleRates {
		if r == sampleRate {
			return true
		}
	}
	return false
}

// JiffiesPerSample returns the duration of a single sample.
func JiffiesPerSample(sampleRate int) uint64 {
	if !SupportedSampleRate(sampleRate) {
		panic(fmt.Sprintf("unsupported sample rate %d", sampleRate))
	}
	return uint64(JiffiesPerSecond / sampleRate)
}

// ToJiffies converts wall clock duration.
func ToJiffies(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d/time.Millisecond) * JiffiesPerMs
}

// MsToJiffies converts milliseconds.
func MsToJiffies(ms uint) uint64 {
	return uint64(ms) * JiffiesPerMs
}

// JiffiesToMs converts jiffies to whole milliseconds.
func JiffiesToMs(j uint64) uint64 {
	return j / JiffiesPerMs
}

// JiffiesToDuration converts jiffies to wall clock duration.
func JiffiesToDuration(j uint64) time.Duration {
	return time.Duration(float64(j) * float64(time.Second) / JiffiesPerSecond)
}

// JiffiesToSamples returns the number of whole samples in j.
func JiffiesToSamples(j uint64, sampleRate int) uint64 {
	return j / JiffiesPerSample(sampleRate)
}

// SamplesToJiffies returns the duration of n samples.
func SamplesToJiffies(n uint64, sampleRate int) uint64 {
	return n * JiffiesPerSample(sampleRate)
}
