package playout

import (
	"fmt"
	"os"
	"strconv"
)

// Config sets sizes of the pipeline. Durations are in jiffies.
type Config struct {
	EncodedReservoirBytes   int
	DecodedReservoirJiffies uint64
	MaxStreamsPerReservoir  int

	GorgeDurationJiffies        uint64
	StarvationMonitorMaxJiffies uint64
	StarvationThresholdJiffies  uint64
	StarvationGorgeJiffies      uint64
	RampUpJiffies               uint64

	RampLongJiffies      uint64
	RampShortJiffies     uint64
	RampEmergencyJiffies uint64

	SenderMinLatencyJiffies uint64

	// ThreadPriorityMax is the priority of the thread closest to the
	// driver. Priorities of upstream threads decrease by one per thread.
	ThreadPriorityMax int
	// LogElements enables element loggers for message kinds.
	LogElements Kind
}

// DefaultConfig returns default sizes.
func DefaultConfig() Config {
	return Config{
		EncodedReservoirBytes:       500 * 1024,
		DecodedReservoirJiffies:     MsToJiffies(1000),
		MaxStreamsPerReservoir:      10,
		GorgeDurationJiffies:        MsToJiffies(1000),
		StarvationMonitorMaxJiffies: MsToJiffies(50),
		StarvationThresholdJiffies:  MsToJiffies(20),
		StarvationGorgeJiffies:      MsToJiffies(500),
		RampUpJiffies:               MsToJiffies(100),
		RampLongJiffies:             MsToJiffies(500),
		RampShortJiffies:            MsToJiffies(50),
		RampEmergencyJiffies:        MsToJiffies(20),
		SenderMinLatencyJiffies:     MsToJiffies(150),
		ThreadPriorityMax:           0,
	}
}

// Validate checks ordering invariants. All violations are reported.
func (c Config) Validate() error {
	var errs validationErrors
	if c.EncodedReservoirBytes < EncodedAudioMaxBytes {
		errs = append(errs, configError("encoded reservoir %d smaller than a message", c.EncodedReservoirBytes))
	}
	if c.DecodedReservoirJiffies == 0 {
		errs = append(errs, configError("decoded reservoir is empty"))
	}
	if c.MaxStreamsPerReservoir < 1 {
		errs = append(errs, configError("max streams per reservoir %d", c.MaxStreamsPerReservoir))
	}
	if c.RampLongJiffies == 0 || c.RampShortJiffies == 0 || c.RampEmergencyJiffies == 0 {
		errs = append(errs, configError("ramp durations must be positive"))
	}
	if err := validateStarvation(c.StarvationThresholdJiffies, c.StarvationMonitorMaxJiffies,
		c.StarvationGorgeJiffies, c.RampUpJiffies); err != nil {
		errs = append(errs, err)
	}
	return errs.ret()
}

func validateStarvation(threshold, normalMax, gorge, rampUp uint64) error {
	if !(threshold < normalMax && normalMax < gorge) {
		return configError("starvation sizes must satisfy threshold %d < normal %d < gorge %d",
			threshold, normalMax, gorge)
	}
	if !(rampUp < gorge) {
		return configError("starvation ramp up %d must be less than gorge %d", rampUp, gorge)
	}
	return nil
}

// elementThreads is the number of threads the pipeline starts: filler,
// codec controller, gorger and starvation monitor.
const elementThreads = 4

// reservoirCount is the number of elements that queue whole streams:
// encoded and decoded reservoirs, gorger and starvation monitor.
const reservoirCount = 4

// minAudioJiffies is the expected shortest decoded message, a full stereo
// buffer at 192kHz.
const minAudioJiffies = DecodedAudioMaxSamples / 2 * (JiffiesPerSecond / 192000)

func (c Config) factoryConfig() FactoryConfig {
	perStream := c.MaxStreamsPerReservoir*reservoirCount + 10
	encoded := (c.EncodedReservoirBytes+EncodedAudioMaxBytes-1)/EncodedAudioMaxBytes + 2*perStream + 16
	buffered := c.DecodedReservoirJiffies + c.GorgeDurationJiffies + c.StarvationGorgeJiffies + c.SenderMinLatencyJiffies
	decoded := int(buffered/minAudioJiffies) + 100
	return FactoryConfig{
		EncodedStream: perStream,
		AudioEncoded:  encoded,
		DecodedAudio:  decoded,
		AudioPcm:      decoded + 100,
		Silence:       512,
		Playable:      64,
		Control:       perStream,
		Flush:         16,
	}
}

// ConfigFromEnv overrides c with environment variables named after fields
// with prefix, e.g. PLAYOUT_DECODED_RESERVOIR_MS. Durations are read in
// milliseconds.
func ConfigFromEnv(prefix string, c Config) (Config, error) {
	durations := []struct {
		name  string
		field *uint64
	}{
		{"DECODED_RESERVOIR_MS", &c.DecodedReservoirJiffies},
		{"GORGE_MS", &c.GorgeDurationJiffies},
		{"STARVATION_MAX_MS", &c.StarvationMonitorMaxJiffies},
		{"STARVATION_THRESHOLD_MS", &c.StarvationThresholdJiffies},
		{"STARVATION_GORGE_MS", &c.StarvationGorgeJiffies},
		{"RAMP_UP_MS", &c.RampUpJiffies},
		{"RAMP_LONG_MS", &c.RampLongJiffies},
		{"RAMP_SHORT_MS", &c.RampShortJiffies},
		{"RAMP_EMERGENCY_MS", &c.RampEmergencyJiffies},
		{"SENDER_LATENCY_MS", &c.SenderMinLatencyJiffies},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(prefix + d.name)
		if !ok {
			continue
		}
		ms, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c, fmt.Errorf("%s%s: %w", prefix, d.name, err)
		}
		*d.field = MsToJiffies(uint(ms))
	}
	ints := []struct {
		name  string
		field *int
	}{
		{"ENCODED_RESERVOIR_BYTES", &c.EncodedReservoirBytes},
		{"MAX_STREAMS", &c.MaxStreamsPerReservoir},
		{"THREAD_PRIORITY_MAX", &c.ThreadPriorityMax},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(prefix + i.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%s%s: %w", prefix, i.name, err)
		}
		*i.field = n
	}
	if v, ok := os.LookupEnv(prefix + "LOG_ELEMENTS"); ok {
		mask, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return c, fmt.Errorf("%sLOG_ELEMENTS: %w", prefix, err)
		}
		c.LogElements = Kind(mask)
	}
	return c, c.Validate()
}
