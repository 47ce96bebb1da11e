package playout

import (
	"errors"
	"fmt"

	"pipelined.dev/playout/internal/pool"
)

var (
	// ErrPoolExhausted is the panic value when a message pool runs out of
	// slots. Pools are sized from Config, so this is a sizing bug.
	ErrPoolExhausted = pool.ErrExhausted
	// ErrInvalidConfig is returned when configured sizes break ordering
	// invariants.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidState is returned if an operation cannot be executed at
	// this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrStreamNotFound is returned when track and stream ids do not match
	// the stream currently playing.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrCodecNotFound is returned when no codec recognises a stream.
	ErrCodecNotFound = errors.New("codec not found")
	// ErrNotSeekable is returned for seeks in live or unseekable streams.
	ErrNotSeekable = errors.New("stream not seekable")
	// ErrPrefetchTimeout is logged when a prefetched stream did not reach
	// the pipeline in time.
	ErrPrefetchTimeout = errors.New("prefetch timeout")
)

// invariant panics if an internal invariant is violated. There is no safe
// recovery once ramp or occupancy bookkeeping disagrees.
func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("playout: assertion failed: "+format, args...))
	}
}

// configError wraps ErrInvalidConfig with details.
func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
