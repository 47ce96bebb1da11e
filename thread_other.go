//go:build !linux

package playout

import (
	"runtime"

	"pipelined.dev/playout/log"
)

// lockThread pins the calling goroutine to its OS thread. Priorities are
// only applied on linux.
func lockThread(_ int, _ string, _ log.Logger) {
	runtime.LockOSThread()
}
