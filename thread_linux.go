//go:build linux

package playout

import (
	"errors"
	"runtime"

	"golang.org/x/sys/unix"

	"pipelined.dev/playout/log"
)

// lockThread pins the calling goroutine to its OS thread and sets the
// thread's nice value. Higher priority maps to lower niceness. Raising
// priority needs CAP_SYS_NICE, without it the default is kept.
func lockThread(priority int, name string, logger log.Logger) {
	runtime.LockOSThread()
	nice := -priority
	err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
	switch {
	case err == nil:
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		logger.WithField("thread", name).Debug("no permission for nice ", nice)
	default:
		logger.WithField("thread", name).Warn("set priority: ", err)
	}
}
