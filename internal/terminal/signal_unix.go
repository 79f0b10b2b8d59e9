//go:build unix

package terminal

import (
	"os"
	"syscall"
)

var suspendSignals = []os.Signal{syscall.SIGTSTP}
