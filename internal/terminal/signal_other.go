//go:build !unix

package terminal

import "os"

var suspendSignals []os.Signal
