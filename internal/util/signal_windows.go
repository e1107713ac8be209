//go:build windows

package util

import (
	"errors"
	"os"
)

// ErrGracefulNotSupported indicates graceful shutdown is not supported.
// When returned from exec.Cmd.Cancel, Go will wait WaitDelay then kill.
var ErrGracefulNotSupported = errors.New("graceful signal not supported on Windows")

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal cannot signal on Windows; the error makes exec.Cmd fall
// back to WaitDelay and then kill. Closing stdin first lets players drain.
func GracefulSignal(p *os.Process) error {
	return ErrGracefulNotSupported
}
