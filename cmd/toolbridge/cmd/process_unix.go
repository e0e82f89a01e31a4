//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// shutdownSignals lists the signals that start a graceful relay shutdown:
// SIGINT from the terminal, SIGTERM from service managers and `toolbridge stop`.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// stillRunning probes the pid with the null signal. Nothing is delivered;
// an error means the process is gone or not ours to signal.
func stillRunning(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// requestStop asks the relay to shut down cleanly.
func requestStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
