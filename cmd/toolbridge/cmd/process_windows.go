//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code Windows reports for a process that has not
// terminated yet.
const stillActive = 259

// shutdownSignals lists the signals that start a graceful relay shutdown.
// Windows maps Ctrl+C to os.Interrupt and has no SIGTERM equivalent.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// stillRunning asks the kernel for the exit code of the pid; STILL_ACTIVE
// means the process has not terminated.
func stillRunning(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}

// requestStop terminates the relay process. A detached process cannot be
// signalled gracefully on Windows, so this is a hard TerminateProcess; the
// serve loop only gets a clean shutdown from its own console's Ctrl+C.
func requestStop(proc *os.Process) error {
	return proc.Kill()
}
