package proc

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Launcher starts programs as new operating system processes.
type Launcher struct {
	// Env holds the environment of started processes in "key=value" form.
	// If nil, the current environment is used unchanged.
	Env []string

	// LookPath resolves a program name to an executable path. If nil,
	// exec.LookPath is used which searches PATH.
	LookPath func(file string) (string, error)
}

// Launch starts argv[0] with argv as its arguments and the three files bound
// to its standard input, output and error.
//
// Only the given files are inherited: every other descriptor the shell holds
// is opened close-on-exec so pipe ends belonging to other stages never leak
// into the child. The caller keeps ownership of the files and may close them
// as soon as Launch returns.
//
// The returned process must be reaped by a Reaper.
func (l *Launcher) Launch(argv []string, stdin, stdout, stderr *os.File) (int, error) {
	if len(argv) == 0 {
		return 0, &LaunchError{Kind: ErrExecFailed, Err: exec.ErrNotFound}
	}
	name := argv[0]

	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	path, err := lookPath(name)
	if err != nil {
		return 0, &LaunchError{Kind: ErrExecFailed, Name: name, Err: err}
	}

	env := l.Env
	if env == nil {
		env = os.Environ()
	}

	process, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   env,
		Files: []*os.File{stdin, stdout, stderr},
	})
	if err != nil {
		return 0, &LaunchError{Kind: classifyStartError(err), Name: name, Err: err}
	}

	pid := process.Pid
	// Waiting is done by the Reaper using the raw pid, the handle is no longer
	// needed.
	_ = process.Release()

	return pid, nil
}

func classifyStartError(err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM):
		return ErrForkFailed
	default:
		return ErrExecFailed
	}
}
