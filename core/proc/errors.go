package proc

import (
	"errors"
	"fmt"
)

var (
	// ErrForkFailed means the system could not create a new process, usually
	// because of resource exhaustion. Stages not yet started are abandoned.
	ErrForkFailed = errors.New("fork failed")

	// ErrPipeCreationFailed means the inter-stage pipes couldn't be allocated.
	// No stage is started.
	ErrPipeCreationFailed = errors.New("pipe creation failed")

	// ErrRedirectionFailed means a redirection target couldn't be opened. The
	// affected stage and everything after it is abandoned.
	ErrRedirectionFailed = errors.New("redirection failed")

	// ErrExecFailed means the program couldn't be found or executed. It only
	// affects its own stage.
	ErrExecFailed = errors.New("exec failed")
)

// LaunchError describes why a stage of a pipeline couldn't be started.
type LaunchError struct {
	// Kind is one of the Err* sentinels in this package.
	Kind error
	// Stage is the zero-based index of the stage in its pipeline.
	Stage int
	// Name is the program name of the stage.
	Name string
	// Err is the underlying cause.
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
}

// Is reports whether target is the kind of this error.
func (e *LaunchError) Is(target error) bool {
	return e.Kind == target
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
