package proc

import (
	"os"

	"github.com/josephlewis42/jobsh/core/shell"
)

// OutputFileMode is the permission used when an output redirection creates a
// file.
const OutputFileMode os.FileMode = 0644

// Redirections holds the files a stage's standard streams are bound to instead
// of the terminal or a pipe. Either may be nil.
type Redirections struct {
	Input  *os.File
	Output *os.File
}

// OpenRedirections opens the redirection targets of a stage. Input is opened
// read-only, output is created or truncated for writing.
//
// Nothing is left open if an error is returned.
func OpenRedirections(stage shell.Stage) (*Redirections, error) {
	out := &Redirections{}

	if stage.Input != "" {
		fd, err := os.Open(stage.Input)
		if err != nil {
			return nil, &LaunchError{Kind: ErrRedirectionFailed, Name: stage.Name(), Err: err}
		}
		out.Input = fd
	}

	if stage.Output != "" {
		fd, err := os.OpenFile(stage.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, OutputFileMode)
		if err != nil {
			out.Close()
			return nil, &LaunchError{Kind: ErrRedirectionFailed, Name: stage.Name(), Err: err}
		}
		out.Output = fd
	}

	return out, nil
}

// Bind returns the descriptors to give the stage, preferring redirections over
// the defaults.
func (r *Redirections) Bind(stdin, stdout *os.File) (*os.File, *os.File) {
	if r.Input != nil {
		stdin = r.Input
	}
	if r.Output != nil {
		stdout = r.Output
	}
	return stdin, stdout
}

// Close closes any open redirection files.
func (r *Redirections) Close() error {
	var lastErr error
	for _, fd := range []*os.File{r.Input, r.Output} {
		if fd == nil {
			continue
		}
		if err := fd.Close(); err != nil {
			lastErr = err
		}
	}
	r.Input, r.Output = nil, nil
	return lastErr
}
