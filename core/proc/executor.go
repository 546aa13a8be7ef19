package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/shell"
)

// EventRecorder stores structured events about process lifecycles.
type EventRecorder interface {
	Record(le *logger.LogEntry) error
}

// Executor runs pipelines as chains of processes connected by pipes.
//
// Pipelines are started and reconciled from a single flow of control, but
// Reconcile may be called from another goroutine to report completed jobs
// while a foreground pipeline is running.
type Executor struct {
	Launcher *Launcher
	Jobs     *JobTable
	Reaper   *Reaper

	// Events, if set, receives lifecycle events.
	Events EventRecorder

	// Standard streams inherited by the first and last stage. Nil means the
	// shell's own.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Notices receives job registration notices, Stdout if nil.
	Notices io.Writer

	// LabelLength bounds job labels, 0 means unbounded.
	LabelLength int

	// mu keeps Reconcile from consuming terminations of a pipeline that is
	// still being started.
	mu sync.Mutex
}

// Run starts every stage of the pipeline left to right.
//
// Foreground pipelines block until every started stage has terminated, exit
// statuses are discarded. Background pipelines are registered as a job keyed
// on the pid of their last stage and Run returns immediately; earlier stages
// run unmanaged.
//
// A stage whose program can't be executed gets a diagnostic on Stderr and the
// rest of the pipeline continues. Other launch failures abandon the stages not
// yet started and are returned as a *LaunchError; stages already started keep
// running and are still waited for.
func (e *Executor) Run(p *shell.Pipeline) error {
	if len(p.Stages) == 0 {
		return nil
	}

	e.record(&logger.LogEntry{
		Kind:       logger.KindPipelineStart,
		Command:    p.String(),
		Background: p.Background,
	})

	e.mu.Lock()
	waits, lastPID, err := e.start(p)
	if p.Background && lastPID > 0 {
		e.register(p, lastPID)
	}
	e.mu.Unlock()

	for _, wait := range waits {
		<-wait
	}

	return err
}

func (e *Executor) start(p *shell.Pipeline) (waits []<-chan Exit, lastPID int, err error) {
	ps, err := newPipes(p.PipeCount())
	if err != nil {
		err = &LaunchError{Kind: ErrPipeCreationFailed, Name: p.Stages[0].Name(), Err: err}
		e.recordFailure(0, p.Stages[0], err)
		return nil, 0, err
	}
	defer ps.Close()

	last := len(p.Stages) - 1
	for i, stage := range p.Stages {
		stdin, stdout := e.stdin(), e.stdout()
		if i > 0 {
			stdin = ps[i-1].r
		}
		if i < last {
			stdout = ps[i].w
		}

		pid, err := e.startStage(i, stage, stdin, stdout)

		// The child holds its own copies now.
		ps.release(i)

		switch {
		case errors.Is(err, ErrExecFailed):
			fmt.Fprintf(e.stderr(), "Error: Command not found - %s\n", stage.Name())
			e.recordFailure(i, stage, err)
			continue
		case err != nil:
			e.recordFailure(i, stage, err)
			return waits, 0, err
		}

		e.record(&logger.LogEntry{
			Kind:  logger.KindStageLaunch,
			PID:   pid,
			Stage: i + 1,
			Argv:  stage.Args,
		})

		if !p.Background {
			waits = append(waits, e.Reaper.Expect(pid))
		}
		if i == last {
			lastPID = pid
		}
	}

	return waits, lastPID, nil
}

func (e *Executor) startStage(i int, stage shell.Stage, stdin, stdout *os.File) (int, error) {
	redirections, err := OpenRedirections(stage)
	if err != nil {
		return 0, withStage(err, i)
	}
	defer redirections.Close()

	stdin, stdout = redirections.Bind(stdin, stdout)
	pid, err := e.Launcher.Launch(stage.Args, stdin, stdout, e.stderr())
	if err != nil {
		return 0, withStage(err, i)
	}
	return pid, nil
}

func (e *Executor) register(p *shell.Pipeline, pid int) {
	label := p.Label(e.LabelLength)

	index, ok := e.Jobs.Insert(pid, label)
	if ok {
		e.record(&logger.LogEntry{Kind: logger.KindJobRegistered, PID: pid, Index: index, Label: label})
	} else {
		// The notice still names the slot the job would have taken.
		index = e.Jobs.Len() + 1
		e.record(&logger.LogEntry{Kind: logger.KindJobDropped, PID: pid, Index: index, Label: label})
	}

	fmt.Fprintf(e.notices(), "[%d] %d\n", index, pid)
}

// Reconcile removes jobs whose process has terminated since the last call and
// writes a completion notice for each to w. Terminated processes that aren't
// jobs are dropped silently.
func (e *Executor) Reconcile(w io.Writer) []Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	var completed []Job
	for _, exit := range e.Reaper.Take() {
		job, ok := e.Jobs.Remove(exit.PID)
		if !ok {
			continue
		}

		fmt.Fprintf(w, "Background process %d (%s) completed\n", job.PID, job.Label)

		code := exit.Code()
		e.record(&logger.LogEntry{
			Kind:     logger.KindJobCompleted,
			PID:      job.PID,
			Index:    job.Index,
			Label:    job.Label,
			ExitCode: &code,
		})
		completed = append(completed, job)
	}
	return completed
}

func (e *Executor) record(le *logger.LogEntry) {
	if e.Events == nil {
		return
	}
	// Events are best effort and never fail a pipeline.
	_ = e.Events.Record(le)
}

func (e *Executor) recordFailure(i int, stage shell.Stage, err error) {
	e.record(&logger.LogEntry{
		Kind:  logger.KindLaunchFailed,
		Stage: i + 1,
		Argv:  stage.Args,
		Error: err.Error(),
	})
}

func (e *Executor) stdin() *os.File {
	if e.Stdin != nil {
		return e.Stdin
	}
	return os.Stdin
}

func (e *Executor) stdout() *os.File {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *Executor) stderr() *os.File {
	if e.Stderr != nil {
		return e.Stderr
	}
	return os.Stderr
}

func (e *Executor) notices() io.Writer {
	if e.Notices != nil {
		return e.Notices
	}
	return e.stdout()
}

func withStage(err error, i int) error {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		launchErr.Stage = i
	}
	return err
}

type pipe struct {
	r, w *os.File
}

// pipes holds the inter-stage pipes of a pipeline, pipe i connects stage i to
// stage i+1.
type pipes []pipe

func newPipes(n int) (pipes, error) {
	out := make(pipes, n)
	for i := range out {
		r, w, err := os.Pipe()
		if err != nil {
			out.Close()
			return nil, err
		}
		out[i] = pipe{r: r, w: w}
	}
	return out, nil
}

// release closes the parent's copies of the pipe ends used by a stage.
func (ps pipes) release(stage int) {
	if stage > 0 {
		closeFile(&ps[stage-1].r)
	}
	if stage < len(ps) {
		closeFile(&ps[stage].w)
	}
}

// Close closes every pipe end that is still open.
func (ps pipes) Close() {
	for i := range ps {
		closeFile(&ps[i].r)
		closeFile(&ps[i].w)
	}
}

func closeFile(fd **os.File) {
	if *fd != nil {
		(*fd).Close()
		*fd = nil
	}
}
