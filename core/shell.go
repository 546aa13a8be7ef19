package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/josephlewis42/jobsh/commands"
	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/proc"
	"github.com/josephlewis42/jobsh/core/shell"
)

var promptColor = color.New(color.FgGreen, color.Bold)

// Shell reads command lines and runs each command as a built-in or a pipeline
// of external programs.
type Shell struct {
	Config   *config.Configuration
	Executor *proc.Executor

	events proc.EventRecorder
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	// Built-in output and job notices go here, in interactive mode this is the
	// line reader so the prompt gets redrawn.
	out    io.Writer
	errOut io.Writer

	isTerminal bool

	quit     bool
	exitCode int
}

// NewShell creates a shell using the given standard streams. events may be
// nil.
func NewShell(configuration *config.Configuration, events proc.EventRecorder, stdin, stdout, stderr *os.File) *Shell {
	s := &Shell{
		Config:     configuration,
		events:     events,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		out:        stdout,
		errOut:     stderr,
		isTerminal: readline.IsTerminal(int(stdout.Fd())),
	}

	s.Executor = &proc.Executor{
		Launcher:    &proc.Launcher{},
		Jobs:        proc.NewJobTable(configuration.MaxJobs),
		Reaper:      proc.NewReaper(),
		Events:      events,
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
		Notices:     stdout,
		LabelLength: configuration.LabelLength,
	}

	return s
}

// Run reads lines interactively until end of input or an exit built-in and
// returns the exit status.
func (s *Shell) Run() int {
	cfg := &readline.Config{
		Stdin:  readline.NewCancelableStdin(s.stdin),
		Stdout: s.stdout,
		Stderr: s.stderr,
		FuncIsTerminal: func() bool {
			return s.isTerminal
		},
	}
	if err := cfg.Init(); err != nil {
		fmt.Fprintf(s.stderr, "jobsh: %v\n", err)
		return 1
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		fmt.Fprintf(s.stderr, "jobsh: %v\n", err)
		return 1
	}
	defer rl.Close()

	s.out = rl
	s.errOut = rl.Stderr()
	s.Executor.Notices = rl

	s.Executor.Reaper.Start()
	defer s.Executor.Reaper.Stop()

	done := make(chan struct{})
	defer close(done)
	go s.reportCompletions(done)

	for !s.quit {
		s.Executor.Reconcile(s.out)

		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			return s.exitCode // Input closed, quit.

		case err == readline.ErrInterrupt:
			// Interrupt clears line.
			continue

		case err != nil:
			log.Printf("Error readline: %v", err)
			continue

		default:
			s.Execute(line)
		}
	}

	return s.exitCode
}

// RunCommands runs a line non-interactively, reporting completed jobs after
// every command, and returns the exit status.
func (s *Shell) RunCommands(line string) int {
	s.Executor.Reaper.Start()
	defer s.Executor.Reaper.Stop()

	s.Execute(line)
	return s.exitCode
}

// Execute runs every ";" separated command of a line in order.
func (s *Shell) Execute(line string) {
	if s.Config.LineTooLong(line) {
		fmt.Fprintln(s.errOut, "Error: Command line too long")
		return
	}

	for _, command := range shell.SplitCommands(line) {
		if s.quit {
			return
		}

		s.runCommand(command)
		s.Executor.Reconcile(s.out)
	}
}

func (s *Shell) runCommand(command string) {
	tokens := shell.Tokenize(command)
	if len(tokens) == 0 {
		return
	}

	if builtin, ok := commands.Lookup(tokens[0]); ok {
		s.record(&logger.LogEntry{
			Kind:    logger.KindBuiltin,
			Command: strings.Join(tokens, " "),
			Argv:    tokens,
		})
		builtin(&builtinEnv{shell: s, args: tokens})
		return
	}

	pipeline, err := shell.Parse(tokens)
	if err != nil {
		fmt.Fprintf(s.errOut, "jobsh: %v\n", err)
		return
	}

	if err := s.Executor.Run(pipeline); err != nil {
		fmt.Fprintf(s.errOut, "jobsh: %v\n", err)
	}
}

// reportCompletions writes completion notices as soon as jobs finish, even
// while a prompt is shown.
func (s *Shell) reportCompletions(done <-chan struct{}) {
	for {
		select {
		case <-s.Executor.Reaper.Notify():
			s.Executor.Reconcile(s.out)
		case <-done:
			return
		}
	}
}

func (s *Shell) prompt() string {
	if s.shouldColor() {
		promptColor.EnableColor()
		return promptColor.Sprint(s.Config.Prompt)
	}
	return s.Config.Prompt
}

func (s *Shell) shouldColor() bool {
	switch s.Config.Color {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return s.isTerminal
	}
}

func (s *Shell) record(le *logger.LogEntry) {
	if s.events != nil {
		_ = s.events.Record(le)
	}
}

// builtinEnv exposes the shell to a single built-in invocation.
type builtinEnv struct {
	shell *Shell
	args  []string
}

var _ commands.Env = (*builtinEnv)(nil)

func (e *builtinEnv) Args() []string    { return e.args }
func (e *builtinEnv) Stdout() io.Writer { return e.shell.out }
func (e *builtinEnv) Stderr() io.Writer { return e.shell.errOut }
func (e *builtinEnv) Jobs() []proc.Job  { return e.shell.Executor.Jobs.List() }
func (e *builtinEnv) ColorMode() string { return e.shell.Config.Color }
func (e *builtinEnv) IsTerminal() bool  { return e.shell.isTerminal }

func (e *builtinEnv) Exit(code int) {
	e.shell.quit = true
	e.shell.exitCode = code
}
