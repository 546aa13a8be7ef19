package shell

import (
	"errors"
	"strings"
)

// Operator tokens recognized by the parser. Each must appear as its own
// whitespace-delimited token.
const (
	OpPipe        = "|"
	OpBackground  = "&"
	OpRedirectIn  = "<"
	OpRedirectOut = ">"

	// CommandSeparator splits one input line into independent commands.
	CommandSeparator = ";"
)

var (
	// ErrEmptyStage is returned when a pipe separator isn't surrounded by
	// program invocations or a stage is left with no program name.
	ErrEmptyStage = errors.New("empty pipeline stage")

	// ErrMissingRedirectionTarget is returned when a redirection operator is the
	// last token of its stage.
	ErrMissingRedirectionTarget = errors.New("missing redirection target")
)

// Stage is a single program invocation within a pipeline.
type Stage struct {
	// Args holds the program name followed by its arguments with any honored
	// redirection tokens removed.
	Args []string

	// Input is the path stdin is redirected from, empty if none.
	Input string
	// Output is the path stdout is redirected to, empty if none.
	Output string
}

// Name returns the program name of the stage.
func (s Stage) Name() string {
	if len(s.Args) == 0 {
		return ""
	}
	return s.Args[0]
}

// Pipeline is an ordered chain of stages connected by pipes.
type Pipeline struct {
	Stages     []Stage
	Background bool
}

// PipeCount returns the number of pipes needed to connect the stages.
func (p *Pipeline) PipeCount() int {
	if len(p.Stages) == 0 {
		return 0
	}
	return len(p.Stages) - 1
}

// Label is the name jobs created from the pipeline are displayed under: the
// first stage's program truncated to at most maxRunes runes.
func (p *Pipeline) Label(maxRunes int) string {
	if len(p.Stages) == 0 {
		return ""
	}
	name := []rune(p.Stages[0].Name())
	if maxRunes > 0 && len(name) > maxRunes {
		name = name[:maxRunes]
	}
	return string(name)
}

// String renders the pipeline back into a command line.
func (p *Pipeline) String() string {
	var parts []string
	for i, stage := range p.Stages {
		if i > 0 {
			parts = append(parts, OpPipe)
		}
		parts = append(parts, stage.Args...)
		if stage.Input != "" {
			parts = append(parts, OpRedirectIn, stage.Input)
		}
		if stage.Output != "" {
			parts = append(parts, OpRedirectOut, stage.Output)
		}
	}
	if p.Background {
		parts = append(parts, OpBackground)
	}
	return strings.Join(parts, " ")
}
