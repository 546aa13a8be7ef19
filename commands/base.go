package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/josephlewis42/jobsh/core/proc"
	getopt "github.com/pborman/getopt/v2"
)

// Env is the view of the shell a built-in command runs against.
type Env interface {
	// Args holds the command name followed by its arguments.
	Args() []string
	Stdout() io.Writer
	Stderr() io.Writer

	// Jobs returns a snapshot of the tracked background jobs.
	Jobs() []proc.Job

	// ColorMode is the configured default for colored output: always, auto or
	// never.
	ColorMode() string
	// IsTerminal reports whether Stdout is attached to a terminal.
	IsTerminal() bool

	// Exit ends the shell session with the given status once the current
	// command returns.
	Exit(code int)
}

// BuiltinFunc is a command run inside the shell process instead of as a child.
type BuiltinFunc func(env Env) int

// AllBuiltins holds a list of all registered built-in commands.
var AllBuiltins = make(map[string]BuiltinFunc)

func addBuiltin(cmd BuiltinFunc, names ...string) {
	for _, name := range names {
		if _, ok := AllBuiltins[name]; ok {
			panic(fmt.Sprintf("duplicate builtin %q", name))
		}
		AllBuiltins[name] = cmd
	}
}

// Lookup finds the built-in command with the given name.
func Lookup(name string) (BuiltinFunc, bool) {
	cmd, ok := AllBuiltins[name]
	return cmd, ok
}

// ListBuiltins returns the names of every built-in command in sorted order.
func ListBuiltins() []string {
	var out []string
	for name := range AllBuiltins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail always runs the callback even if flags didn't parse.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was succcessful call the callback.
func (s *SimpleCommand) Run(env Env, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	err := opts.Getopt(env.Args(), nil)
	if err != nil && !s.NeverBail {
		fmt.Fprintf(env.Stderr(), "error: %s\n\n", err)

		s.PrintHelp(env.Stdout())
		return 1
	}

	if *s.ShowHelp {
		s.PrintHelp(env.Stdout())
		return 0
	}

	return callback()
}

const (
	colorAlways = "always"
	colorAuto   = "auto"
	colorNever  = "never"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
)

type ColorPrinter struct {
	value *string
	env   Env
}

// Init adds a --color flag defaulting to the shell's configured mode.
func (c *ColorPrinter) Init(flags *getopt.Set, env Env) {
	c.env = env

	defaultMode := env.ColorMode()
	switch defaultMode {
	case colorAlways, colorAuto, colorNever:
	default:
		defaultMode = colorAuto
	}

	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		[]string{colorAlways, colorAuto, colorNever},
		defaultMode,
		"colorize the output (always|auto|never)")
}

func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case *c.value == colorNever:
		return false
	case *c.value == colorAlways:
		return true
	default:
		return c.env.IsTerminal()
	}
}

func (c *ColorPrinter) Sprintf(color *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		// Force output, the decision was made above rather than by the
		// library's own terminal detection.
		color.EnableColor()
		return color.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}
