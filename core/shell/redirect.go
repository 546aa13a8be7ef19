package shell

import "fmt"

// ParseRedirections strips redirection operators and their targets from a
// stage's raw words.
//
// Input redirection is only honored when input is true and output redirection
// only when output is true; disabled operators are passed through untouched as
// ordinary arguments since those streams are always bound to a pipe. If an
// operator appears more than once the last target wins.
func ParseRedirections(words []string, input, output bool) (Stage, error) {
	var stage Stage

	for i := 0; i < len(words); i++ {
		word := words[i]

		var target *string
		switch {
		case word == OpRedirectIn && input:
			target = &stage.Input
		case word == OpRedirectOut && output:
			target = &stage.Output
		default:
			stage.Args = append(stage.Args, word)
			continue
		}

		if i+1 >= len(words) || isOperator(words[i+1]) {
			return Stage{}, fmt.Errorf("%w for %q", ErrMissingRedirectionTarget, word)
		}
		i++
		*target = words[i]
	}

	return stage, nil
}

func isOperator(word string) bool {
	switch word {
	case OpPipe, OpBackground, OpRedirectIn, OpRedirectOut:
		return true
	default:
		return false
	}
}
