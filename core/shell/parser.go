package shell

// Parsing loosely follows steps 2 and 5 of
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
// The input is broken into whitespace-delimited words, then split into
// pipeline stages on "|". Redirection operators and their operands are
// removed from the first stage (input side) and last stage (output side);
// the remaining words become the argument list of each program.
//
// There are no expansions, quoting, compound commands or functions.

import "fmt"

// Parse builds a pipeline from tokens produced by Tokenize.
//
// Any standalone "&" marks the pipeline as background and is dropped. A
// pipeline always has at least one stage, commands without a "|" produce a
// pipeline with exactly one.
func Parse(tokens []string) (*Pipeline, error) {
	p := &Pipeline{}

	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == OpBackground {
			p.Background = true
			continue
		}
		words = append(words, tok)
	}

	segments, err := splitStages(words)
	if err != nil {
		return nil, err
	}

	last := len(segments) - 1
	for i, seg := range segments {
		stage, err := ParseRedirections(seg, i == 0, i == last)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		if len(stage.Args) == 0 {
			return nil, fmt.Errorf("stage %d: %w", i+1, ErrEmptyStage)
		}
		p.Stages = append(p.Stages, stage)
	}

	return p, nil
}

func splitStages(words []string) ([][]string, error) {
	var (
		out     [][]string
		current []string
	)

	for _, word := range words {
		if word != OpPipe {
			current = append(current, word)
			continue
		}

		if len(current) == 0 {
			return nil, fmt.Errorf("%w before %q", ErrEmptyStage, OpPipe)
		}
		out = append(out, current)
		current = nil
	}

	if len(current) == 0 {
		if len(out) == 0 {
			return nil, ErrEmptyStage
		}
		return nil, fmt.Errorf("%w after %q", ErrEmptyStage, OpPipe)
	}

	return append(out, current), nil
}
