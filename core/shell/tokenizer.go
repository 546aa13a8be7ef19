package shell

import "strings"

// Tokenize splits a command into whitespace-delimited words.
//
// No quoting, escaping or comment handling is done. An empty or blank command
// yields an empty slice which callers should treat as a no-op.
func Tokenize(command string) []string {
	return strings.Fields(command)
}

// SplitCommands splits an input line on the command separator, dropping
// commands that are blank.
func SplitCommands(line string) []string {
	var out []string
	for _, cmd := range strings.Split(line, CommandSeparator) {
		if strings.TrimSpace(cmd) == "" {
			continue
		}
		out = append(out, cmd)
	}
	return out
}
