package commands

// Exit ends the shell session with status 0.
func Exit(env Env) int {
	env.Exit(0)
	return 0
}

var _ BuiltinFunc = Exit

func init() {
	addBuiltin(Exit, "exit", "quit", "!q")
}
