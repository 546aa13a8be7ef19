package commands

import (
	"fmt"
)

// Jobs lists the tracked background jobs in launch order.
func Jobs(env Env) int {
	cmd := &SimpleCommand{
		Use:   "jobs [-p] [--color=WHEN]",
		Short: "Display status of background jobs.",
	}

	pidsOnly := cmd.Flags().Bool('p', "list process IDs only")
	var colorPrinter ColorPrinter
	colorPrinter.Init(cmd.Flags(), env)

	return cmd.Run(env, func() int {
		w := env.Stdout()
		for _, job := range env.Jobs() {
			if *pidsOnly {
				fmt.Fprintln(w, job.PID)
				continue
			}

			index := colorPrinter.Sprintf(ColorBoldBlue, "[%d]", job.Index)
			fmt.Fprintf(w, "%s %d %s\n", index, job.PID, colorPrinter.Sprintf(ColorBoldGreen, "%s", job.Label))
		}
		return 0
	})
}

var _ BuiltinFunc = Jobs

func init() {
	addBuiltin(Jobs, "jobs")
}
