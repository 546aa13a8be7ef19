package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/josephlewis42/jobsh/core"
	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/proc"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobsh",
	Short: "Job control shell",
	Long: `A small shell that runs pipelines of programs connected by pipes, with
file redirection and background jobs.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		exitCode, err := runShell(cmd.Flags().Changed("command"))
		if err != nil {
			return err
		}

		// Exit only once the session has released the event log.
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

// runShell runs a single shell session, either the -c command line or an
// interactive one, and returns its exit status.
func runShell(commandGiven bool) (int, error) {
	configuration, err := loadConfig()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Println("Using the built-in configuration.")
		configuration = config.Default()
	case err != nil:
		return 0, err
	}

	var events proc.EventRecorder
	if configuration.EventLog {
		logFd, err := configuration.OpenEventLog()
		if err != nil {
			return 0, err
		}
		defer logFd.Close()
		events = logger.NewJsonLinesLogRecorder(logFd).NewSession()
	}

	shell := core.NewShell(configuration, events, os.Stdin, os.Stdout, os.Stderr)

	if commandGiven {
		return shell.RunCommands(commandLine), nil
	}
	return shell.Run(), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run the given commands and exit")
}
