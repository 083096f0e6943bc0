package main

import (
	"github.com/spf13/cobra"

	"chainwork"
	"chainwork/config"
	"chainwork/logging"
)

type rootFlags struct {
	agentsPath string
	storeDir   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "chainwork",
		Short:         "Run agent tasks and chains as local worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.agentsPath, "agents", "agents.yaml", "path to the agent registry file")
	cmd.PersistentFlags().StringVar(&flags.storeDir, "store", "", "run store directory (default $HOME/.chainwork/runs)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging to stderr")

	cmd.AddCommand(
		newRunCmd(flags),
		newChainCmd(flags),
		newStatusCmd(flags),
		newRunsCmd(flags),
	)
	return cmd
}

// newEngine assembles an Engine from the persistent flags. The agents file is
// loaded lazily per invocation so status/runs work even with a missing file
// elsewhere on disk.
func newEngine(flags *rootFlags, needRegistry bool) (*chainwork.Engine, error) {
	var reg *config.Registry
	if needRegistry {
		var err error
		reg, err = config.LoadAgents(flags.agentsPath)
		if err != nil {
			return nil, err
		}
	}

	logger := logging.Logger(logging.NoOpLogger{})
	if flags.verbose {
		logger = logging.NewSlogLogger(logging.LogLevelDebug, "text", false).WithComponent("cli")
	}

	return chainwork.New(func(o *chainwork.Options) {
		if reg != nil {
			o.Registry = reg
		}
		o.StoreDir = flags.storeDir
		o.Logger = logger
	}), nil
}
