package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chainwork"
	"chainwork/chain"
	"chainwork/config"
)

func newChainCmd(flags *rootFlags) *cobra.Command {
	var (
		background bool
		chainDir   string
	)

	cmd := &cobra.Command{
		Use:   "chain <chain-file> <task>",
		Short: "Run a multi-step chain defined in a YAML file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := config.LoadChain(args[0])
			if err != nil {
				return err
			}
			engine, err := newEngine(flags, true)
			if err != nil {
				return err
			}
			task := args[1]

			if background {
				runID, err := engine.RunChainAsync(cmd.Context(), steps, task)
				if err != nil {
					return err
				}
				fmt.Println(runID)
				return nil
			}

			res, err := engine.RunChain(cmd.Context(), steps, task, func(o *chainwork.ChainOptions) {
				o.ChainDir = chainDir
				o.OnProgress = newProgressPrinter()
			})
			if err != nil {
				var cerr *chain.ChainError
				if errors.As(err, &cerr) {
					color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, cerr.Error())
					color.New(color.Faint).Fprintf(os.Stderr, "chain dir preserved: %s\n", cerr.ChainDir)
					os.Exit(1)
				}
				return err
			}
			fmt.Println(res.FinalOutput)
			return nil
		},
	}

	cmd.Flags().BoolVar(&background, "background", false, "accept the chain and return a run id immediately")
	cmd.Flags().StringVar(&chainDir, "chain-dir", "", "shared directory for inter-step files (default under the OS temp dir)")
	return cmd
}
