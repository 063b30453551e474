package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Long:  "Runs one turn of a fresh conversation and prints the bot's reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, configPath, strings.Join(args, " "), verbose)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print the matched intent, category and score")
	return cmd
}

func runAsk(cmd *cobra.Command, configPath, question string, verbose bool) error {
	a, err := newApp(cmd.Context(), cmd, configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	out := cmd.OutOrStdout()
	outcome, err := a.engine.Turn(cmd.Context(), a.sessions("cli").Create(), question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, outcome.Reply.Content)
	if verbose {
		r := outcome.Reply
		fmt.Fprintf(out, "kind: %s\n", r.Kind)
		if r.Intent != "" {
			fmt.Fprintf(out, "intent: %s\n", r.Intent)
		}
		if r.Category != "" {
			fmt.Fprintf(out, "category: %s\n", r.Category)
		}
		if r.Score > 0 {
			fmt.Fprintf(out, "score: %.3f\n", r.Score)
		}
		if r.OrderNumber != "" {
			fmt.Fprintf(out, "order number: %s\n", r.OrderNumber)
		}
	}
	return nil
}
