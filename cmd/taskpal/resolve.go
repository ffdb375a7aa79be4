package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/taskpal/internal/directive"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [text]",
		Short: "Parse a model reply into a task directive",
		Long: `Parse the labelled fields of a model reply (Action, Task, Due Date, Time, Note)
and print the resulting directive. Reads stdin when no text argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}
			return printResolved(cmd.OutOrStdout(), text)
		},
	}
}

func printResolved(w io.Writer, text string) error {
	res, err := directive.Resolve(strings.TrimSpace(text))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, res.Directive.String())
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
