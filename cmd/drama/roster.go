package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BaSui01/drama/drama"
)

func rosterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Inspect companion rosters",
	}
	cmd.AddCommand(rosterValidateCmd())
	return cmd
}

func rosterValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check roster files for errors",
		Long:  "Check roster files for errors. Without arguments the configured roster is checked.",
		RunE:  runRosterValidate,
	}
}

func runRosterValidate(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		paths = []string{cfg.Roster}
	}

	failed := 0
	for _, path := range paths {
		roster, err := drama.LoadRosterFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
			continue
		}
		printRoster(cmd.OutOrStdout(), path, roster)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rosters invalid", failed, len(paths))
	}
	return nil
}

func printRoster(out io.Writer, path string, roster *drama.Roster) {
	fmt.Fprintf(out, "%s: ok (%d companions)\n", path, len(roster.Companions))
	for _, c := range roster.Companions {
		fmt.Fprintf(out, "  - %s [%s]", drama.ToID(c.Name), c.Kind)
		if n := len(c.Actions); n > 0 {
			fmt.Fprintf(out, " %d actions", n)
		}
		fmt.Fprintln(out)
	}
}
