package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kuitang/smokerun/internal/scenario"
)

func (a *app) listCmd() *cobra.Command {
	var (
		file   string
		asYAML bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet(file)
			if err != nil {
				return err
			}
			if asYAML {
				out, err := scenario.Marshal(set)
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(out)
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPOLICY\tSTEPS\tDESCRIPTION")
			for _, s := range set {
				policy := s.Policy
				if policy == "" {
					policy = scenario.PolicyContinue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, policy, len(s.Steps), s.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML scenario file (default: built-in catalog)")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print scenarios as a YAML scenario file")
	return cmd
}
