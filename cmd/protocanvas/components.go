package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/protocanvas/protocanvas/internal/registry"
)

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "List the component types known to the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCATEGORY\tLABEL\tDEFAULT SIZE")
		for _, d := range registry.All() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%gx%g\n", d.Type, d.Category, d.Label, d.DefaultSize.Width, d.DefaultSize.Height)
		}
		return w.Flush()
	},
}
