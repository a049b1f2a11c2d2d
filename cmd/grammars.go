package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var grammarsCmd = &cobra.Command{
	Use:   "grammars",
	Short: "List registered grammars",
	Long: `List every grammar discovered in the configured grammar
directories, with the file types each one claims.

Examples:
  # List all grammars
  prism grammars

  # Add a directory and list what it contributes
  prism grammars --grammar-dir ./grammars`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		entries := reg.Entries()
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no grammars found; add documents to a grammar_dirs directory")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCOPE\tFILE TYPES\tPATH")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Scope, strings.Join(e.FileTypes, ","), e.Path)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(grammarsCmd)
}
