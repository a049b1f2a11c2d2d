package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/prism/internal/config"
	"github.com/zjrosen/prism/internal/theme"
)

var themeCmd = &cobra.Command{
	Use:   "theme [path]",
	Short: "Show or set the active theme",
	Long: `Without arguments, print the configured theme. With a path,
validate the theme document and persist it to the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			if cfg.Theme == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(no theme configured)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Theme)
			return nil
		}

		th, err := theme.Load(args[0])
		if err != nil {
			return err
		}

		if err := config.SaveTheme(configFilePath(), args[0]); err != nil {
			return fmt.Errorf("saving theme: %w", err)
		}
		name := th.Name
		if name == "" {
			name = args[0]
		}
		fmt.Fprintf(cmd.OutOrStdout(), "theme set to %s\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(themeCmd)
}
