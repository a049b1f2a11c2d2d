package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/render"
	"github.com/zjrosen/prism/internal/ui/pager"
	"github.com/zjrosen/prism/internal/watcher"
)

var viewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "Open a file in the interactive pager",
	Long: `Open a highlighted file in a scrollable pager. With auto_reload
enabled, editing a grammar or the theme on disk re-highlights the open
file in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	text, _, err := readInput(args)
	if err != nil {
		return err
	}
	scope, err := resolveScope(reg, args[0])
	if err != nil {
		return err
	}

	// The closure re-reads the theme every pass so edits to the theme file
	// show up on reload, not just grammar edits.
	highlight := func() (string, error) {
		g, err := reg.Grammar(context.Background(), scope)
		if err != nil {
			return "", err
		}
		th, err := loadTheme()
		if err != nil {
			return "", err
		}
		return render.New(th, cfg.Plain).Text(g, text), nil
	}

	model := pager.New(pager.Options{
		Title:         filepath.Base(args[0]),
		ShowStatusBar: cfg.UI.ShowStatusBar,
		Highlight:     highlight,
		Reloads:       reg.Broker(),
	})
	defer model.Close()

	var w *watcher.Watcher
	if cfg.AutoReload {
		paths := append([]string{}, cfg.GrammarDirs...)
		if cfg.Theme != "" {
			paths = append(paths, cfg.Theme)
		}
		w, err = watcher.New(watcher.DefaultConfig(paths...))
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		changes, err := w.Start()
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		go func() {
			for range changes {
				log.Info(log.CatWatcher, "change detected, reloading grammars")
				reg.Reload()
			}
		}()
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()

	if w != nil {
		if stopErr := w.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	if err != nil {
		return fmt.Errorf("running pager: %w", err)
	}
	return nil
}
