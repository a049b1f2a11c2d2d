package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/prism/internal/config"
	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/registry"
	"github.com/zjrosen/prism/internal/render"
	"github.com/zjrosen/prism/internal/theme"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts,
	// so the OSC response cannot race the input loop.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version = "dev"
	cfgFile string
	cfg     config.Config

	flagScope string
	flagDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "prism [file]",
	Short: "A TextMate-grammar syntax highlighter for the terminal",
	Long: `Prism tokenizes text with TextMate grammars and renders it with a
VS Code-style color theme. With a file argument the highlighted text is
written to stdout; without one, stdin is highlighted (--scope required).`,
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runHighlight,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/prism/config.yaml)")
	rootCmd.PersistentFlags().StringArray("grammar-dir", nil,
		"grammar directory (repeatable)")
	rootCmd.PersistentFlags().String("theme", "",
		"path to a token color theme")
	rootCmd.PersistentFlags().StringVarP(&flagScope, "scope", "s", "",
		"grammar scope name (default: inferred from the file type)")
	rootCmd.PersistentFlags().Bool("plain", false,
		"disable styling, pass text through")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false,
		"write debug logs to prism-debug.log")

	// Bind flags to viper
	_ = viper.BindPFlag("grammar_dirs", rootCmd.PersistentFlags().Lookup("grammar-dir"))
	_ = viper.BindPFlag("theme", rootCmd.PersistentFlags().Lookup("theme"))
	_ = viper.BindPFlag("plain", rootCmd.PersistentFlags().Lookup("plain"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("grammar_dirs", defaults.GrammarDirs)
	viper.SetDefault("auto_reload", defaults.AutoReload)
	viper.SetDefault("ui.show_status_bar", defaults.UI.ShowStatusBar)
	viper.SetDefault("ui.wrap_lines", defaults.UI.WrapLines)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .prism/config.yaml (current directory)
		// 2. ~/.config/prism/config.yaml (user config)
		if _, err := os.Stat(".prism/config.yaml"); err == nil {
			viper.SetConfigFile(".prism/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "prism"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create a default one
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := defaultConfigPath()
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)

	if flagDebug || os.Getenv("PRISM_DEBUG") != "" {
		if _, err := log.InitWithTeaLog("prism-debug.log", "prism"); err != nil {
			fmt.Fprintf(os.Stderr, "debug log unavailable: %v\n", err)
		}
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prism/config.yaml"
	}
	return filepath.Join(home, ".config", "prism", "config.yaml")
}

// configFilePath returns the loaded config file, or the default location
// when nothing was loaded.
func configFilePath() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	return defaultConfigPath()
}

func newRegistry() (*registry.Registry, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return registry.New(cfg.GrammarDirs...), nil
}

func loadTheme() (*theme.Theme, error) {
	if cfg.Theme == "" {
		return nil, nil
	}
	return theme.Load(cfg.Theme)
}

// resolveScope picks the grammar scope: the --scope flag wins, otherwise
// the file type decides.
func resolveScope(reg *registry.Registry, file string) (string, error) {
	if flagScope != "" {
		return flagScope, nil
	}
	if file == "" {
		return "", fmt.Errorf("reading from stdin requires --scope")
	}
	if scope, ok := reg.ScopeForFile(file); ok {
		return scope, nil
	}
	return "", fmt.Errorf("no grammar claims %q; pass --scope or add a grammar (see 'prism grammars')", filepath.Base(file))
}

// readInput returns the text to highlight and a display name for it.
func readInput(args []string) (string, string, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), "(stdin)", nil
	}

	data, err := os.ReadFile(args[0]) //nolint:gosec // G304: the file the user asked to highlight
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), args[0], nil
}

func runHighlight(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	text, name, err := readInput(args)
	if err != nil {
		return err
	}

	file := ""
	if len(args) > 0 {
		file = args[0]
	}
	scope, err := resolveScope(reg, file)
	if err != nil {
		return err
	}

	g, err := reg.Grammar(context.Background(), scope)
	if err != nil {
		return err
	}

	th, err := loadTheme()
	if err != nil {
		return err
	}

	log.Info(log.CatUI, "highlighting", "input", name, "scope", scope)
	r := render.New(th, cfg.Plain)
	fmt.Fprintln(cmd.OutOrStdout(), r.Text(g, text))
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
