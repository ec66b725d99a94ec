package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dori/taskdeck/internal/app"
	"github.com/dori/taskdeck/internal/config"
	"github.com/dori/taskdeck/internal/ui"
)

var version = "0.1.0"

// globalFlags are the config overrides every command accepts
type globalFlags struct {
	configFile string
	apiURL     string
	dataDir    string
	theme      string
	logLevel   string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "taskdeck",
		Short: "taskdeck - a terminal client for your task board",
		Long: `taskdeck is a terminal client for the task API.

Run it without a command to open the board, or use the commands below
to sign in and manage tasks from scripts.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, &flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/taskdeck/config.toml)")
	pf.StringVar(&flags.apiURL, "api-url", "", "Task API base URL")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Directory for the session store, cache and log")
	pf.StringVar(&flags.theme, "theme", "", "Theme name (nord, dracula, gruvbox, catppuccin)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		signupCmd(&flags),
		loginCmd(&flags),
		logoutCmd(&flags),
		whoamiCmd(&flags),
		verifyCmd(&flags),
		resendCmd(&flags),
		forgotCmd(&flags),
		resetCmd(&flags),
		tasksCmd(&flags),
		addCmd(&flags),
		statusCmd(&flags),
		editCmd(&flags),
		rmCmd(&flags),
		stubAPICmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies the
// flags that were set on the command line.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flag, key, value string
	}{
		{"api-url", "api_base_url", flags.apiURL},
		{"data-dir", "data_dir", flags.dataDir},
		{"theme", "theme", flags.theme},
		{"log-level", "log_level", flags.logLevel},
	}
	for _, o := range overrides {
		if !cmd.Flags().Changed(o.flag) {
			continue
		}
		if err := cfg.SetFlag(o.key, o.value); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command, flags *globalFlags) (*app.App, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runTUI(cmd *cobra.Command, flags *globalFlags) error {
	application, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Start()

	model := ui.NewRootModel(application)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskdeck v%s\n", version)
		},
	}
}
