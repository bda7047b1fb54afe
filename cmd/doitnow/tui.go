package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cfxgy/DoItNow/pkg/breakdown"
	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/tui"
)

func runTUI(a *app) error {
	m := tui.NewModel(tui.Options{
		Tasks:    a.tasks,
		Settings: a.settings,
		NewProvider: func(cfg settings.APIConfig) (breakdown.Provider, error) {
			return a.newProvider(cfg, a.cfg.RequestTimeout)
		},
		Clipboard: a.clipboard,
		Timeout:   a.cfg.RequestTimeout,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Start file watcher
	cleanup, err := tui.StartWatcher(p, a.tasks.Path(), a.settings.Path())
	if err != nil {
		fmt.Fprintf(a.stderr, "Warning: file watcher failed: %v\n", err)
	} else {
		defer cleanup()
	}

	_, err = p.Run()
	return err
}
