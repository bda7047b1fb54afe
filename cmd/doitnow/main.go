package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cfxgy/DoItNow/pkg/breakdown"
	"github.com/cfxgy/DoItNow/pkg/config"
	"github.com/cfxgy/DoItNow/pkg/obfuscate"
	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}

// app carries everything a command needs. Tests replace the collaborators
// that touch the outside world.
type app struct {
	stdout io.Writer
	stderr io.Writer

	dataDir string
	jsonOut bool
	verbose bool

	cfg      *config.Config
	logger   *log.Logger
	tasks    *store.Store
	settings *settings.Store

	codec       *obfuscate.Codec
	clipboard   clipboardIO
	newProvider func(cfg settings.APIConfig, timeout time.Duration) (provider, error)
	runTUI      func(a *app) error
}

// provider is a breakdown.Provider that can also test its connection.
type provider interface {
	breakdown.Provider
	Ping(ctx context.Context) error
	Model() string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:      stdout,
		stderr:      stderr,
		clipboard:   systemClipboard{},
		newProvider: newHTTPProvider,
		runTUI:      runTUI,
	}
}

// Execute runs the CLI with the given arguments and writers and returns
// the process exit code. A nil app uses the real collaborators.
func Execute(args []string, stdout, stderr io.Writer, a *app) int {
	if a == nil {
		a = newApp(stdout, stderr)
	}
	a.stdout, a.stderr = stdout, stderr

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		if a.jsonOut {
			_ = writeJSON(stdout, map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doitnow",
		Short: "Break big tasks into small steps and get started",
		Long: `doitnow splits a large task into small, time-boxed steps, optionally
with the help of an AI provider, and tracks your progress through them.

Run without arguments to open the interactive interface.`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(a)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.dataDir, "dir", "", "Data directory (default: per-OS application data dir, or $DOITNOW_DIR)")
	cmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log degraded loads and skipped imports to stderr")

	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newShowCmd(a))
	cmd.AddCommand(newStepCmd(a))
	cmd.AddCommand(newRmCmd(a))
	cmd.AddCommand(newBreakdownCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// open resolves configuration and loads both stores.
func (a *app) open() error {
	cfg, err := config.Load(config.Overrides{DataDir: a.dataDir, Verbose: a.verbose})
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = log.New(io.Discard, "", 0)
	if cfg.Verbose {
		a.logger = log.New(a.stderr, "doitnow: ", 0)
	}

	tasks, err := store.Open(store.PathIn(cfg.DataDir), store.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.tasks = tasks
	a.settings = settings.Open(settings.PathIn(cfg.DataDir),
		settings.WithCodec(a.codec),
		settings.WithLogger(a.logger))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
