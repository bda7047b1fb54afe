package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cfxgy/DoItNow/pkg/breakdown"
	"github.com/cfxgy/DoItNow/pkg/config"
	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newHTTPProvider(cfg settings.APIConfig, timeout time.Duration) (provider, error) {
	c, err := breakdown.NewClient(cfg, breakdown.WithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// maskKey keeps only the last four characters of a key for display.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

type shownConfig struct {
	DataDir        string `yaml:"data_dir"`
	ConfigFile     string `yaml:"config_file"`
	RequestTimeout string `yaml:"request_timeout"`
	Verbose        bool   `yaml:"verbose"`
	AI             struct {
		Provider   string `yaml:"provider"`
		BaseURL    string `yaml:"base_url"`
		Model      string `yaml:"model"`
		APIKey     string `yaml:"api_key"`
		Configured bool   `yaml:"configured"`
	} `yaml:"ai"`
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change settings",
	}
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigSetCmd(a))
	cmd.AddCommand(newConfigProvidersCmd(a))
	cmd.AddCommand(newConfigTestCmd(a))
	cmd.AddCommand(newConfigPathCmd(a))
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := a.settings.APIConfig()
			if a.jsonOut {
				m := apiConfigToMap(api, a.settings.IsConfigured())
				m["data_dir"] = a.cfg.DataDir
				m["request_timeout"] = a.cfg.RequestTimeout.String()
				return writeJSON(a.stdout, m)
			}

			var out shownConfig
			out.DataDir = a.cfg.DataDir
			out.ConfigFile = config.Path(a.cfg.DataDir)
			out.RequestTimeout = a.cfg.RequestTimeout.String()
			out.Verbose = a.cfg.Verbose
			out.AI.Provider = api.Provider
			out.AI.BaseURL = api.BaseURL
			out.AI.Model = api.Model
			out.AI.APIKey = maskKey(api.APIKey)
			out.AI.Configured = a.settings.IsConfigured()

			data, err := yaml.Marshal(out)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprint(a.stdout, string(data))
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	var provider, key, baseURL, model string
	var clearKey bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the AI provider configuration",
		Long: `Set changes only the fields given as flags. An empty --base-url or
--model falls back to the provider's default. Unknown provider names are
accepted and need --base-url and --model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if clearKey && flags.Changed("api-key") {
				return fmt.Errorf("%w: use either --api-key or --clear-key", store.ErrInvalidArgument)
			}
			if clearKey {
				if err := a.settings.ClearAPIKey(); err != nil {
					return err
				}
			}

			cur := a.settings.Snapshot()
			if !flags.Changed("provider") {
				provider = cur.AIProvider
			}
			if !flags.Changed("api-key") {
				key = cur.APIKey
			}
			if !flags.Changed("base-url") {
				baseURL = cur.APIBaseURL
			}
			if !flags.Changed("model") {
				model = cur.Model
			}
			fieldsChanged := flags.Changed("provider") || flags.Changed("api-key") ||
				flags.Changed("base-url") || flags.Changed("model")
			if fieldsChanged || !clearKey {
				if err := a.settings.SetAPIConfig(provider, key, baseURL, model); err != nil {
					return err
				}
			}
			api := a.settings.APIConfig()
			if a.jsonOut {
				return writeJSON(a.stdout, apiConfigToMap(api, a.settings.IsConfigured()))
			}
			fmt.Fprintf(a.stdout, "Saved: %s (%s, %s)\n", api.Provider, api.Model, api.BaseURL)
			if !settings.IsBuiltinProvider(api.Provider) && (api.BaseURL == "" || api.Model == "") {
				fmt.Fprintln(a.stdout, "Note: custom providers need --base-url and --model.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider key (see 'doitnow config providers')")
	cmd.Flags().StringVar(&key, "api-key", "", "API key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Override the provider's base URL")
	cmd.Flags().StringVar(&model, "model", "", "Override the provider's default model")
	cmd.Flags().BoolVar(&clearKey, "clear-key", false, "Remove the stored API key")
	return cmd
}

func newConfigProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List known AI providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := a.settings.Providers()
			if a.jsonOut {
				out := make([]map[string]string, 0, len(entries))
				for _, e := range entries {
					out = append(out, map[string]string{
						"key":           e.Key,
						"name":          e.Name,
						"base_url":      e.BaseURL,
						"default_model": e.DefaultModel,
					})
				}
				return writeJSON(a.stdout, out)
			}
			current := a.settings.Provider()
			for _, e := range entries {
				mark := " "
				if e.Key == current {
					mark = "*"
				}
				fmt.Fprintf(a.stdout, "%s %-10s %-18s %s %s\n", mark, e.Key, e.Name, e.BaseURL, e.DefaultModel)
			}
			return nil
		},
	}
}

func newConfigTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a small request to check the AI provider settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newProvider(a.settings.APIConfig(), a.cfg.RequestTimeout)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, map[string]any{"ok": true, "model": p.Model()})
			}
			fmt.Fprintf(a.stdout, "Connection OK (model %s)\n", p.Model())
			return nil
		},
	}
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show data and configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := map[string]string{
				"data_dir": a.cfg.DataDir,
				"config":   config.Path(a.cfg.DataDir),
				"settings": a.settings.Path(),
				"tasks":    a.tasks.Path(),
			}
			if a.jsonOut {
				return writeJSON(a.stdout, paths)
			}
			fmt.Fprintf(a.stdout, "Data dir: %s\n", paths["data_dir"])
			fmt.Fprintf(a.stdout, "Config:   %s\n", paths["config"])
			fmt.Fprintf(a.stdout, "Settings: %s\n", paths["settings"])
			fmt.Fprintf(a.stdout, "Tasks:    %s\n", paths["tasks"])
			return nil
		},
	}
}
