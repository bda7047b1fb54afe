// Package settings persists the AI provider configuration.
//
// The API key is held in plain text in memory and masked with
// pkg/obfuscate on disk. Loading merges the file over built-in defaults, so
// keys added by newer versions keep their defaults when an older file is
// read, and keys this version does not know are written back unchanged.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cfxgy/DoItNow/pkg/fsio"
	"github.com/cfxgy/DoItNow/pkg/obfuscate"
)

// SettingsFile is the settings file name inside the data directory.
const SettingsFile = "settings.json"

// Settings is the persisted configuration.
type Settings struct {
	AIProvider string                  `json:"ai_provider"`
	APIKey     string                  `json:"api_key"`
	APIBaseURL string                  `json:"api_base_url"`
	Model      string                  `json:"model"`
	Providers  map[string]ProviderInfo `json:"providers"`
}

var knownKeys = map[string]bool{
	"ai_provider":  true,
	"api_key":      true,
	"api_base_url": true,
	"model":        true,
	"providers":    true,
}

// Defaults returns first-run settings.
func Defaults() Settings {
	return Settings{
		AIProvider: DefaultProvider,
		Providers:  BuiltinProviders(),
	}
}

func (s Settings) clone() Settings {
	c := s
	c.Providers = make(map[string]ProviderInfo, len(s.Providers))
	for k, v := range s.Providers {
		c.Providers[k] = v
	}
	return c
}

// APIConfig is a fully resolved connection profile.
type APIConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// Store owns the settings file.
type Store struct {
	path    string
	codec   *obfuscate.Codec
	logger  *log.Logger
	current Settings
	// extra holds top-level keys from the file that this version does not
	// know about.
	extra map[string]json.RawMessage
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the codec used to mask the API key.
func WithCodec(c *obfuscate.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithLogger sets the logger used for degraded loads.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// PathIn returns the settings file path inside dataDir.
func PathIn(dataDir string) string {
	return filepath.Join(dataDir, SettingsFile)
}

// Open returns a Store for path and loads it.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = obfuscate.NewForMachine()
	}
	s.Load()
	return s
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing or unreadable file leaves the
// defaults in place; Load never fails.
func (s *Store) Load() {
	s.current = Defaults()
	s.extra = nil

	data, err := fsio.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Printf("settings unreadable, using defaults: %v", err)
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Printf("settings file %s is corrupt, using defaults: %v", s.path, err)
		return
	}

	// Decoding onto the defaults overrides only the keys present in the
	// file. Provider entries merge by key.
	merged := Defaults()
	if err := json.Unmarshal(data, &merged); err != nil {
		s.logger.Printf("settings file %s has unexpected types, using defaults: %v", s.path, err)
		return
	}
	if merged.Providers == nil {
		merged.Providers = BuiltinProviders()
	}
	if strings.TrimSpace(merged.AIProvider) == "" {
		merged.AIProvider = DefaultProvider
	}
	merged.APIKey = strings.TrimSpace(s.codec.Decode(merged.APIKey))

	for k, v := range raw {
		if knownKeys[k] {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]json.RawMessage)
		}
		s.extra[k] = v
	}
	s.current = merged
}

// Save writes the settings file with the API key masked. The in-memory key
// stays in plain text.
func (s *Store) Save() error {
	out := s.current.clone()
	out.APIKey = s.codec.Encode(out.APIKey)

	known, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("serializing settings: %w", err)
	}
	doc := make(map[string]json.RawMessage, len(s.extra)+len(knownKeys))
	for k, v := range s.extra {
		doc[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return fmt.Errorf("serializing settings: %w", err)
	}
	for k, v := range fields {
		doc[k] = v
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing settings: %w", err)
	}
	return fsio.WriteFile(s.path, data, 0600)
}

// Provider returns the selected provider key.
func (s *Store) Provider() string {
	return s.current.AIProvider
}

// ProviderInfo returns the description of key, falling back to the custom
// entry for unknown keys.
func (s *Store) ProviderInfo(key string) ProviderInfo {
	if p, ok := s.current.Providers[key]; ok {
		return p
	}
	if p, ok := builtinProviders[key]; ok {
		return p
	}
	if p, ok := s.current.Providers[CustomProvider]; ok {
		return p
	}
	return builtinProviders[CustomProvider]
}

// Providers lists the registry sorted by key.
func (s *Store) Providers() []ProviderEntry {
	return sortedEntries(s.current.Providers)
}

// Snapshot returns a copy of the current settings with the key in plain text.
func (s *Store) Snapshot() Settings {
	return s.current.clone()
}

// APIConfig resolves the selected provider's defaults against the explicit
// overrides. A non-empty override wins.
func (s *Store) APIConfig() APIConfig {
	p := s.ProviderInfo(s.current.AIProvider)

	cfg := APIConfig{
		Provider: s.current.AIProvider,
		APIKey:   s.current.APIKey,
		BaseURL:  p.BaseURL,
		Model:    p.DefaultModel,
	}
	if v := strings.TrimSpace(s.current.APIBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(s.current.Model); v != "" {
		cfg.Model = v
	}
	return cfg
}

// SetAPIConfig updates the provider configuration and saves it. Unknown
// provider keys are accepted and treated as custom. If the save fails the
// previous settings are restored and the error returned.
func (s *Store) SetAPIConfig(provider, apiKey, baseURL, model string) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = CustomProvider
	}

	prev := s.current
	next := s.current.clone()
	next.AIProvider = provider
	next.APIKey = strings.TrimSpace(apiKey)
	next.APIBaseURL = strings.TrimSpace(baseURL)
	next.Model = strings.TrimSpace(model)
	s.current = next

	if err := s.Save(); err != nil {
		s.current = prev
		return err
	}
	return nil
}

// ClearAPIKey removes the stored key and saves.
func (s *Store) ClearAPIKey() error {
	prev := s.current
	next := s.current.clone()
	next.APIKey = ""
	s.current = next

	if err := s.Save(); err != nil {
		s.current = prev
		return err
	}
	return nil
}

// IsConfigured reports whether an API key is set.
func (s *Store) IsConfigured() bool {
	return s.current.APIKey != ""
}
