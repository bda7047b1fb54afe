package settings

import "sort"

// ProviderInfo describes an OpenAI-compatible completion service.
type ProviderInfo struct {
	Name         string `json:"name"`
	BaseURL      string `json:"base_url"`
	DefaultModel string `json:"default_model"`
}

// ProviderEntry pairs a provider key with its description.
type ProviderEntry struct {
	Key string
	ProviderInfo
}

const (
	// DefaultProvider is selected on first run.
	DefaultProvider = "deepseek"
	// CustomProvider has no defaults; base URL and model come from overrides.
	// Unknown provider keys resolve to it.
	CustomProvider = "custom"
)

var builtinProviders = map[string]ProviderInfo{
	"openai": {
		Name:         "OpenAI",
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-3.5-turbo",
	},
	"deepseek": {
		Name:         "DeepSeek",
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
	},
	"zhipu": {
		Name:         "Zhipu AI",
		BaseURL:      "https://open.bigmodel.cn/api/paas/v4",
		DefaultModel: "glm-4-flash",
	},
	"moonshot": {
		Name:         "Moonshot (Kimi)",
		BaseURL:      "https://api.moonshot.cn/v1",
		DefaultModel: "moonshot-v1-8k",
	},
	CustomProvider: {
		Name: "Custom",
	},
}

// BuiltinProviders returns a copy of the built-in registry.
func BuiltinProviders() map[string]ProviderInfo {
	out := make(map[string]ProviderInfo, len(builtinProviders))
	for k, v := range builtinProviders {
		out[k] = v
	}
	return out
}

// IsBuiltinProvider reports whether key names a built-in provider.
func IsBuiltinProvider(key string) bool {
	_, ok := builtinProviders[key]
	return ok
}

func sortedEntries(m map[string]ProviderInfo) []ProviderEntry {
	entries := make([]ProviderEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, ProviderEntry{Key: k, ProviderInfo: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}
