package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cfxgy/DoItNow/pkg/obfuscate"
	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	text string
}

func (c *fakeClipboard) ReadAll() (string, error) { return c.text, nil }

func (c *fakeClipboard) WriteAll(text string) error {
	c.text = text
	return nil
}

type fakeProvider struct {
	steps   []store.Step
	err     error
	pingErr error
	asked   []string
	model   string
}

func (p *fakeProvider) Decompose(ctx context.Context, taskName string) ([]store.Step, error) {
	p.asked = append(p.asked, taskName)
	return p.steps, p.err
}

func (p *fakeProvider) Ping(ctx context.Context) error { return p.pingErr }

func (p *fakeProvider) Model() string { return p.model }

type testEnv struct {
	dir       string
	clipboard *fakeClipboard
	provider  *fakeProvider
	lastCfg   settings.APIConfig
	tuiRuns   int
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, k := range []string{"DOITNOW_DIR", "DOITNOW_DATA_DIR", "DOITNOW_REQUEST_TIMEOUT", "DOITNOW_VERBOSE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return &testEnv{
		dir:       t.TempDir(),
		clipboard: &fakeClipboard{},
		provider: &fakeProvider{steps: []store.Step{
			{Name: "Open the document", Minutes: 2},
			{Name: "Write the outline", Minutes: 15},
		}},
	}
}

// run executes one command against the env's data dir with a fresh app.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.codec = obfuscate.New(obfuscate.DeriveKey("cli-test"))
	a.clipboard = e.clipboard
	a.newProvider = func(cfg settings.APIConfig, timeout time.Duration) (provider, error) {
		e.lastCfg = cfg
		if cfg.APIKey == "" {
			return nil, errors.New("API key is not configured")
		}
		e.provider.model = cfg.Model
		return e.provider, nil
	}
	a.runTUI = func(*app) error {
		e.tuiRuns++
		return nil
	}
	code := Execute(append([]string{"--dir", e.dir}, args...), &stdout, &stderr, a)
	return stdout.String(), stderr.String(), code
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := e.run(t, args...)
	require.Equal(t, 0, code, "stderr: %s", errOut)
	return out
}

func (e *testEnv) addTask(t *testing.T, name string) string {
	t.Helper()
	out := e.mustRun(t, "--json", "add", name)
	var task map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	return task["id"].(string)
}

func (e *testEnv) listTasks(t *testing.T) []map[string]any {
	t.Helper()
	out := e.mustRun(t, "--json", "list")
	var tasks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	return tasks
}

func TestRootRunsTUI(t *testing.T) {
	e := setupTestEnv(t)
	e.mustRun(t)
	assert.Equal(t, 1, e.tuiRuns)
}

func TestAddAndList(t *testing.T) {
	e := setupTestEnv(t)

	out := e.mustRun(t, "add", "Write", "thesis", "chapter", "3")
	assert.Contains(t, out, "Created: Write thesis chapter 3")

	out = e.mustRun(t, "list")
	assert.Contains(t, out, "Write thesis chapter 3")
	assert.Contains(t, out, "[0/0]")

	tasks := e.listTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Write thesis chapter 3", tasks[0]["name"])
	assert.Equal(t, false, tasks[0]["completed"])

	_, err := os.Stat(filepath.Join(e.dir, store.TasksFile))
	assert.NoError(t, err)
}

func TestListEmpty(t *testing.T) {
	e := setupTestEnv(t)
	assert.Contains(t, e.mustRun(t, "list"), "No tasks yet")
	assert.Empty(t, e.listTasks(t))
}

func TestAddRejectsBlankName(t *testing.T) {
	e := setupTestEnv(t)
	_, errOut, code := e.run(t, "add", "   ")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid argument")
}

func TestStepLifecycle(t *testing.T) {
	e := setupTestEnv(t)
	id := e.addTask(t, "Thesis")

	e.mustRun(t, "step", "add", id, "Outline", "section", "10")
	e.mustRun(t, "step", "add", id, "Draft", "20")

	out := e.mustRun(t, "show", id)
	assert.Contains(t, out, " 1. [ ] Outline section (10 min)")
	assert.Contains(t, out, " 2. [ ] Draft (20 min)")
	assert.Contains(t, out, "Progress: 0/2 (30 min left)")

	out = e.mustRun(t, "step", "toggle", id, "1")
	assert.Contains(t, out, "Outline section → done")
	assert.Contains(t, out, "Progress: 1/2")

	out = e.mustRun(t, "--json", "show", id)
	var task map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, float64(1), task["done"])
	assert.Equal(t, float64(2), task["total"])
	assert.Equal(t, float64(20), task["minutes_left"])
	assert.Equal(t, 0.5, task["progress"])

	out = e.mustRun(t, "step", "rm", id, "2")
	assert.Contains(t, out, "Deleted step: Draft")

	out = e.mustRun(t, "--json", "show", id)
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, true, task["completed"])
}

func TestStepErrors(t *testing.T) {
	e := setupTestEnv(t)
	id := e.addTask(t, "Thesis")
	e.mustRun(t, "step", "add", id, "Outline", "10")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"index past end", []string{"step", "toggle", id, "2"}, "out of range"},
		{"index zero", []string{"step", "rm", id, "0"}, "out of range"},
		{"index not a number", []string{"step", "toggle", id, "one"}, "invalid argument"},
		{"minutes not a number", []string{"step", "add", id, "Draft", "ten"}, "invalid argument"},
		{"zero minutes", []string{"step", "add", id, "Draft", "0"}, "invalid argument"},
		{"unknown task", []string{"step", "toggle", "nope", "1"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := e.run(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestJSONErrorOutput(t *testing.T) {
	e := setupTestEnv(t)
	out, _, code := e.run(t, "--json", "show", "missing")
	assert.Equal(t, 1, code)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Contains(t, body["error"], "not found")
}

func TestIDPrefix(t *testing.T) {
	e := setupTestEnv(t)
	id := e.addTask(t, "Thesis")

	out := e.mustRun(t, "show", id[:len(id)-4])
	assert.Contains(t, out, "ID: "+id)
}

func TestRemoveTask(t *testing.T) {
	e := setupTestEnv(t)
	id := e.addTask(t, "Thesis")
	e.addTask(t, "Groceries")

	out := e.mustRun(t, "rm", id)
	assert.Contains(t, out, "Deleted: "+id)
	tasks := e.listTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Groceries", tasks[0]["name"])

	// Removing again is not an error.
	e.mustRun(t, "rm", id)
	assert.Len(t, e.listTasks(t), 1)
}

func TestBreakdown(t *testing.T) {
	e := setupTestEnv(t)
	id := e.addTask(t, "Write thesis chapter 3")

	_, errOut, code := e.run(t, "breakdown", id)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "API key")

	e.mustRun(t, "config", "set", "--provider", "deepseek", "--api-key", "sk-test-1234")
	out := e.mustRun(t, "breakdown", id)
	assert.Contains(t, out, "Added 2 steps to Write thesis chapter 3")
	assert.Equal(t, []string{"Write thesis chapter 3"}, e.provider.asked)
	assert.Equal(t, "sk-test-1234", e.lastCfg.APIKey)
	assert.Equal(t, "https://api.deepseek.com/v1", e.lastCfg.BaseURL)

	out = e.mustRun(t, "show", id)
	assert.Contains(t, out, "Open the document (2 min)")
	assert.Contains(t, out, "Write the outline (15 min)")
}

func TestBreakdownFailureLeavesTaskUnchanged(t *testing.T) {
	e := setupTestEnv(t)
	id := e.addTask(t, "Thesis")
	e.mustRun(t, "config", "set", "--api-key", "sk-test-1234")
	e.provider.err = errors.New("provider error: rate limited")

	_, errOut, code := e.run(t, "breakdown", id)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "rate limited")

	tasks := e.listTasks(t)
	assert.Equal(t, float64(0), tasks[0]["total"])
}

func TestExportImportClipboard(t *testing.T) {
	src := setupTestEnv(t)
	id := src.addTask(t, "Thesis")
	src.mustRun(t, "step", "add", id, "Outline", "10")

	out := src.mustRun(t, "export", "--clipboard")
	assert.Contains(t, out, "Copied 1 tasks")
	assert.Contains(t, src.clipboard.text, `"app":"TaskBreaker"`)

	dst := setupTestEnv(t)
	dst.clipboard.text = src.clipboard.text
	out = dst.mustRun(t, "--json", "import", "--clipboard")
	assert.JSONEq(t, `{"imported": 1}`, out)

	out = dst.mustRun(t, "import", "--clipboard")
	assert.Contains(t, out, "Imported 0 new tasks")

	tasks := dst.listTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0]["id"])
	assert.Equal(t, float64(1), tasks[0]["total"])
}

func TestExportImportFile(t *testing.T) {
	src := setupTestEnv(t)
	src.addTask(t, "Thesis")
	src.addTask(t, "Groceries")
	path := filepath.Join(t.TempDir(), "tasks-export.json")

	out := src.mustRun(t, "--json", "export", "--file", path)
	assert.JSONEq(t, `{"exported": 2}`, out)

	dst := setupTestEnv(t)
	out = dst.mustRun(t, "import", "--file", path)
	assert.Contains(t, out, "Imported 2 new tasks")
	assert.Len(t, dst.listTasks(t), 2)
}

func TestExportToStdout(t *testing.T) {
	e := setupTestEnv(t)
	e.addTask(t, "Thesis")

	out := e.mustRun(t, "export")
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "TaskBreaker", payload["app"])
	assert.Contains(t, payload, "data")
}

func TestImportInvalidLeavesStoreUnchanged(t *testing.T) {
	e := setupTestEnv(t)
	e.addTask(t, "Thesis")
	e.clipboard.text = "not an export"

	_, errOut, code := e.run(t, "import", "--clipboard")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid")
	assert.Len(t, e.listTasks(t), 1)
}

func TestMarkdownRoundTrip(t *testing.T) {
	src := setupTestEnv(t)
	id := src.addTask(t, "Thesis")
	src.mustRun(t, "step", "add", id, "Outline", "10")
	src.mustRun(t, "step", "toggle", id, "1")

	_, errOut, code := src.run(t, "export", "--format", "md")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--task")

	path := filepath.Join(t.TempDir(), "thesis.md")
	src.mustRun(t, "export", "--format", "md", "--task", id, "--file", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Thesis")
	assert.Contains(t, string(data), "- [x] Outline")

	dst := setupTestEnv(t)
	out := dst.mustRun(t, "import", "--format", "md", "--file", path)
	assert.Contains(t, out, "Imported 1 new tasks")

	tasks := dst.listTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Thesis", tasks[0]["name"])
	assert.Equal(t, float64(1), tasks[0]["done"])
}

func TestTransferFlagValidation(t *testing.T) {
	e := setupTestEnv(t)
	_, errOut, code := e.run(t, "export", "--file", "x.json", "--clipboard")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "either --file or --clipboard")

	_, errOut, code = e.run(t, "import", "--format", "yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown format")
}

func TestConfigSetAndShow(t *testing.T) {
	e := setupTestEnv(t)

	out := e.mustRun(t, "--json", "config", "show")
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "deepseek", shown["provider"])
	assert.Equal(t, false, shown["configured"])
	assert.Equal(t, e.dir, shown["data_dir"])

	e.mustRun(t, "config", "set", "--provider", "moonshot", "--api-key", "sk-secret-9876")

	out = e.mustRun(t, "config", "show")
	assert.Contains(t, out, "provider: moonshot")
	assert.Contains(t, out, "********9876")
	assert.NotContains(t, out, "sk-secret")

	// The key never reaches the file in plain text.
	data, err := os.ReadFile(filepath.Join(e.dir, settings.SettingsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret-9876")
	assert.Contains(t, string(data), "ENC:")

	// Changing only the model keeps the key and provider.
	e.mustRun(t, "config", "set", "--model", "moonshot-v1-32k")
	out = e.mustRun(t, "--json", "config", "show")
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "moonshot", shown["provider"])
	assert.Equal(t, "moonshot-v1-32k", shown["model"])
	assert.Equal(t, true, shown["configured"])

	_, errOut, code := e.run(t, "config", "set", "--clear-key", "--api-key", "sk-other")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "either --api-key or --clear-key")

	e.mustRun(t, "config", "set", "--clear-key")
	out = e.mustRun(t, "--json", "config", "show")
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, false, shown["configured"])
	assert.Equal(t, "moonshot", shown["provider"])
	assert.Equal(t, "moonshot-v1-32k", shown["model"])

	data, err = os.ReadFile(filepath.Join(e.dir, settings.SettingsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ENC:")
}

func TestConfigSetCustomProviderNote(t *testing.T) {
	e := setupTestEnv(t)
	out := e.mustRun(t, "config", "set", "--provider", "my-llm", "--api-key", "k-123456")
	assert.Contains(t, out, "custom providers need --base-url and --model")

	out = e.mustRun(t, "config", "set", "--base-url", "https://llm.example.com/v1", "--model", "m1")
	assert.NotContains(t, out, "Note:")
}

func TestConfigProviders(t *testing.T) {
	e := setupTestEnv(t)
	out := e.mustRun(t, "config", "providers")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], "* deepseek"), lines[1])

	out = e.mustRun(t, "--json", "config", "providers")
	var entries []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 5)
	assert.Equal(t, "custom", entries[0]["key"])
}

func TestConfigTest(t *testing.T) {
	e := setupTestEnv(t)
	e.mustRun(t, "config", "set", "--api-key", "sk-test-1234")

	assert.Contains(t, e.mustRun(t, "config", "test"), "Connection OK (model deepseek-chat)")

	out := e.mustRun(t, "--json", "config", "test")
	assert.JSONEq(t, `{"ok": true, "model": "deepseek-chat"}`, out)

	e.provider.pingErr = errors.New("provider error: invalid api key")
	_, errOut, code := e.run(t, "config", "test")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid api key")
}

func TestConfigPath(t *testing.T) {
	e := setupTestEnv(t)
	out := e.mustRun(t, "--json", "config", "path")
	var paths map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &paths))
	assert.Equal(t, e.dir, paths["data_dir"])
	assert.Equal(t, filepath.Join(e.dir, store.TasksFile), paths["tasks"])
	assert.Equal(t, filepath.Join(e.dir, settings.SettingsFile), paths["settings"])
	assert.Equal(t, filepath.Join(e.dir, "config.yaml"), paths["config"])
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", maskKey(""))
	assert.Equal(t, "***", maskKey("abc"))
	assert.Equal(t, "********6789", maskKey("sk-123456789"))
}
