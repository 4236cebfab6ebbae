package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "optiongreeks", c.Server.Name)
	assert.Equal(t, 8080, c.Server.HTTP.Port)
	assert.Equal(t, 100, c.Pricing.TreeSteps)
	assert.InDelta(t, 0.01, c.Pricing.FDStepSpot, 1e-12)
	assert.Equal(t, time.Minute, c.Pricing.MemoTTL)
	assert.Equal(t, "sqlite", c.Data.Database.Driver)
	assert.Equal(t, ":8080", c.Server.Addr())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[server]
name = "greeks-test"
environment = "test"
[server.http]
port = 9090

[pricing]
tree_steps = 250
calendar = "weekends"
memo_ttl = "30s"
`)
	t.Setenv("APP_PRICING_IV_MAX_ITERATIONS", "50")

	var c Config
	require.NoError(t, Load(path, &c))
	assert.Equal(t, "greeks-test", c.Server.Name)
	assert.Equal(t, 9090, c.Server.HTTP.Port)
	assert.Equal(t, 250, c.Pricing.TreeSteps)
	assert.Equal(t, "weekends", c.Pricing.Calendar)
	assert.Equal(t, 30*time.Second, c.Pricing.MemoTTL)
	assert.Equal(t, 50, c.Pricing.IVMaxIterations)
	// 文件未给出的项取默认值
	assert.Equal(t, "/metrics", c.Metrics.Path)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
[server]
environment = "staging"
`)
	var c Config
	err := Load(path, &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestLoadMissingFile(t *testing.T) {
	var c Config
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.toml"), &c))
}

func TestRedact(t *testing.T) {
	tree := map[string]any{
		"Data": map[string]any{
			"Database": map[string]any{"DSN": "root:pw@tcp(db)/x", "Driver": "mysql"},
			"Redis":    map[string]any{"Password": "hunter2", "Addrs": []any{"r:6379"}},
		},
		"Brokers": []any{map[string]any{"Token": "abc"}},
	}
	redact(tree)

	data := tree["Data"].(map[string]any)
	assert.Equal(t, "******", data["Database"].(map[string]any)["DSN"])
	assert.Equal(t, "mysql", data["Database"].(map[string]any)["Driver"])
	assert.Equal(t, "******", data["Redis"].(map[string]any)["Password"])
	assert.Equal(t, []any{"r:6379"}, data["Redis"].(map[string]any)["Addrs"])
	assert.Equal(t, "******", tree["Brokers"].([]any)[0].(map[string]any)["Token"])
}
