package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestGreeksCommand(t *testing.T) {
	out, err := run(t, "greeks",
		"--underlying", "SPY", "--strike", "100", "--expiry", "2024-07-01",
		"--spot", "100", "--vol", "0.2", "--date", "2024-01-02")
	require.NoError(t, err, out)

	var g struct {
		ContractID string  `json:"contract_id"`
		Delta      float64 `json:"delta"`
		Vega       float64 `json:"vega"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &g), out)
	assert.Equal(t, "SPY240701C00100000", g.ContractID)
	assert.Greater(t, g.Delta, 0.5)
	assert.Greater(t, g.Vega, 0.0)
}

func TestGreeksCommandMissingFlags(t *testing.T) {
	_, err := run(t, "greeks", "--underlying", "SPY")
	assert.Error(t, err)
}

func TestExplainCommand(t *testing.T) {
	dir := t.TempDir()
	position := `{
		"underlying": "SPY",
		"trades": [{"contract_id": "SPY240701C00100000", "direction": "buy", "quantity": 5, "time": "2024-01-02T15:00:00Z"}],
		"snapshots": [
			{"contract_id": "SPY240701C00100000", "underlying": "SPY", "time": "2024-01-02T15:00:00Z",
			 "bid": 5, "ask": 5.2, "underlying_bid": 100, "underlying_ask": 100, "greeks": {"delta": 0.5}},
			{"contract_id": "SPY240701C00100000", "underlying": "SPY", "time": "2024-01-03T15:00:00Z",
			 "bid": 5.5, "ask": 5.7, "underlying_bid": 101, "underlying_ask": 101}
		]
	}`
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(a, []byte(position), 0o600))
	require.NoError(t, os.WriteFile(b, []byte(position), 0o600))

	out, err := run(t, "explain", a, b)
	require.NoError(t, err, out)
	rows, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "pl_delta")

	out, err = run(t, "explain", "--format", "json", a)
	require.NoError(t, err, out)
	var reports []struct {
		Delta float64 `json:"delta"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.InDelta(t, 250.0, reports[0].Delta, 1e-9)
}

func TestExplainCommandBadFile(t *testing.T) {
	_, err := run(t, "explain", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
