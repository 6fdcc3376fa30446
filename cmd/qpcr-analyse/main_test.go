package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/fsutil"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/monitoring"
)

func writeRunCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("well,channel,cycle,rfu,imported_cq\n")
	for c := 1; c <= 40; c++ {
		rfu := 100 + 1000/(1+math.Exp(-0.5*(float64(c)-22)))
		fmt.Fprintf(&b, "A1,FAM,%d,%.4f,21.7\n", c, rfu)
		fmt.Fprintf(&b, "A2,FAM,%d,100,\n", c)
	}
	path := filepath.Join(dir, "run.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestParseFlags(t *testing.T) {
	cfg := parseFlags([]string{"-input", "run.csv", "-workers", "3", "-json", "out.json", "-quiet"})
	assert.Equal(t, "run.csv", cfg.InputFile)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "out.json", cfg.OutputJSON)
	assert.True(t, cfg.Quiet)
	assert.False(t, cfg.ShowVersion)
}

func TestRun(t *testing.T) {
	monitoring.SetLogger(nil)
	dir := t.TempDir()
	input := writeRunCSV(t, dir)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), Config{InputFile: input, Quiet: true, Workers: 2}, fsutil.OSFileSystem{}, &out))

	var got struct {
		RunID   string `json:"run_id"`
		Results []struct {
			Well           string   `json:"well"`
			CqValue        *float64 `json:"cq_value"`
			Classification struct {
				Class  string `json:"class"`
				Strict string `json:"strict"`
			} `json:"classification"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.NotEmpty(t, got.RunID)
	require.Len(t, got.Results, 2)

	assert.Equal(t, "A1", got.Results[0].Well)
	assert.Equal(t, "POS", got.Results[0].Classification.Strict)
	require.NotNil(t, got.Results[0].CqValue)
	assert.Equal(t, 21.7, *got.Results[0].CqValue)

	assert.Equal(t, "A2", got.Results[1].Well)
	assert.Equal(t, "NEG", got.Results[1].Classification.Strict)
	assert.Nil(t, got.Results[1].CqValue)
}

func TestRunExportsJSON(t *testing.T) {
	monitoring.SetLogger(nil)
	dir := t.TempDir()
	input := writeRunCSV(t, dir)
	output := filepath.Join(dir, "results.json")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), Config{InputFile: input, OutputJSON: output, Quiet: true}, fsutil.OSFileSystem{}, &out))
	assert.Zero(t, out.Len())

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
}

func TestRunMemoryFileSystem(t *testing.T) {
	monitoring.SetLogger(nil)
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("plate.json", []byte(`[{"well":"A1","channel":"FAM","cycles":[1,2,3],"readings":[100,101,102]}]`))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), Config{InputFile: "plate.json", OutputJSON: "results.json", Quiet: true}, fsys, &out))

	data, err := fsys.ReadFile("results.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"well": "A1"`)
	assert.Contains(t, string(data), `"insufficient_data"`)
}

func TestRunRecordsInvalidWell(t *testing.T) {
	monitoring.SetLogger(nil)

	cycles := make([]string, 40)
	readings := make([]string, 40)
	for i := range cycles {
		c := float64(i + 1)
		cycles[i] = fmt.Sprintf("%g", c)
		readings[i] = fmt.Sprintf("%.4f", 100+1000/(1+math.Exp(-0.5*(c-22))))
	}
	plate := fmt.Sprintf(`[
  {"well": "A1", "channel": "FAM", "cycles": [%s], "readings": [%s]},
  {"well": "A2", "channel": "FAM", "cycles": [1, 2, 3], "readings": [100, 101]}
]`, strings.Join(cycles, ", "), strings.Join(readings, ", "))

	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("plate.json", []byte(plate))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), Config{InputFile: "plate.json", Quiet: true}, fsys, &out))

	var got struct {
		Results []struct {
			Well           string `json:"well"`
			Error          string `json:"error"`
			Classification struct {
				Strict string `json:"strict"`
			} `json:"classification"`
		} `json:"results"`
		Summary struct {
			Wells   int `json:"wells"`
			Invalid int `json:"invalid"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got.Summary.Wells)
	assert.Equal(t, 1, got.Summary.Invalid)

	require.Len(t, got.Results, 2)
	assert.Equal(t, "A1", got.Results[0].Well)
	assert.Empty(t, got.Results[0].Error)
	assert.Equal(t, "POS", got.Results[0].Classification.Strict)
	assert.Equal(t, "A2", got.Results[1].Well)
	assert.Contains(t, got.Results[1].Error, "3 cycles but 2 readings")
}

func TestRunErrors(t *testing.T) {
	monitoring.SetLogger(nil)
	dir := t.TempDir()
	input := writeRunCSV(t, dir)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0644))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing input", Config{InputFile: filepath.Join(dir, "absent.csv"), Quiet: true}},
		{"no curves", Config{InputFile: empty, Quiet: true}},
		{"bad config", Config{InputFile: input, ConfigFile: filepath.Join(dir, "absent.yaml"), Quiet: true}},
		{"export outside allowed dirs", Config{InputFile: input, OutputJSON: "/etc/qpcr-results.json", Quiet: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(context.Background(), tt.cfg, fsutil.OSFileSystem{}, &out))
		})
	}
}
