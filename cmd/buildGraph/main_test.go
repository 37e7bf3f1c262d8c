package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `[
  {
    "system_info": {"num_cpu": 8},
    "benchmarks": [
      {"implementation": "A", "gomaxprocs": 2, "num_producers": 1, "num_consumers": 1, "num_messages_consumed": 1000, "actual_elapsed": "1ms"},
      {"implementation": "A", "gomaxprocs": 2, "num_producers": 1, "num_consumers": 1, "num_messages_consumed": 500, "actual_elapsed": "1ms"},
      {"implementation": "B", "num_producers": 2, "num_consumers": 2, "num_messages_consumed": 100, "actual_elapsed": "1ms"},
      {"implementation": "B", "num_producers": 2, "num_consumers": 2, "num_messages_consumed": 0, "actual_elapsed": "1ms"},
      {"implementation": "B", "num_producers": 2, "num_consumers": 2, "num_messages_consumed": 10, "actual_elapsed": "bogus"}
    ],
    "transfers": [{"implementation": "A", "ns_per_item": 120, "verified": true}]
  },
  {
    "system_info": {"num_cpu": 8},
    "transfers": [
      {"implementation": "A", "ns_per_item": 90, "verified": true},
      {"implementation": "B", "ns_per_item": 300, "verified": false}
    ]
  },
  {"system_info": {"num_cpu": 8}}
]`

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))
	return path
}

func TestCollectSamples(t *testing.T) {
	sessions, err := loadSessions(writeReport(t))
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	samples := collectSamples(sessions)
	assert.Equal(t, []float64{1000, 2000}, samples[2]["A"][2])
	// No gomaxprocs recorded: falls back to the session's CPU count.
	assert.Equal(t, []float64{10000}, samples[8]["B"][4])
}

func TestLastTransfersSkipsEmptySessions(t *testing.T) {
	sessions, err := loadSessions(writeReport(t))
	require.NoError(t, err)

	got := lastTransfers(sessions)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[1].Implementation)
	assert.False(t, got[1].Verified)
	assert.Nil(t, lastTransfers(nil))
}

func TestLoadSessionsErrors(t *testing.T) {
	_, err := loadSessions(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = loadSessions(bad)
	require.Error(t, err)
}

func TestSavePlots(t *testing.T) {
	sessions, err := loadSessions(writeReport(t))
	require.NoError(t, err)
	dir := t.TempDir()

	latency := filepath.Join(dir, "latency.png")
	require.NoError(t, saveLatencyPlot(latency, 2, collectSamples(sessions)[2]))
	transfer := filepath.Join(dir, "transfer.png")
	require.NoError(t, saveTransferPlot(transfer, lastTransfers(sessions)))

	for _, f := range []string{latency, transfer} {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
