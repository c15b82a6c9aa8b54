package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"SanFermin/internal/committee"
	"SanFermin/internal/config"
)

func TestCollectorReadsStats(t *testing.T) {
	stats := committee.Stats{
		Time:          1200,
		Members:       100,
		Completed:     42,
		BatchesSent:   900,
		UnitsSent:     3100,
		Verifications: 77,
		FirstDone:     310,
		LastDone:      1180,
	}

	c := NewCollector(func() committee.Stats { return stats }, nil)

	require.Equal(t, 13, testutil.CollectAndCount(c))

	expected := `
# HELP sanfermin_completed_members Members that reached the threshold.
# TYPE sanfermin_completed_members gauge
sanfermin_completed_members 42
# HELP sanfermin_units_sent_total Encoding cost units sent.
# TYPE sanfermin_units_sent_total counter
sanfermin_units_sent_total 3100
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"sanfermin_completed_members", "sanfermin_units_sent_total"))

	// Values follow the source on every collect
	stats.Completed = 100
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(strings.ReplaceAll(expected, " 42", " 100")),
		"sanfermin_completed_members", "sanfermin_units_sent_total"))
}

func TestCompletionHistogram(t *testing.T) {
	results := []committee.Result{
		{ID: 0, Completed: true, CompletedAt: 50},
		{ID: 1, Completed: true, CompletedAt: 150},
		{ID: 2},
	}

	h := CompletionHistogram(results, []float64{100, 200})

	expected := `
# HELP sanfermin_completion_time_ms Virtual time at which members reached the threshold.
# TYPE sanfermin_completion_time_ms histogram
sanfermin_completion_time_ms_bucket{le="100"} 1
sanfermin_completion_time_ms_bucket{le="200"} 2
sanfermin_completion_time_ms_bucket{le="+Inf"} 2
sanfermin_completion_time_ms_sum 200
sanfermin_completion_time_ms_count 2
`
	require.NoError(t, testutil.CollectAndCompare(h, strings.NewReader(expected)))
}

func TestRegistryFromCommittee(t *testing.T) {
	c, err := committee.New(config.Default())
	require.NoError(t, err)
	require.NoError(t, c.Init())
	require.NoError(t, c.RunUntilDone(30_000))

	reg, err := NewRegistry(c, prometheus.LinearBuckets(0, 250, 8))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, WriteFile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "sanfermin_completed_members 100")
	require.Contains(t, string(data), "sanfermin_completion_time_ms_count 100")
}
