package integration

import (
	"testing"

	"SanFermin/internal/committee"
	"SanFermin/internal/config"
)

// runLimit bounds every scenario in virtual milliseconds.
const runLimit = 120_000

// ScenarioOption configures a scenario.
type ScenarioOption func(*config.Config)

// WithThreshold sets the completion threshold, 0 for two thirds.
func WithThreshold(n int) ScenarioOption {
	return func(c *config.Config) { c.Threshold = n }
}

// WithStrategy sets the send strategy.
func WithStrategy(s string) ScenarioOption {
	return func(c *config.Config) { c.Strategy = s }
}

// WithMinPeers sets the base peer count.
func WithMinPeers(n int) ScenarioOption {
	return func(c *config.Config) { c.MinPeers = n }
}

// WithSeed sets the random seed.
func WithSeed(seed uint64) ScenarioOption {
	return func(c *config.Config) { c.Seed = seed }
}

// WithState enables verified set announcements.
func WithState() ScenarioOption {
	return func(c *config.Config) { c.WithState = true }
}

// WithUnitDelay sets the transmission time per encoding unit.
func WithUnitDelay(ms int64) ScenarioOption {
	return func(c *config.Config) { c.UnitDelayMs = ms }
}

// WithLatency sets the propagation delay range.
func WithLatency(minMs, maxMs int64) ScenarioOption {
	return func(c *config.Config) { c.LatencyMinMs, c.LatencyMaxMs = minMs, maxMs }
}

// NewScenario creates and initializes a committee of size members.
func NewScenario(t *testing.T, size int, options ...ScenarioOption) *committee.Committee {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := config.Default()
	cfg.CommitteeSize = size
	cfg.Threshold = 0

	for _, o := range options {
		o(cfg)
	}

	c, err := committee.New(cfg)
	if err != nil {
		t.Fatalf("create committee: %v", err)
	}

	if err := c.Init(); err != nil {
		t.Fatalf("init committee: %v", err)
	}

	return c
}

// runToCompletion runs c until every member completed and fails the test otherwise.
func runToCompletion(t *testing.T, c *committee.Committee) committee.Stats {
	t.Helper()

	if err := c.RunUntilDone(runLimit); err != nil {
		t.Fatalf("run: %v", err)
	}

	s := c.Stats()
	if s.Completed != s.Members {
		t.Fatalf("only %d/%d members completed by %dms", s.Completed, s.Members, s.Time)
	}

	t.Logf("%d members done in [%d, %d]ms, %d batches, %d units, %d verifications",
		s.Members, s.FirstDone, s.LastDone, s.BatchesSent, s.UnitsSent, s.Verifications)

	return s
}

// verifyThreshold checks that every member verified at least its threshold.
func verifyThreshold(t *testing.T, c *committee.Committee) {
	t.Helper()

	quorum := c.Config().Quorum()

	for _, r := range c.Results() {
		if r.Verified < quorum {
			t.Errorf("member %d completed with %d < %d contributions", r.ID, r.Verified, quorum)
		}
	}
}
