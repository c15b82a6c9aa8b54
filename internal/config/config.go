package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"SanFermin/internal/aggregation"
	"SanFermin/internal/network"
)

// Config holds the parameters of one simulation run.
type Config struct {
	// CommitteeSize is the number of signing members N.
	CommitteeSize int `toml:"committee_size"`

	// Threshold is the number of verified contributions a member needs to complete.
	// Zero selects a two-thirds quorum.
	Threshold int `toml:"threshold"`

	// RoundTimeoutMs is the delay between round driver steps.
	RoundTimeoutMs int64 `toml:"round_timeout_ms"`

	// MinPeers is the minimum number of base peers per member.
	MinPeers int `toml:"min_peers"`

	// Strategy is the send strategy, "all" or "diff".
	Strategy string `toml:"strategy"`

	// Fanout is the number of candidates contacted per round timeout.
	Fanout int `toml:"fanout"`

	// PairingTimeMs is the verification cost.
	PairingTimeMs int64 `toml:"pairing_time_ms"`

	// SendPeriodMs is the debounce delay before pending batches are sent.
	SendPeriodMs int64 `toml:"send_period_ms"`

	// WithState makes members announce their verified set to base peers.
	WithState bool `toml:"with_state"`

	// Seed seeds every random draw of the run.
	Seed uint64 `toml:"seed"`

	// LatencyMinMs and LatencyMaxMs bound the uniform propagation delay.
	LatencyMinMs int64 `toml:"latency_min_ms"`
	LatencyMaxMs int64 `toml:"latency_max_ms"`

	// UnitDelayMs is the transmission time per encoding unit.
	UnitDelayMs int64 `toml:"unit_delay_ms"`
}

// Default returns the reference scenario: 100 members, threshold 60, 10 base peers,
// differential sends, 2ms verification and a 20ms send period.
func Default() *Config {
	return &Config{
		CommitteeSize:  100,
		Threshold:      60,
		RoundTimeoutMs: 100,
		MinPeers:       10,
		Strategy:       "diff",
		Fanout:         4,
		PairingTimeMs:  2,
		SendPeriodMs:   20,
		LatencyMinMs:   10,
		LatencyMaxMs:   80,
	}
}

// Load reads a TOML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s:\n%w", path, err)
	}

	if err := checkUndecoded(md); err != nil {
		return nil, fmt.Errorf("%s:\n%w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse reads TOML text over the defaults and validates the result.
func Parse(data string) (*Config, error) {
	cfg := Default()

	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config:\n%w", err)
	}

	if err := checkUndecoded(md); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checkUndecoded fails on keys that match no field.
func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}

	sort.Strings(keys)

	return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
}

// QuorumSize returns the two-thirds quorum of a committee of n, rounded up.
func QuorumSize(n int) int {
	return (n*67 + 99) / 100
}

// Quorum returns the effective threshold.
func (c *Config) Quorum() int {
	if c.Threshold == 0 {
		return QuorumSize(c.CommitteeSize)
	}

	return c.Threshold
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.CommitteeSize <= 0 {
		return fmt.Errorf("committee_size must be positive, got %d", c.CommitteeSize)
	}

	if q := c.Quorum(); q < 1 || q > c.CommitteeSize {
		return fmt.Errorf("threshold %d outside [1, %d]", q, c.CommitteeSize)
	}

	if c.MinPeers < 0 || (c.CommitteeSize > 1 && c.MinPeers >= c.CommitteeSize) {
		return fmt.Errorf("min_peers %d needs a committee larger than %d", c.MinPeers, c.CommitteeSize)
	}

	if _, err := aggregation.ParseStrategy(c.Strategy); err != nil {
		return err
	}

	if c.Fanout < 1 {
		return fmt.Errorf("fanout must be positive, got %d", c.Fanout)
	}

	if c.RoundTimeoutMs <= 0 {
		return fmt.Errorf("round_timeout_ms must be positive, got %d", c.RoundTimeoutMs)
	}

	if c.PairingTimeMs < 0 || c.SendPeriodMs < 0 || c.UnitDelayMs < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	if c.LatencyMinMs < 0 || c.LatencyMaxMs < c.LatencyMinMs {
		return fmt.Errorf("invalid latency range [%d, %d]", c.LatencyMinMs, c.LatencyMaxMs)
	}

	return nil
}

// Params converts the configuration to protocol parameters.
func (c *Config) Params() (*aggregation.Params, error) {
	strategy, err := aggregation.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}

	p := &aggregation.Params{
		Size:         c.CommitteeSize,
		Threshold:    c.Quorum(),
		Strategy:     strategy,
		Fanout:       c.Fanout,
		RoundTimeout: c.RoundTimeoutMs,
		PairingTime:  c.PairingTimeMs,
		SendPeriod:   c.SendPeriodMs,
		UnitDelay:    c.UnitDelayMs,
		WithState:    c.WithState,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Latency returns the propagation model of the configuration.
func (c *Config) Latency() network.Latency {
	return network.Uniform{Min: c.LatencyMinMs, Max: c.LatencyMaxMs}
}

// Clone returns a copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
