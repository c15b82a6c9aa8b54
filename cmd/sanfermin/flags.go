package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"SanFermin/internal/config"
)

const (
	configKey   = "config"
	logLevelKey = "log-level"
	dataKey     = "data"
	durationKey = "duration"
	branchKey   = "branch"
	atKey       = "at"
	metricsKey  = "metrics"
	listenKey   = "listen"
	stepKey     = "step"
	paceKey     = "pace"

	committeeSizeKey = "committee-size"
	thresholdKey     = "threshold"
	roundTimeoutKey  = "round-timeout"
	minPeersKey      = "min-peers"
	strategyKey      = "strategy"
	fanoutKey        = "fanout"
	pairingTimeKey   = "pairing-time"
	sendPeriodKey    = "send-period"
	withStateKey     = "with-state"
	seedKey          = "seed"
	latencyMinKey    = "latency-min"
	latencyMaxKey    = "latency-max"
	unitDelayKey     = "unit-delay"
)

// addGlobalFlags registers the flags shared by every command.
func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String(configKey, "", "TOML configuration file (defaults apply when empty)")
	flags.String(logLevelKey, "info", "Minimum log level: debug, info, warn or error")
}

// addScenarioFlags registers the flags that override configuration values.
func addScenarioFlags(flags *pflag.FlagSet) {
	d := config.Default()

	flags.Int(committeeSizeKey, d.CommitteeSize, "Number of committee members")
	flags.Int(thresholdKey, d.Threshold, "Contributions needed to complete, 0 for two thirds")
	flags.Int64(roundTimeoutKey, d.RoundTimeoutMs, "Round timeout in milliseconds")
	flags.Int(minPeersKey, d.MinPeers, "Minimum base peers per member")
	flags.String(strategyKey, d.Strategy, "Send strategy: all or diff")
	flags.Int(fanoutKey, d.Fanout, "Candidates contacted per round timeout")
	flags.Int64(pairingTimeKey, d.PairingTimeMs, "Aggregate verification time in milliseconds")
	flags.Int64(sendPeriodKey, d.SendPeriodMs, "Delay before pending batches are sent, in milliseconds")
	flags.Bool(withStateKey, d.WithState, "Announce verified sets to base peers")
	flags.Uint64(seedKey, d.Seed, "Random seed")
	flags.Int64(latencyMinKey, d.LatencyMinMs, "Minimum propagation delay in milliseconds")
	flags.Int64(latencyMaxKey, d.LatencyMaxMs, "Maximum propagation delay in milliseconds")
	flags.Int64(unitDelayKey, d.UnitDelayMs, "Transmission time per encoding unit in milliseconds")
}

// loadConfig reads the configuration file if any, then applies the flags set on the command line.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, err := flags.GetString(configKey)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	var firstErr error
	flags.Visit(func(f *pflag.Flag) {
		if firstErr == nil {
			firstErr = applyFlag(cfg, flags, f.Name)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	return cfg, nil
}

// applyFlag copies one explicitly set flag into cfg. Flags that are not scenario flags are ignored.
func applyFlag(cfg *config.Config, flags *pflag.FlagSet, name string) error {
	var err error

	switch name {
	case committeeSizeKey:
		cfg.CommitteeSize, err = flags.GetInt(name)
	case thresholdKey:
		cfg.Threshold, err = flags.GetInt(name)
	case roundTimeoutKey:
		cfg.RoundTimeoutMs, err = flags.GetInt64(name)
	case minPeersKey:
		cfg.MinPeers, err = flags.GetInt(name)
	case strategyKey:
		cfg.Strategy, err = flags.GetString(name)
	case fanoutKey:
		cfg.Fanout, err = flags.GetInt(name)
	case pairingTimeKey:
		cfg.PairingTimeMs, err = flags.GetInt64(name)
	case sendPeriodKey:
		cfg.SendPeriodMs, err = flags.GetInt64(name)
	case withStateKey:
		cfg.WithState, err = flags.GetBool(name)
	case seedKey:
		cfg.Seed, err = flags.GetUint64(name)
	case latencyMinKey:
		cfg.LatencyMinMs, err = flags.GetInt64(name)
	case latencyMaxKey:
		cfg.LatencyMaxMs, err = flags.GetInt64(name)
	case unitDelayKey:
		cfg.UnitDelayMs, err = flags.GetInt64(name)
	}

	if err != nil {
		return fmt.Errorf("flag --%s:\n%w", name, err)
	}

	return nil
}
