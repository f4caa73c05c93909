package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Mode selects what App.Run does.
type Mode string

const (
	// ModeRun executes one blueprint and prints its result.
	ModeRun Mode = "run"
	// ModeServe serves the engine over HTTP and WebSocket until cancelled.
	ModeServe Mode = "serve"
	// ModeStdio serves the engine on standard input and output.
	ModeStdio Mode = "stdio"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Mode Mode
	// BlueprintPath is an .hcl file or a directory of them.
	BlueprintPath string
	// BlueprintID selects the blueprint to run. It may be empty when the
	// path defines exactly one.
	BlueprintID string
	// Input is the JSON object passed as the execution input in run mode.
	Input string

	Listen string

	LogFormat string
	LogLevel  string

	Workers        int
	RateLimit      int
	RateWindow     time.Duration
	ResultTTL      time.Duration
	ExecuteTimeout time.Duration
}

// NewConfig validates cfg and fills in the mode.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeRun
	}
	switch cfg.Mode {
	case ModeRun:
		if cfg.BlueprintPath == "" {
			return nil, errors.New("BlueprintPath is a required configuration field in run mode")
		}
	case ModeServe:
		if cfg.Listen == "" {
			return nil, errors.New("Listen is a required configuration field in serve mode")
		}
	case ModeStdio:
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Input != "" {
		var probe map[string]any
		if err := json.Unmarshal([]byte(cfg.Input), &probe); err != nil {
			return nil, fmt.Errorf("input must be a JSON object: %w", err)
		}
	}
	if cfg.RateLimit < 0 || cfg.Workers < 0 {
		return nil, errors.New("workers and rate limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateWindow <= 0 {
		return nil, errors.New("a rate limit needs a positive rate window")
	}
	return &cfg, nil
}

func (c *Config) input() map[string]any {
	if c.Input == "" {
		return nil
	}
	var in map[string]any
	_ = json.Unmarshal([]byte(c.Input), &in)
	return in
}
