// Package config provides configuration for the doctor agent.
//
// Sources (priority order, high to low):
//  1. Environment variables (RASPIDOCTOR_* prefix, plus OLLAMA_HOST/OLLAMA_MODEL)
//  2. YAML config file (default: ./config.yaml)
//  3. Built-in defaults
//
// Missing keys always fall back to defaults rather than erroring, so a
// partial or absent config file never stops the agent.
package config

import "time"

// Config holds all agent configuration.
type Config struct {
	// Thresholds trigger the static decision rules.
	Thresholds Thresholds

	// Actions are the auto_<action> feature toggles. A missing key means
	// enabled; only an explicit false disables an action.
	Actions map[string]bool

	// Learning tunes the pattern/trend machinery.
	Learning Learning

	// Ollama configures the optional AI fallback advisor.
	Ollama Ollama

	// Database configuration.
	Database struct {
		Path string
	}

	// Logging configuration.
	Logging struct {
		Level string
		Dir   string
	}

	// Metrics configures the prometheus exposition listener.
	Metrics Metrics

	// Agent loop configuration.
	Agent Agent
}

// Thresholds are the numeric trip points for the static rule table.
type Thresholds struct {
	CPUTemp      float64
	MemoryUsage  float64
	DiskUsage    float64
	Load15Min    float64
	FailedLogins int
	PacketLoss   float64
	Latency      float64
}

// Learning tunes the knowledge-base behavior.
type Learning struct {
	PatternMemorySize  int
	MinOccurrences     int
	TrendAnalysisHours int
}

// Ollama points the fallback advisor at a local model server.
type Ollama struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Retries        int
}

// Metrics configures the prometheus exposition listener. The listener binds
// loopback by default so counters stay on-host unless deliberately exposed.
type Metrics struct {
	Enabled bool
	Listen  string
}

// Agent configures the supervising loop.
type Agent struct {
	IntervalMinutes       int
	CommandTimeoutSeconds int
}

// Interval returns the cycle interval as a duration.
func (a Agent) Interval() time.Duration {
	return time.Duration(a.IntervalMinutes) * time.Minute
}

// CommandTimeout returns the per-command deadline as a duration.
func (a Agent) CommandTimeout() time.Duration {
	return time.Duration(a.CommandTimeoutSeconds) * time.Second
}

// TrendWindow returns the trend-analysis window as a duration.
func (l Learning) TrendWindow() time.Duration {
	return time.Duration(l.TrendAnalysisHours) * time.Hour
}

// ActionEnabled reports whether the auto_<action> toggle permits an action.
// Unspecified toggles default to true.
func (c *Config) ActionEnabled(action string) bool {
	enabled, ok := c.Actions["auto_"+action]
	if !ok {
		return true
	}
	return enabled
}
