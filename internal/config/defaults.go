package config

// DefaultConfig returns a configuration with all default values. These match
// the documented defaults of the agent and are the base every other source
// merges over.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Thresholds = Thresholds{
		CPUTemp:      75.0,
		MemoryUsage:  85.0,
		DiskUsage:    90.0,
		Load15Min:    3.0,
		FailedLogins: 10,
		PacketLoss:   5.0,
		Latency:      100.0,
	}

	cfg.Actions = map[string]bool{
		"auto_ban_ip":                  true,
		"auto_restart_failed_services": true,
		"auto_optimize_network":        true,
		"auto_clear_cache":             true,
		"auto_manage_services":         true,
		"auto_learn_patterns":          true,
	}

	cfg.Learning = Learning{
		PatternMemorySize:  1000,
		MinOccurrences:     3,
		TrendAnalysisHours: 72,
	}

	cfg.Ollama = Ollama{
		BaseURL:        "http://127.0.0.1:11434",
		Model:          "phi3:mini",
		TimeoutSeconds: 60,
		Retries:        2,
	}

	cfg.Database.Path = "/var/log/ai_health/knowledge.db"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "/var/log/ai_health"

	cfg.Metrics = Metrics{
		Enabled: true,
		Listen:  "127.0.0.1:9102",
	}

	cfg.Agent = Agent{
		IntervalMinutes:       5,
		CommandTimeoutSeconds: 30,
	}

	return cfg
}
