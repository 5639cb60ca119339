package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider is the read side of Manager. Components that must observe file
// reloads call Get each cycle instead of holding the pointer from startup;
// every Get returns the latest loaded snapshot.
type Provider interface {
	Get() *Config
}

// Static wraps a fixed Config in a Provider, for tests and one-shot runs.
func Static(cfg *Config) Provider { return staticProvider{cfg} }

type staticProvider struct{ cfg *Config }

func (p staticProvider) Get() *Config { return p.cfg }

// Manager loads, validates and watches configuration.
type Manager interface {
	Provider

	// Load reads configuration from all sources.
	Load(ctx context.Context) error

	// Validate checks the loaded configuration is usable.
	Validate() error

	// Watch emits a fresh Config whenever the file changes on disk.
	Watch(ctx context.Context) <-chan Config
}

// NewManager creates a Manager reading the given YAML file. The file is
// optional; defaults and environment variables apply either way.
func NewManager(configPath string) Manager {
	return &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
}

type viperManager struct {
	configPath string
	viper      *viper.Viper
	watchChan  chan Config

	mu     sync.RWMutex
	config *Config
}

func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("RASPIDOCTOR")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		// Absent config file is fine: defaults plus env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		} else if os.IsNotExist(err) {
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	m.unmarshalConfig()
	return nil
}

func (m *viperManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *viperManager) Validate() error {
	cfg := m.Get()
	var errs []string
	t := cfg.Thresholds
	if t.CPUTemp <= 0 {
		errs = append(errs, "thresholds.cpu_temp must be positive")
	}
	if t.MemoryUsage <= 0 || t.MemoryUsage > 100 {
		errs = append(errs, "thresholds.memory_usage must be in (0,100]")
	}
	if t.DiskUsage <= 0 || t.DiskUsage > 100 {
		errs = append(errs, "thresholds.disk_usage must be in (0,100]")
	}
	if cfg.Agent.IntervalMinutes <= 0 {
		errs = append(errs, "agent.interval_minutes must be positive")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen must be set when metrics.enabled is true")
	}
	if cfg.Learning.TrendAnalysisHours <= 0 {
		errs = append(errs, "learning.trend_analysis_hours must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.unmarshalConfig()
		select {
		case m.watchChan <- *m.Get():
		default:
			// Channel full, skip this update.
		}
	})
	return m.watchChan
}

func (m *viperManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("thresholds.cpu_temp", d.Thresholds.CPUTemp)
	m.viper.SetDefault("thresholds.memory_usage", d.Thresholds.MemoryUsage)
	m.viper.SetDefault("thresholds.disk_usage", d.Thresholds.DiskUsage)
	m.viper.SetDefault("thresholds.load_15min", d.Thresholds.Load15Min)
	m.viper.SetDefault("thresholds.failed_logins", d.Thresholds.FailedLogins)
	m.viper.SetDefault("thresholds.packet_loss", d.Thresholds.PacketLoss)
	m.viper.SetDefault("thresholds.latency", d.Thresholds.Latency)

	for action, enabled := range d.Actions {
		m.viper.SetDefault("actions."+action, enabled)
	}

	m.viper.SetDefault("learning.pattern_memory_size", d.Learning.PatternMemorySize)
	m.viper.SetDefault("learning.min_occurrences_for_learning", d.Learning.MinOccurrences)
	m.viper.SetDefault("learning.trend_analysis_hours", d.Learning.TrendAnalysisHours)

	m.viper.SetDefault("ollama.base_url", d.Ollama.BaseURL)
	m.viper.SetDefault("ollama.model", d.Ollama.Model)
	m.viper.SetDefault("ollama.timeout_seconds", d.Ollama.TimeoutSeconds)
	m.viper.SetDefault("ollama.retries", d.Ollama.Retries)

	m.viper.SetDefault("database.path", d.Database.Path)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.dir", d.Logging.Dir)

	m.viper.SetDefault("metrics.enabled", d.Metrics.Enabled)
	m.viper.SetDefault("metrics.listen", d.Metrics.Listen)

	m.viper.SetDefault("agent.interval_minutes", d.Agent.IntervalMinutes)
	m.viper.SetDefault("agent.command_timeout_seconds", d.Agent.CommandTimeoutSeconds)
}

func (m *viperManager) unmarshalConfig() {
	cfg := &Config{}

	cfg.Thresholds.CPUTemp = m.viper.GetFloat64("thresholds.cpu_temp")
	cfg.Thresholds.MemoryUsage = m.viper.GetFloat64("thresholds.memory_usage")
	cfg.Thresholds.DiskUsage = m.viper.GetFloat64("thresholds.disk_usage")
	cfg.Thresholds.Load15Min = m.viper.GetFloat64("thresholds.load_15min")
	cfg.Thresholds.FailedLogins = m.viper.GetInt("thresholds.failed_logins")
	cfg.Thresholds.PacketLoss = m.viper.GetFloat64("thresholds.packet_loss")
	cfg.Thresholds.Latency = m.viper.GetFloat64("thresholds.latency")

	cfg.Actions = map[string]bool{}
	for action := range m.viper.GetStringMap("actions") {
		cfg.Actions[action] = m.viper.GetBool("actions." + action)
	}

	cfg.Learning.PatternMemorySize = m.viper.GetInt("learning.pattern_memory_size")
	cfg.Learning.MinOccurrences = m.viper.GetInt("learning.min_occurrences_for_learning")
	cfg.Learning.TrendAnalysisHours = m.viper.GetInt("learning.trend_analysis_hours")

	cfg.Ollama.BaseURL = m.viper.GetString("ollama.base_url")
	cfg.Ollama.Model = m.viper.GetString("ollama.model")
	cfg.Ollama.TimeoutSeconds = m.viper.GetInt("ollama.timeout_seconds")
	cfg.Ollama.Retries = m.viper.GetInt("ollama.retries")

	cfg.Database.Path = m.viper.GetString("database.path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Dir = m.viper.GetString("logging.dir")

	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.Listen = m.viper.GetString("metrics.listen")

	cfg.Agent.IntervalMinutes = m.viper.GetInt("agent.interval_minutes")
	cfg.Agent.CommandTimeoutSeconds = m.viper.GetInt("agent.command_timeout_seconds")

	applyEnvOverrides(cfg)

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// applyEnvOverrides honors the environment variables the original deployment
// already used for the model server.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Ollama.BaseURL = host
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.Ollama.Model = model
	}
}
