package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"browser-engine/src/internal/constants"
)

// Config contains the full engine configuration
type Config struct {
	Monitor   *MonitorConfig   `yaml:"monitor"`
	Cache     *CacheConfig     `yaml:"cache"`
	Tabs      *TabConfig       `yaml:"tabs"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	Gateway   *GatewayConfig   `yaml:"gateway"`
}

// MonitorConfig controls resource sampling and pressure classification
type MonitorConfig struct {
	SampleInterval    time.Duration `yaml:"sample_interval"`
	MediumThreshold   float64       `yaml:"medium_threshold"`
	HighThreshold     float64       `yaml:"high_threshold"`
	CriticalThreshold float64       `yaml:"critical_threshold"`
}

// CacheConfig controls the predictive cache budget and scoring
type CacheConfig struct {
	BudgetMB           int           `yaml:"budget_mb"`
	AdmissionThreshold float64       `yaml:"admission_threshold"`
	EntryTTL           time.Duration `yaml:"entry_ttl"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	StoragePath        string        `yaml:"storage_path,omitempty"`
}

// TabConfig controls suspension eligibility
type TabConfig struct {
	IdleThreshold  time.Duration `yaml:"idle_threshold"`
	MaxSuspensions int           `yaml:"max_suspensions"`
}

// SchedulerConfig controls the worker pool and retry policy
type SchedulerConfig struct {
	Workers         int           `yaml:"workers"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffCap      time.Duration `yaml:"backoff_cap"`
	TaskMaxDuration time.Duration `yaml:"task_max_duration"`
}

// GatewayConfig controls the HTTP gateway
type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so partial files stay valid
	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Cache == nil {
		return fmt.Errorf("cache configuration is required")
	}
	if config.Cache.BudgetMB <= 0 {
		return fmt.Errorf("cache budget must be positive, got %d MB", config.Cache.BudgetMB)
	}
	if config.Cache.AdmissionThreshold < 0 || config.Cache.AdmissionThreshold > 1 {
		return fmt.Errorf("admission threshold must be in [0,1], got %f", config.Cache.AdmissionThreshold)
	}
	if config.Monitor != nil {
		m := config.Monitor
		if !(m.MediumThreshold < m.HighThreshold && m.HighThreshold < m.CriticalThreshold) {
			return fmt.Errorf("pressure thresholds must be strictly increasing")
		}
	}
	if config.Scheduler != nil {
		if config.Scheduler.Workers <= 0 {
			return fmt.Errorf("scheduler workers must be positive, got %d", config.Scheduler.Workers)
		}
		if config.Scheduler.MaxAttempts <= 0 {
			return fmt.Errorf("scheduler max attempts must be positive, got %d", config.Scheduler.MaxAttempts)
		}
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".browser-engine", "config.yaml")
}

// GetDefaultStoragePath returns the default snapshot storage directory
func GetDefaultStoragePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".browser-engine", "snapshots")
}

// GetDefaultConfig returns the default engine configuration
func GetDefaultConfig() *Config {
	return &Config{
		Monitor: &MonitorConfig{
			SampleInterval:    constants.DefaultSampleInterval,
			MediumThreshold:   constants.PressureMediumThreshold,
			HighThreshold:     constants.PressureHighThreshold,
			CriticalThreshold: constants.PressureCriticalThreshold,
		},
		Cache: &CacheConfig{
			BudgetMB:           constants.DefaultCacheBudgetMB,
			AdmissionThreshold: constants.DefaultAdmissionThreshold,
			EntryTTL:           constants.DefaultEntryTTL,
			SweepInterval:      constants.DefaultSweepInterval,
			StoragePath:        GetDefaultStoragePath(),
		},
		Tabs: &TabConfig{
			IdleThreshold:  constants.DefaultIdleThreshold,
			MaxSuspensions: constants.DefaultMaxSuspensions,
		},
		Scheduler: &SchedulerConfig{
			Workers:         constants.DefaultWorkerCount,
			MaxAttempts:     constants.DefaultMaxAttempts,
			BackoffBase:     constants.DefaultBackoffBase,
			BackoffCap:      constants.DefaultBackoffCap,
			TaskMaxDuration: constants.DefaultTaskMaxDuration,
		},
		Gateway: &GatewayConfig{
			Addr: "localhost:8080",
		},
	}
}

// GenerateDefaultConfig generates a default configuration file
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}
