// Package config loads the runtime's layered YAML configuration (spec §6's
// "Configuration (enumerated, effect)" table) into the typed structs every
// other package's constructors already expect.
//
// Grounded on C360Studio-semspec's config/config.go + config/loader.go:
// DefaultConfig, a Merge that only overwrites non-zero fields, YAML
// (de)serialization via gopkg.in/yaml.v3, and a Loader applying
// default -> user -> project -> env precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskforge/orchestrator/internal/adapter"
	"github.com/taskforge/orchestrator/internal/consensus"
)

// AdapterEntry is one adapter's command template (spec §4.3's "command
// surface").
type AdapterEntry struct {
	ID      string        `yaml:"id"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Env     []string      `yaml:"env"`
	WorkDir string        `yaml:"workDir"`
	Sandbox adapter.Sandbox `yaml:"sandbox"`
	Stdin   bool          `yaml:"stdin"`
}

// Config is the complete layered configuration for one orchestratord
// process, covering every key spec §6 enumerates plus the ambient stack
// (bus, HTTP, metrics) needed to actually start the process.
type Config struct {
	Adapters []AdapterEntry `yaml:"adapters"`

	RoleExecutionTimeout time.Duration `yaml:"roleExecutionTimeoutSeconds"`
	ReviewConsensusCount int           `yaml:"reviewConsensusCount"`
	ConsensusStrategy    consensus.Strategy `yaml:"consensusStrategy"`
	ConsensusDeadline    time.Duration `yaml:"consensusDeadlineSeconds"`

	DefaultMaxSubTaskDepth int `yaml:"defaultMaxSubTaskDepth"`
	EventBufferSize        int `yaml:"eventBufferSize"`

	MaxRetriesPerTask            int           `yaml:"maxRetriesPerTask"`
	AdapterCircuitThreshold      uint32        `yaml:"adapterCircuitThreshold"`
	AdapterCircuitDuration       time.Duration `yaml:"adapterCircuitDurationSeconds"`
	QualityConcernRetryThreshold int           `yaml:"qualityConcernRetryThreshold"`

	PlannerWorkers  uint `yaml:"plannerWorkers"`
	BuilderWorkers  uint `yaml:"builderWorkers"`
	ReviewerWorkers uint `yaml:"reviewerWorkers"`

	OrchestratorMode bool `yaml:"orchestratorMode"`

	HTTPAddr   string `yaml:"httpAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	MemoryPath string `yaml:"memoryPath"`
}

// DefaultConfig returns the spec-documented defaults: eventBufferSize 200,
// maxRetriesPerTask 3, qualityConcernRetryThreshold 2.
func DefaultConfig() *Config {
	return &Config{
		Adapters: []AdapterEntry{
			{ID: "host-shell", Command: "sh", Args: []string{"-c", "{{prompt}}"}, Sandbox: adapter.SandboxHost},
		},
		RoleExecutionTimeout:         2 * time.Minute,
		ReviewConsensusCount:         1,
		ConsensusStrategy:            consensus.StrategyMajority,
		ConsensusDeadline:            90 * time.Second,
		DefaultMaxSubTaskDepth:       3,
		EventBufferSize:              200,
		MaxRetriesPerTask:            3,
		AdapterCircuitThreshold:      3,
		AdapterCircuitDuration:       5 * time.Minute,
		QualityConcernRetryThreshold: 2,
		PlannerWorkers:               2,
		BuilderWorkers:               2,
		ReviewerWorkers:              2,
		HTTPAddr:                     ":8080",
		MetricsAddr:                  ":9090",
		MemoryPath:                   "./data/tasks.jsonl",
	}
}

// Validate rejects configurations the rest of the runtime cannot honor.
func (c *Config) Validate() error {
	if c.ReviewConsensusCount <= 0 {
		return fmt.Errorf("reviewConsensusCount must be >= 1")
	}
	if c.DefaultMaxSubTaskDepth < 0 || c.DefaultMaxSubTaskDepth > 10 {
		return fmt.Errorf("defaultMaxSubTaskDepth must be within [0, 10]")
	}
	if c.RoleExecutionTimeout < 0 {
		return fmt.Errorf("roleExecutionTimeoutSeconds must not be negative")
	}
	if c.ConsensusDeadline < 0 {
		return fmt.Errorf("consensusDeadlineSeconds must not be negative")
	}
	if c.AdapterCircuitDuration < 0 {
		return fmt.Errorf("adapterCircuitDurationSeconds must not be negative")
	}
	if c.MaxRetriesPerTask < 0 {
		return fmt.Errorf("maxRetriesPerTask must not be negative")
	}
	if c.QualityConcernRetryThreshold <= 0 {
		return fmt.Errorf("qualityConcernRetryThreshold must be >= 1")
	}
	if len(c.Adapters) == 0 {
		return fmt.Errorf("at least one adapter must be configured")
	}
	switch c.ConsensusStrategy {
	case consensus.StrategyMajority, consensus.StrategyUnanimous, consensus.StrategyWeighted:
	default:
		return fmt.Errorf("unknown consensusStrategy %q", c.ConsensusStrategy)
	}
	return nil
}

// AdapterConfigs converts the YAML-facing AdapterEntry list into
// adapter.Config values for adapter.New.
func (c *Config) AdapterConfigs() []adapter.Config {
	out := make([]adapter.Config, 0, len(c.Adapters))
	for _, a := range c.Adapters {
		out = append(out, adapter.Config{
			ID: a.ID, Command: a.Command, Args: a.Args, Env: a.Env,
			WorkDir: a.WorkDir, Sandbox: a.Sandbox, Stdin: a.Stdin,
		})
	}
	return out
}

// LoadFromFile reads and decodes a YAML config file, starting from
// DefaultConfig so omitted keys keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile writes cfg as YAML to path, creating parent directories as
// needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Merge overwrites c's fields with other's non-zero fields (other takes
// precedence), the same "Merge(other)" shape C360Studio-semspec uses for
// layered precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if len(other.Adapters) > 0 {
		c.Adapters = other.Adapters
	}
	if other.RoleExecutionTimeout != 0 {
		c.RoleExecutionTimeout = other.RoleExecutionTimeout
	}
	if other.ReviewConsensusCount != 0 {
		c.ReviewConsensusCount = other.ReviewConsensusCount
	}
	if other.ConsensusStrategy != "" {
		c.ConsensusStrategy = other.ConsensusStrategy
	}
	if other.ConsensusDeadline != 0 {
		c.ConsensusDeadline = other.ConsensusDeadline
	}
	if other.DefaultMaxSubTaskDepth != 0 {
		c.DefaultMaxSubTaskDepth = other.DefaultMaxSubTaskDepth
	}
	if other.EventBufferSize != 0 {
		c.EventBufferSize = other.EventBufferSize
	}
	if other.MaxRetriesPerTask != 0 {
		c.MaxRetriesPerTask = other.MaxRetriesPerTask
	}
	if other.AdapterCircuitThreshold != 0 {
		c.AdapterCircuitThreshold = other.AdapterCircuitThreshold
	}
	if other.AdapterCircuitDuration != 0 {
		c.AdapterCircuitDuration = other.AdapterCircuitDuration
	}
	if other.QualityConcernRetryThreshold != 0 {
		c.QualityConcernRetryThreshold = other.QualityConcernRetryThreshold
	}
	if other.PlannerWorkers != 0 {
		c.PlannerWorkers = other.PlannerWorkers
	}
	if other.BuilderWorkers != 0 {
		c.BuilderWorkers = other.BuilderWorkers
	}
	if other.ReviewerWorkers != 0 {
		c.ReviewerWorkers = other.ReviewerWorkers
	}
	if other.OrchestratorMode {
		c.OrchestratorMode = true
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
	if other.MemoryPath != "" {
		c.MemoryPath = other.MemoryPath
	}
}
