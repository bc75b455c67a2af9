// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/engine"
	"github.com/datagrade/datagrade/pkg/score"
)

// Config holds all DataGrade configuration.
type Config struct {
	Version int `yaml:"version"`

	Scan      ScanConfig         `yaml:"scan"`
	Analyzers AnalyzersConfig    `yaml:"analyzers"`
	Weights   map[string]float64 `yaml:"weights"`
	Cache     CacheConfig        `yaml:"cache"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
}

// ScanConfig controls the scan engine.
type ScanConfig struct {
	TextColumn       string        `yaml:"text_column"`
	Shards           int           `yaml:"shards"` // 0 = auto
	HeavyConcurrency int64         `yaml:"heavy_concurrency"`
	Deadline         time.Duration `yaml:"deadline"`
	AnalyzerTimeout  time.Duration `yaml:"analyzer_timeout"`
	SampleCap        int           `yaml:"sample_cap"`
	TopIssues        int           `yaml:"top_issues"`
	ExpectedRows     uint64        `yaml:"expected_rows"`
	BloomFPP         float64       `yaml:"bloom_fpp"`
	NearDupThreshold float64       `yaml:"near_dup_threshold"`
	VectorCapacity   int           `yaml:"vector_capacity"`
	QuantileEpsilon  float64       `yaml:"quantile_epsilon"`
}

// AnalyzersConfig selects and tunes the checks.
type AnalyzersConfig struct {
	// Enabled lists analyzer names to run. Empty means all built-ins.
	Enabled []string `yaml:"enabled"`

	FailureThreshold int `yaml:"failure_threshold"`

	MinTokens           int     `yaml:"min_tokens"`
	MaxTokens           int     `yaml:"max_tokens"`
	LowPercentile       float64 `yaml:"low_percentile"`
	HighPercentile      float64 `yaml:"high_percentile"`
	NonAlphaThreshold   float64 `yaml:"non_alpha_threshold"`
	RepetitionMinRun    int     `yaml:"repetition_min_run"`
	NullRowThreshold    float64 `yaml:"null_row_threshold"`
	UniquenessThreshold float64 `yaml:"uniqueness_threshold"`
	DeclaredLanguage    string  `yaml:"declared_language"`
	ToxicityThreshold   float64 `yaml:"toxicity_threshold"`
	FluencyThreshold    float64 `yaml:"fluency_threshold"`
	BiasThreshold       float64 `yaml:"bias_threshold"`
	PIIThreshold        float64 `yaml:"pii_threshold"`
}

// CacheConfig for the Redis report cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig for optional trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Scan: ScanConfig{
			TextColumn:       "text",
			Shards:           0, // auto
			HeavyConcurrency: 4,
			SampleCap:        100,
			TopIssues:        20,
			BloomFPP:         0.01,
			NearDupThreshold: 0.95,
			VectorCapacity:   100000,
			QuantileEpsilon:  0.01,
		},
		Analyzers: AnalyzersConfig{
			FailureThreshold: analyzer.DefaultFailureThreshold,
		},
		Cache: CacheConfig{
			Address: "localhost:6379",
			TTL:     24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Options maps the analyzer section onto the engine's option set.
func (c *Config) Options() analyzer.Options {
	a := c.Analyzers
	return analyzer.Options{
		MinTokens:           a.MinTokens,
		MaxTokens:           a.MaxTokens,
		LowPercentile:       a.LowPercentile,
		HighPercentile:      a.HighPercentile,
		NonAlphaThreshold:   a.NonAlphaThreshold,
		RepetitionMinRun:    a.RepetitionMinRun,
		NullRowThreshold:    a.NullRowThreshold,
		UniquenessThreshold: a.UniquenessThreshold,
		DeclaredLanguage:    a.DeclaredLanguage,
		ToxicityThreshold:   a.ToxicityThreshold,
		FluencyThreshold:    a.FluencyThreshold,
		BiasThreshold:       a.BiasThreshold,
		PIIThreshold:        a.PIIThreshold,
	}.Normalize()
}

// EnabledAnalyzers resolves the configured analyzer set. Unknown names are
// reported rather than silently dropped.
func (c *Config) EnabledAnalyzers() ([]analyzer.Analyzer, error) {
	if len(c.Analyzers.Enabled) == 0 {
		return analyzer.Builtins(), nil
	}
	out := make([]analyzer.Analyzer, 0, len(c.Analyzers.Enabled))
	for _, name := range c.Analyzers.Enabled {
		a, ok := analyzer.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown analyzer %q", name)
		}
		out = append(out, a)
	}
	return out, nil
}

// ScoreWeights resolves category weights, falling back to equal weights
// for categories the config does not mention.
func (c *Config) ScoreWeights() score.Weights {
	w := score.DefaultWeights()
	for name, weight := range c.Weights {
		w[analyzer.Category(name)] = weight
	}
	return w
}

// EngineConfig assembles the engine configuration for a dataset.
func (c *Config) EngineConfig(dataset string) (engine.Config, error) {
	analyzers, err := c.EnabledAnalyzers()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Dataset:          dataset,
		TextColumn:       c.Scan.TextColumn,
		Analyzers:        analyzers,
		Options:          c.Options(),
		Weights:          c.ScoreWeights(),
		Shards:           c.Scan.Shards,
		HeavyConcurrency: c.Scan.HeavyConcurrency,
		FailureThreshold: c.Analyzers.FailureThreshold,
		Deadline:         c.Scan.Deadline,
		AnalyzerTimeout:  c.Scan.AnalyzerTimeout,
		SampleCap:        c.Scan.SampleCap,
		TopIssues:        c.Scan.TopIssues,
		ExpectedRows:     c.Scan.ExpectedRows,
		BloomFPP:         c.Scan.BloomFPP,
		NearDupThreshold: c.Scan.NearDupThreshold,
		VectorCapacity:   c.Scan.VectorCapacity,
		QuantileEpsilon:  c.Scan.QuantileEpsilon,
	}, nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/datagrade/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".datagrade", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".datagrade.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Scan.TextColumn != "" {
		m.config.Scan.TextColumn = src.Scan.TextColumn
	}
	if src.Scan.Shards != 0 {
		m.config.Scan.Shards = src.Scan.Shards
	}
	if src.Scan.HeavyConcurrency != 0 {
		m.config.Scan.HeavyConcurrency = src.Scan.HeavyConcurrency
	}
	if src.Scan.Deadline != 0 {
		m.config.Scan.Deadline = src.Scan.Deadline
	}
	if src.Scan.AnalyzerTimeout != 0 {
		m.config.Scan.AnalyzerTimeout = src.Scan.AnalyzerTimeout
	}
	if src.Scan.SampleCap != 0 {
		m.config.Scan.SampleCap = src.Scan.SampleCap
	}
	if src.Scan.TopIssues != 0 {
		m.config.Scan.TopIssues = src.Scan.TopIssues
	}
	if src.Scan.ExpectedRows != 0 {
		m.config.Scan.ExpectedRows = src.Scan.ExpectedRows
	}
	if src.Scan.BloomFPP != 0 {
		m.config.Scan.BloomFPP = src.Scan.BloomFPP
	}
	if src.Scan.NearDupThreshold != 0 {
		m.config.Scan.NearDupThreshold = src.Scan.NearDupThreshold
	}
	if src.Scan.VectorCapacity != 0 {
		m.config.Scan.VectorCapacity = src.Scan.VectorCapacity
	}
	if src.Scan.QuantileEpsilon != 0 {
		m.config.Scan.QuantileEpsilon = src.Scan.QuantileEpsilon
	}

	if len(src.Analyzers.Enabled) > 0 {
		m.config.Analyzers.Enabled = src.Analyzers.Enabled
	}
	if src.Analyzers.FailureThreshold != 0 {
		m.config.Analyzers.FailureThreshold = src.Analyzers.FailureThreshold
	}
	if src.Analyzers.MinTokens != 0 {
		m.config.Analyzers.MinTokens = src.Analyzers.MinTokens
	}
	if src.Analyzers.MaxTokens != 0 {
		m.config.Analyzers.MaxTokens = src.Analyzers.MaxTokens
	}
	if src.Analyzers.LowPercentile != 0 {
		m.config.Analyzers.LowPercentile = src.Analyzers.LowPercentile
	}
	if src.Analyzers.HighPercentile != 0 {
		m.config.Analyzers.HighPercentile = src.Analyzers.HighPercentile
	}
	if src.Analyzers.NonAlphaThreshold != 0 {
		m.config.Analyzers.NonAlphaThreshold = src.Analyzers.NonAlphaThreshold
	}
	if src.Analyzers.RepetitionMinRun != 0 {
		m.config.Analyzers.RepetitionMinRun = src.Analyzers.RepetitionMinRun
	}
	if src.Analyzers.NullRowThreshold != 0 {
		m.config.Analyzers.NullRowThreshold = src.Analyzers.NullRowThreshold
	}
	if src.Analyzers.UniquenessThreshold != 0 {
		m.config.Analyzers.UniquenessThreshold = src.Analyzers.UniquenessThreshold
	}
	if src.Analyzers.DeclaredLanguage != "" {
		m.config.Analyzers.DeclaredLanguage = src.Analyzers.DeclaredLanguage
	}
	if src.Analyzers.ToxicityThreshold != 0 {
		m.config.Analyzers.ToxicityThreshold = src.Analyzers.ToxicityThreshold
	}
	if src.Analyzers.FluencyThreshold != 0 {
		m.config.Analyzers.FluencyThreshold = src.Analyzers.FluencyThreshold
	}
	if src.Analyzers.BiasThreshold != 0 {
		m.config.Analyzers.BiasThreshold = src.Analyzers.BiasThreshold
	}
	if src.Analyzers.PIIThreshold != 0 {
		m.config.Analyzers.PIIThreshold = src.Analyzers.PIIThreshold
	}

	if len(src.Weights) > 0 {
		if m.config.Weights == nil {
			m.config.Weights = make(map[string]float64)
		}
		for k, v := range src.Weights {
			m.config.Weights[k] = v
		}
	}

	if src.Cache.Enabled {
		m.config.Cache.Enabled = true
	}
	if src.Cache.Address != "" {
		m.config.Cache.Address = src.Cache.Address
	}
	if src.Cache.Password != "" {
		m.config.Cache.Password = src.Cache.Password
	}
	if src.Cache.Database != 0 {
		m.config.Cache.Database = src.Cache.Database
	}
	if src.Cache.TTL != 0 {
		m.config.Cache.TTL = src.Cache.TTL
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("DATAGRADE_TEXT_COLUMN"); v != "" {
		m.config.Scan.TextColumn = v
	}
	if v := os.Getenv("DATAGRADE_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.Scan.Shards = n
		}
	}
	if v := os.Getenv("DATAGRADE_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Scan.Deadline = d
		}
	}
	if v := os.Getenv("DATAGRADE_ANALYZER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Scan.AnalyzerTimeout = d
		}
	}
	if v := os.Getenv("DATAGRADE_REDIS"); v != "" {
		m.config.Cache.Enabled = true
		m.config.Cache.Address = v
	}
	if v := os.Getenv("DATAGRADE_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
	if v := os.Getenv("DATAGRADE_LANGUAGE"); v != "" {
		m.config.Analyzers.DeclaredLanguage = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	configDir := filepath.Join(home, ".datagrade")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
