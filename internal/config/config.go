// Package config loads Meridian's layered YAML configuration: hardcoded
// defaults, then the user/global config, then the project config, then
// MERIDIAN_* environment overrides, in increasing order of precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete Meridian configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	Paths        PathsConfig        `yaml:"paths" json:"paths"`
	Ingestion    IngestionConfig    `yaml:"ingestion" json:"ingestion"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	VectorIndex  VectorIndexConfig  `yaml:"vector_index" json:"vector_index"`
	WorkingMem   WorkingMemConfig   `yaml:"working_memory" json:"working_memory"`
	Server       ServerConfig       `yaml:"server" json:"server"`
	Sync         SyncConfig         `yaml:"sync" json:"sync"`
	Compaction   CompactionConfig   `yaml:"compaction" json:"compaction"`
}

// PathsConfig configures which paths to include and exclude during discovery.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IngestionConfig configures the discovery/parse/embed/store pipeline.
type IngestionConfig struct {
	Workers         int `yaml:"workers" json:"workers"`
	QueueCapacity   int `yaml:"queue_capacity" json:"queue_capacity"`
	MaxFileBytes    int `yaml:"max_file_bytes" json:"max_file_bytes"`
	MaxRetries      int `yaml:"max_retries" json:"max_retries"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // "static" or "ollama"
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// VectorIndexConfig configures the HNSW vector index.
type VectorIndexConfig struct {
	Metric        string `yaml:"metric" json:"metric"` // "cosine" or "l2"
	M             int    `yaml:"m" json:"m"`
	EfConstruction int   `yaml:"ef_construction" json:"ef_construction"`
	EfSearch      int    `yaml:"ef_search" json:"ef_search"`
	MaxElements   int    `yaml:"max_elements" json:"max_elements"`
}

// WorkingMemConfig configures the attention-weighted working-memory cache.
type WorkingMemConfig struct {
	// Capacity is a string like "8000" tokens, "500KB" or "2MB".
	Capacity     string  `yaml:"capacity" json:"capacity"`
	DecayFactor  float64 `yaml:"decay_factor" json:"decay_factor"`
	PrefetchSize int     `yaml:"prefetch_size" json:"prefetch_size"`
}

// ServerConfig configures the MCP server transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"` // "stdio" or "http"
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// SyncConfig configures the file watcher and sync manager.
type SyncConfig struct {
	WatchDebounce  string `yaml:"watch_debounce" json:"watch_debounce"`
	PeriodicSync   string `yaml:"periodic_sync" json:"periodic_sync"`
	PollingFallback bool  `yaml:"polling_fallback" json:"polling_fallback"`
}

// CompactionConfig configures background HNSW compaction.
type CompactionConfig struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	OrphanThreshold float64 `yaml:"orphan_threshold" json:"orphan_threshold"`
	MinOrphanCount  int     `yaml:"min_orphan_count" json:"min_orphan_count"`
	IdleTimeout     string  `yaml:"idle_timeout" json:"idle_timeout"`
	Cooldown        string  `yaml:"cooldown" json:"cooldown"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Ingestion: IngestionConfig{
			Workers:       runtime.NumCPU(),
			QueueCapacity: 256,
			MaxFileBytes:  5 * 1024 * 1024,
			MaxRetries:    3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static-v1",
			Dimensions: 256,
			BatchSize:  32,
			OllamaHost: "",
		},
		VectorIndex: VectorIndexConfig{
			Metric:         "cosine",
			M:              32,
			EfConstruction: 400,
			EfSearch:       100,
			MaxElements:    1_000_000,
		},
		WorkingMem: WorkingMemConfig{
			Capacity:     "8000",
			DecayFactor:  0.95,
			PrefetchSize: 10,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
		Sync: SyncConfig{
			WatchDebounce:   "500ms",
			PeriodicSync:    "5m",
			PollingFallback: false,
		},
		Compaction: CompactionConfig{
			Enabled:         true,
			OrphanThreshold: 0.2,
			MinOrphanCount:  100,
			IdleTimeout:     "30s",
			Cooldown:        "1h",
		},
	}
}

func defaultHomeDir() string {
	if home := os.Getenv("MERIDIAN_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".meridian")
	}
	return filepath.Join(home, ".meridian")
}

// GetUserConfigPath returns the path to the user/global configuration file.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "meridian", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "meridian", "config.yaml")
	}
	return filepath.Join(home, ".config", "meridian", "config.yaml")
}

// GetUserConfigDir returns the directory holding the user/global configuration file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user/global configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	p := GetUserConfigPath()
	if !fileExists(p) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(p); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", p, err)
	}
	return cfg, nil
}

// Load loads configuration for the given project directory, applying
// defaults, user config, project config and environment overrides in order
// of increasing precedence.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".meridian.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".meridian.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Ingestion.Workers != 0 {
		c.Ingestion.Workers = other.Ingestion.Workers
	}
	if other.Ingestion.QueueCapacity != 0 {
		c.Ingestion.QueueCapacity = other.Ingestion.QueueCapacity
	}
	if other.Ingestion.MaxFileBytes != 0 {
		c.Ingestion.MaxFileBytes = other.Ingestion.MaxFileBytes
	}
	if other.Ingestion.MaxRetries != 0 {
		c.Ingestion.MaxRetries = other.Ingestion.MaxRetries
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.VectorIndex.Metric != "" {
		c.VectorIndex.Metric = other.VectorIndex.Metric
	}
	if other.VectorIndex.M != 0 {
		c.VectorIndex.M = other.VectorIndex.M
	}
	if other.VectorIndex.EfConstruction != 0 {
		c.VectorIndex.EfConstruction = other.VectorIndex.EfConstruction
	}
	if other.VectorIndex.EfSearch != 0 {
		c.VectorIndex.EfSearch = other.VectorIndex.EfSearch
	}
	if other.VectorIndex.MaxElements != 0 {
		c.VectorIndex.MaxElements = other.VectorIndex.MaxElements
	}
	if other.WorkingMem.Capacity != "" {
		c.WorkingMem.Capacity = other.WorkingMem.Capacity
	}
	if other.WorkingMem.DecayFactor != 0 {
		c.WorkingMem.DecayFactor = other.WorkingMem.DecayFactor
	}
	if other.WorkingMem.PrefetchSize != 0 {
		c.WorkingMem.PrefetchSize = other.WorkingMem.PrefetchSize
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Sync.WatchDebounce != "" {
		c.Sync.WatchDebounce = other.Sync.WatchDebounce
	}
	if other.Sync.PeriodicSync != "" {
		c.Sync.PeriodicSync = other.Sync.PeriodicSync
	}
	if other.Sync.PollingFallback {
		c.Sync.PollingFallback = other.Sync.PollingFallback
	}
	if other.Compaction.OrphanThreshold != 0 || other.Compaction.MinOrphanCount != 0 ||
		other.Compaction.IdleTimeout != "" || other.Compaction.Cooldown != "" {
		c.Compaction.Enabled = other.Compaction.Enabled
	}
	if other.Compaction.OrphanThreshold != 0 {
		c.Compaction.OrphanThreshold = other.Compaction.OrphanThreshold
	}
	if other.Compaction.MinOrphanCount != 0 {
		c.Compaction.MinOrphanCount = other.Compaction.MinOrphanCount
	}
	if other.Compaction.IdleTimeout != "" {
		c.Compaction.IdleTimeout = other.Compaction.IdleTimeout
	}
	if other.Compaction.Cooldown != "" {
		c.Compaction.Cooldown = other.Compaction.Cooldown
	}
}

// applyEnvOverrides applies MERIDIAN_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MERIDIAN_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MERIDIAN_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MERIDIAN_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("MERIDIAN_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MERIDIAN_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
			c.Server.Transport = "http"
		}
	}
	if v := os.Getenv("MERIDIAN_MAX_TOKENS"); v != "" {
		c.WorkingMem.Capacity = v
	}
	if v := os.Getenv("MERIDIAN_COMPACTION_ENABLED"); v != "" {
		c.Compaction.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate validates the configuration, returning an error describing the
// first invalid field found.
func (c *Config) Validate() error {
	if c.Ingestion.Workers <= 0 {
		return fmt.Errorf("ingestion.workers must be positive, got %d", c.Ingestion.Workers)
	}
	if c.VectorIndex.M <= 0 {
		return fmt.Errorf("vector_index.m must be positive, got %d", c.VectorIndex.M)
	}
	validMetrics := map[string]bool{"cosine": true, "l2": true}
	if !validMetrics[strings.ToLower(c.VectorIndex.Metric)] {
		return fmt.Errorf("vector_index.metric must be 'cosine' or 'l2', got %s", c.VectorIndex.Metric)
	}
	if math.Abs(c.WorkingMem.DecayFactor) > 1 {
		return fmt.Errorf("working_memory.decay_factor must be within [-1, 1], got %f", c.WorkingMem.DecayFactor)
	}
	validProviders := map[string]bool{"static": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}
	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .meridian.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".meridian.yaml")) ||
			fileExists(filepath.Join(currentDir, ".meridian.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// ParseCapacity parses a working-memory capacity string: a bare integer is
// tokens, "NKB"/"NMB" are byte-ish budgets converted to an approximate token
// count (1 token ~= 4 bytes), mirroring the original capacity grammar.
func ParseCapacity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty capacity string")
	}
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "MB"):
		n, err := strconv.Atoi(strings.TrimSpace(upper[:len(upper)-2]))
		if err != nil {
			return 0, fmt.Errorf("invalid capacity %q: %w", s, err)
		}
		return (n * 1024 * 1024) / 4, nil
	case strings.HasSuffix(upper, "KB"):
		n, err := strconv.Atoi(strings.TrimSpace(upper[:len(upper)-2]))
		if err != nil {
			return 0, fmt.Errorf("invalid capacity %q: %w", s, err)
		}
		return (n * 1024) / 4, nil
	default:
		n, err := strconv.Atoi(upper)
		if err != nil {
			return 0, fmt.Errorf("invalid capacity %q: %w", s, err)
		}
		return n, nil
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// defaultSessionsPath is kept for components that stash per-session state
// under the Meridian home directory.
func defaultSessionsPath() string {
	return filepath.Join(defaultHomeDir(), "sessions")
}
