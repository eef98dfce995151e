// Package config loads MEW's engine configuration from MEW_* environment
// variables and an optional YAML overlay file, env-first with the file
// overriding.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.LoadFromFile("mew.yaml"); err != nil {
//		log.Fatalf("invalid config file: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine holds the engine.* budgets and limits.
type Engine struct {
	DefaultTimeout          time.Duration `yaml:"default_timeout" mew:"engine.default_timeout"`
	MaxUnboundedResults     int           `yaml:"max_unbounded_results" mew:"engine.max_unbounded_results"`
	MaxCollectSize          int           `yaml:"max_collect_size" mew:"engine.max_collect_size"`
	DefaultCollectLimit     int           `yaml:"default_collect_limit" mew:"engine.default_collect_limit"`
	MaxCascadeCount         int           `yaml:"max_cascade_count" mew:"engine.max_cascade_count"`
	CascadeDepthLimit       int           `yaml:"cascade_depth_limit" mew:"engine.cascade_depth_limit"`
	DefaultTransitiveDepth  int           `yaml:"default_transitive_depth" mew:"engine.default_transitive_depth"`
	MaxTransitiveDepth      int           `yaml:"max_transitive_depth" mew:"engine.max_transitive_depth"`
	MaxTransitiveSteps      int           `yaml:"max_transitive_steps" mew:"engine.max_transitive_steps"`
	AcyclicCheckLimit       int           `yaml:"acyclic_check_limit" mew:"engine.acyclic_check_limit"`
	AcyclicCheckOverflow    string        `yaml:"acyclic_check_overflow" mew:"engine.acyclic_check_overflow"`
	SameBindingLimit        int           `yaml:"same_binding_limit" mew:"engine.same_binding_limit"`
	ActionLimit             int           `yaml:"action_limit" mew:"engine.action_limit"`
	RuleDepthLimit          int           `yaml:"rule_depth_limit" mew:"engine.rule_depth_limit"`
}

// Database holds persistence settings (journal directory, in-memory mode).
type Database struct {
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	ReadOnly   bool   `yaml:"read_only"`
}

// Pool mirrors pkg/pool's PoolConfig.
type Pool struct {
	Enabled bool `yaml:"enabled"`
	MaxSize int  `yaml:"max_size"`
}

// Cache controls the query plan cache (pkg/cache).
type Cache struct {
	Enabled    bool          `yaml:"enabled"`
	MaxCost    int64         `yaml:"max_cost"`
	TTL        time.Duration `yaml:"ttl"`
}

// Logging configures the stdlib log output.
type Logging struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Config is the top-level, immutable-after-load configuration object.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Database Database `yaml:"database"`
	Pool     Pool     `yaml:"pool"`
	Cache    Cache    `yaml:"cache"`
	Logging  Logging  `yaml:"logging"`
}

// LoadFromEnv builds a Config from MEW_* environment variables, falling
// back to the engine defaults.
func LoadFromEnv() *Config {
	c := &Config{
		Engine: Engine{
			DefaultTimeout:         getEnvDuration("MEW_ENGINE_DEFAULT_TIMEOUT", 30*time.Second),
			MaxUnboundedResults:    getEnvInt("MEW_ENGINE_MAX_UNBOUNDED_RESULTS", 100_000),
			MaxCollectSize:         getEnvInt("MEW_ENGINE_MAX_COLLECT_SIZE", 1_000_000),
			DefaultCollectLimit:    getEnvInt("MEW_ENGINE_DEFAULT_COLLECT_LIMIT", 10_000),
			MaxCascadeCount:        getEnvInt("MEW_ENGINE_MAX_CASCADE_COUNT", 10_000),
			CascadeDepthLimit:      getEnvInt("MEW_ENGINE_CASCADE_DEPTH_LIMIT", 100),
			DefaultTransitiveDepth: getEnvInt("MEW_ENGINE_DEFAULT_TRANSITIVE_DEPTH", 100),
			MaxTransitiveDepth:     getEnvInt("MEW_ENGINE_MAX_TRANSITIVE_DEPTH", 1_000),
			MaxTransitiveSteps:     getEnvInt("MEW_ENGINE_MAX_TRANSITIVE_STEPS", 100_000),
			AcyclicCheckLimit:      getEnvInt("MEW_ENGINE_ACYCLIC_CHECK_LIMIT", 100_000),
			AcyclicCheckOverflow:   getEnv("MEW_ENGINE_ACYCLIC_CHECK_OVERFLOW", "error"),
			SameBindingLimit:       getEnvInt("MEW_ENGINE_SAME_BINDING_LIMIT", 1),
			ActionLimit:            getEnvInt("MEW_ENGINE_ACTION_LIMIT", 10_000),
			RuleDepthLimit:         getEnvInt("MEW_ENGINE_RULE_DEPTH_LIMIT", 100),
		},
		Database: Database{
			DataDir:  getEnv("MEW_DATA_DIR", "./data"),
			InMemory: getEnvBool("MEW_IN_MEMORY", true),
			ReadOnly: getEnvBool("MEW_READ_ONLY", false),
		},
		Pool: Pool{
			Enabled: getEnvBool("MEW_POOL_ENABLED", true),
			MaxSize: getEnvInt("MEW_POOL_MAX_SIZE", 1000),
		},
		Cache: Cache{
			Enabled: getEnvBool("MEW_CACHE_ENABLED", true),
			MaxCost: int64(getEnvInt("MEW_CACHE_MAX_COST", 1<<26)),
			TTL:     getEnvDuration("MEW_CACHE_TTL", 5*time.Minute),
		},
		Logging: Logging{
			Level:  getEnv("MEW_LOG_LEVEL", "INFO"),
			Output: getEnv("MEW_LOG_OUTPUT", "stderr"),
		},
	}
	return c
}

// LoadFromFile overlays YAML file settings onto an already-loaded Config.
// A missing file is not an error; the caller decides whether one is required.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Engine.MaxTransitiveDepth < c.Engine.DefaultTransitiveDepth {
		return fmt.Errorf("config: engine.max_transitive_depth (%d) below engine.default_transitive_depth (%d)",
			c.Engine.MaxTransitiveDepth, c.Engine.DefaultTransitiveDepth)
	}
	switch c.Engine.AcyclicCheckOverflow {
	case "error", "skip", "async":
	default:
		return fmt.Errorf("config: engine.acyclic_check_overflow must be one of error|skip|async, got %q", c.Engine.AcyclicCheckOverflow)
	}
	if c.Database.DataDir == "" && !c.Database.InMemory {
		return fmt.Errorf("config: database.data_dir required when not in-memory")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{InMemory: %v, DataDir: %s, Pool: %v, Cache: %v}",
		c.Database.InMemory, c.Database.DataDir, c.Pool.Enabled, c.Cache.Enabled)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes" || v == "on"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
