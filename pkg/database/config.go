package database

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjyun/fongo-sub000/pkg/geo"
	"github.com/sjyun/fongo-sub000/pkg/metrics"
	"github.com/sjyun/fongo-sub000/pkg/query"
)

// ID generator names accepted by Config.IDGenerator
const (
	IDGeneratorObjectID = "objectid"
	IDGeneratorUUID     = "uuid"
)

// Config holds database configuration
type Config struct {
	// MaxDocuments is the soft per-collection document ceiling; 0 is unlimited
	MaxDocuments int `yaml:"max_documents"`

	// MaxOperatorsPerField limits how many operators one query field may
	// combine; 0 or less removes the limit
	MaxOperatorsPerField int  `yaml:"max_operators_per_field"`
	StrictOperators      bool `yaml:"strict_operators"`
	NearLimit            int  `yaml:"near_limit"`

	// ParallelThreshold is the candidate count from which filters are
	// evaluated by several workers
	ParallelThreshold int `yaml:"parallel_threshold"`
	MaxWorkers        int `yaml:"max_workers"` // 0 = GOMAXPROCS

	GeohashPrecision uint   `yaml:"geohash_precision"`
	IDGenerator      string `yaml:"id_generator"`

	SlowOpThreshold time.Duration `yaml:"slow_op_threshold"`
	SlowOpEntries   int           `yaml:"slow_op_entries"`

	// LogLevel and LogFormat build a zap logger when no logger option is
	// given; an empty level keeps logging off
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxOperatorsPerField: query.DefaultMaxOperatorsPerField,
		NearLimit:            query.DefaultNearLimit,
		ParallelThreshold:    1000,
		GeohashPrecision:     geo.DefaultGeohashPrecision,
		IDGenerator:          IDGeneratorObjectID,
		SlowOpThreshold:      metrics.DefaultSlowThreshold,
		SlowOpEntries:        1000,
		LogFormat:            "JSON",
	}
}

// LoadConfig reads a YAML file over the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.MaxDocuments < 0:
		return fmt.Errorf("invalid config: max_documents must not be negative")
	case c.NearLimit < 0:
		return fmt.Errorf("invalid config: near_limit must not be negative")
	case c.ParallelThreshold < 0:
		return fmt.Errorf("invalid config: parallel_threshold must not be negative")
	case c.MaxWorkers < 0:
		return fmt.Errorf("invalid config: max_workers must not be negative")
	case c.GeohashPrecision > 12:
		return fmt.Errorf("invalid config: geohash_precision must be at most 12")
	}
	switch c.IDGenerator {
	case "", IDGeneratorObjectID, IDGeneratorUUID:
	default:
		return fmt.Errorf("invalid config: unknown id_generator %q", c.IDGenerator)
	}
	return nil
}
