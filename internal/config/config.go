// Package config holds the merge configuration: which data types to process,
// how identity conflicts are resolved, and the similarity cutoffs used by
// duplicate detection. Values come from a YAML file with environment-variable
// and flag overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/demispk444/profilemerge/internal/model"
)

// Defaults applied wherever a value is left unset.
const (
	DefaultURLThreshold    = 0.8
	DefaultTitleThreshold  = 0.7
	DefaultReviewThreshold = 0.9
	DefaultRecoveryWorkers = 4
)

// Config controls one merge or analysis invocation.
type Config struct {
	// DataTypes selects what gets processed; "all" expands to every type.
	DataTypes []model.DataType `yaml:"data_types"`
	// ConflictResolution decides which of two identity-colliding records
	// survives. The manual strategy never auto-resolves.
	ConflictResolution model.Strategy `yaml:"conflict_resolution"`
	// DryRun computes full statistics without mutating the target dataset.
	DryRun bool `yaml:"dry_run"`

	// URLSimilarityThreshold and TitleSimilarityThreshold are the duplicate
	// detection cutoffs for bookmark pairwise comparison.
	URLSimilarityThreshold   float64 `yaml:"url_similarity_threshold"`
	TitleSimilarityThreshold float64 `yaml:"title_similarity_threshold"`

	// AutoApproveHighConfidence lets duplicate groups at or above
	// ReviewThreshold resolve without a reviewer; when false every group
	// requires review.
	AutoApproveHighConfidence bool    `yaml:"auto_approve_high_confidence"`
	ReviewThreshold           float64 `yaml:"review_threshold"`

	// RecoveryWorkers caps concurrent source extraction so many corrupted
	// profiles cannot exhaust the machine.
	RecoveryWorkers int `yaml:"recovery_workers"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	c := &Config{
		DataTypes:                 []model.DataType{model.TypeAll},
		ConflictResolution:        model.KeepNewest,
		AutoApproveHighConfidence: true,
	}
	c.applyDefaults()
	c.applyEnv()
	return c
}

// LoadFile reads a YAML configuration file, then layers environment
// overrides and defaults on top.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefaults()
	c.applyEnv()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if len(c.DataTypes) == 0 {
		c.DataTypes = []model.DataType{model.TypeAll}
	}
	if c.ConflictResolution == "" {
		c.ConflictResolution = model.KeepNewest
	}
	if c.URLSimilarityThreshold <= 0 {
		c.URLSimilarityThreshold = DefaultURLThreshold
	}
	if c.TitleSimilarityThreshold <= 0 {
		c.TitleSimilarityThreshold = DefaultTitleThreshold
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = DefaultReviewThreshold
	}
	if c.RecoveryWorkers <= 0 {
		c.RecoveryWorkers = DefaultRecoveryWorkers
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) applyEnv() {
	if v := envStr("PROFILEMERGE_STRATEGY", ""); v != "" {
		c.ConflictResolution = model.Strategy(v)
	}
	if v := envStr("PROFILEMERGE_LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := envFloat("PROFILEMERGE_URL_THRESHOLD", 0); v > 0 {
		c.URLSimilarityThreshold = v
	}
	if v := envFloat("PROFILEMERGE_TITLE_THRESHOLD", 0); v > 0 {
		c.TitleSimilarityThreshold = v
	}
	if v := envInt("PROFILEMERGE_RECOVERY_WORKERS", 0); v > 0 {
		c.RecoveryWorkers = v
	}
}

// Validate rejects unknown enums and out-of-range thresholds before any
// pipeline stage runs.
func (c *Config) Validate() error {
	if len(c.DataTypes) == 0 {
		return fmt.Errorf("config: no data types selected")
	}
	for _, t := range c.DataTypes {
		if !model.ValidDataTypes[t] {
			return fmt.Errorf("config: unknown data type %q", t)
		}
	}
	if !model.ValidStrategies[c.ConflictResolution] {
		return fmt.Errorf("config: unknown conflict resolution strategy %q", c.ConflictResolution)
	}
	if c.URLSimilarityThreshold < 0 || c.URLSimilarityThreshold > 1 {
		return fmt.Errorf("config: url similarity threshold %v outside [0,1]", c.URLSimilarityThreshold)
	}
	if c.TitleSimilarityThreshold < 0 || c.TitleSimilarityThreshold > 1 {
		return fmt.Errorf("config: title similarity threshold %v outside [0,1]", c.TitleSimilarityThreshold)
	}
	if c.ReviewThreshold < 0 || c.ReviewThreshold > 1 {
		return fmt.Errorf("config: review threshold %v outside [0,1]", c.ReviewThreshold)
	}
	if c.RecoveryWorkers < 1 {
		return fmt.Errorf("config: recovery workers must be at least 1")
	}
	return nil
}

// Types returns the selected data types with "all" expanded.
func (c *Config) Types() []model.DataType {
	return model.ExpandTypes(c.DataTypes)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
