package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/demispk444/profilemerge/internal/model"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.ConflictResolution != model.KeepNewest {
		t.Errorf("strategy = %s, want %s", c.ConflictResolution, model.KeepNewest)
	}
	if c.URLSimilarityThreshold != DefaultURLThreshold {
		t.Errorf("url threshold = %v, want %v", c.URLSimilarityThreshold, DefaultURLThreshold)
	}
	if c.TitleSimilarityThreshold != DefaultTitleThreshold {
		t.Errorf("title threshold = %v, want %v", c.TitleSimilarityThreshold, DefaultTitleThreshold)
	}
	if c.RecoveryWorkers != DefaultRecoveryWorkers {
		t.Errorf("recovery workers = %d, want %d", c.RecoveryWorkers, DefaultRecoveryWorkers)
	}
	if !c.AutoApproveHighConfidence {
		t.Error("auto approve should default on")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.yaml")
	doc := `
data_types: [bookmarks, history]
conflict_resolution: keep_oldest
dry_run: true
url_similarity_threshold: 0.9
recovery_workers: 2
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.ConflictResolution != model.KeepOldest {
		t.Errorf("strategy = %s", c.ConflictResolution)
	}
	if !c.DryRun {
		t.Error("dry_run not read")
	}
	if c.URLSimilarityThreshold != 0.9 {
		t.Errorf("url threshold = %v", c.URLSimilarityThreshold)
	}
	// Unset fields fall back to defaults.
	if c.TitleSimilarityThreshold != DefaultTitleThreshold {
		t.Errorf("title threshold = %v, want default", c.TitleSimilarityThreshold)
	}
	if c.RecoveryWorkers != 2 {
		t.Errorf("recovery workers = %d", c.RecoveryWorkers)
	}
	if got := c.Types(); len(got) != 2 || got[0] != model.TypeBookmarks || got[1] != model.TypeHistory {
		t.Errorf("Types() = %v", got)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown type", func(c *Config) { c.DataTypes = []model.DataType{"diary"} }},
		{"empty types", func(c *Config) { c.DataTypes = nil }},
		{"unknown strategy", func(c *Config) { c.ConflictResolution = "keep_favorites" }},
		{"url threshold above 1", func(c *Config) { c.URLSimilarityThreshold = 1.2 }},
		{"title threshold below 0", func(c *Config) { c.TitleSimilarityThreshold = -0.1 }},
		{"review threshold above 1", func(c *Config) { c.ReviewThreshold = 2 }},
		{"zero workers", func(c *Config) { c.RecoveryWorkers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROFILEMERGE_STRATEGY", "keep_most_used")
	t.Setenv("PROFILEMERGE_URL_THRESHOLD", "0.75")
	c := Default()
	if c.ConflictResolution != model.KeepMostUsed {
		t.Errorf("strategy = %s, want keep_most_used", c.ConflictResolution)
	}
	if c.URLSimilarityThreshold != 0.75 {
		t.Errorf("url threshold = %v, want 0.75", c.URLSimilarityThreshold)
	}
}

func TestExpandAll(t *testing.T) {
	c := Default()
	got := c.Types()
	if len(got) != 8 {
		t.Fatalf("expanded %d types, want 8: %v", len(got), got)
	}
	if got[0] != model.TypeBookmarks || got[1] != model.TypeHistory || got[2] != model.TypeLogins {
		t.Errorf("implemented types must come first: %v", got)
	}
}
