package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Project config file names, in lookup order
const (
	ProjectFileYAML = ".codesworth.yaml"
	ProjectFileYML  = ".codesworth.yml"
	ProjectFileTOML = "codesworth.toml"
)

// ProjectConfig represents the per-repository configuration file
type ProjectConfig struct {
	Version string `yaml:"version" toml:"version"`

	// Languages limits discovery to these languages
	Languages []string `yaml:"languages,omitempty" toml:"languages,omitempty"`

	// Directory names skipped in addition to the built-in list
	IgnoreDirs []string `yaml:"ignore_dirs,omitempty" toml:"ignore_dirs,omitempty"`

	Analysis AnalysisSettings `yaml:"analysis" toml:"analysis"`
	LLM      LLMSettings      `yaml:"llm,omitempty" toml:"llm,omitempty"`
	Output   OutputSettings   `yaml:"output,omitempty" toml:"output,omitempty"`
}

// AnalysisSettings holds tracing preferences
type AnalysisSettings struct {
	MaxDepth       int    `yaml:"max_depth,omitempty" toml:"max_depth,omitempty"`
	Mode           string `yaml:"mode,omitempty" toml:"mode,omitempty"` // tree, paths
	MaxContextSize int    `yaml:"max_context_size,omitempty" toml:"max_context_size,omitempty"`
	Concurrency    int    `yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`
	MaxFileSize    int64  `yaml:"max_file_size,omitempty" toml:"max_file_size,omitempty"`
}

// LLMSettings holds summarization preferences
type LLMSettings struct {
	Enabled bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	// Tier used for group summaries (1, 2, 3)
	Tier int `yaml:"tier,omitempty" toml:"tier,omitempty"`
}

// OutputSettings holds export preferences
type OutputSettings struct {
	Dir      string `yaml:"dir,omitempty" toml:"dir,omitempty"`
	Compress bool   `yaml:"compress,omitempty" toml:"compress,omitempty"`
	Markdown bool   `yaml:"markdown,omitempty" toml:"markdown,omitempty"`

	// Keep <!-- PROTECTED --> blocks of earlier markdown when regenerating
	PreserveEdits bool `yaml:"preserve_edits" toml:"preserve_edits"`
}

// DefaultProjectConfig returns sensible defaults
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version: "1.0",
		Analysis: AnalysisSettings{
			MaxDepth:       6,
			Mode:           "tree",
			MaxContextSize: 1_000_000,
			Concurrency:    4,
			MaxFileSize:    1 << 20,
		},
		LLM: LLMSettings{
			Tier: 1,
		},
		Output: OutputSettings{
			Dir:           "docs/codesworth",
			Markdown:      true,
			PreserveEdits: true,
		},
	}
}

// LoadProjectConfig loads the project config from the given directory.
// YAML is preferred over TOML when both exist. A missing file yields the
// defaults.
func LoadProjectConfig(repoPath string) (*ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	for _, name := range []string{ProjectFileYAML, ProjectFileYML} {
		configPath := filepath.Join(repoPath, name)
		data, err := os.ReadFile(configPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return cfg, nil
	}

	configPath := filepath.Join(repoPath, ProjectFileTOML)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ProjectFileTOML, err)
	}
	return cfg, nil
}

// SaveProjectConfig saves the config to .codesworth.yaml
func SaveProjectConfig(repoPath string, cfg *ProjectConfig) error {
	configPath := filepath.Join(repoPath, ProjectFileYAML)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Merge applies overrides from another config (e.g., CLI flags)
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if len(other.Languages) > 0 {
		c.Languages = other.Languages
	}

	if len(other.IgnoreDirs) > 0 {
		c.IgnoreDirs = other.IgnoreDirs
	}

	if other.Analysis.MaxDepth != 0 {
		c.Analysis.MaxDepth = other.Analysis.MaxDepth
	}

	if other.Analysis.Mode != "" {
		c.Analysis.Mode = other.Analysis.Mode
	}

	if other.Analysis.MaxContextSize != 0 {
		c.Analysis.MaxContextSize = other.Analysis.MaxContextSize
	}

	if other.Analysis.Concurrency != 0 {
		c.Analysis.Concurrency = other.Analysis.Concurrency
	}

	if other.Analysis.MaxFileSize != 0 {
		c.Analysis.MaxFileSize = other.Analysis.MaxFileSize
	}

	if other.LLM.Enabled {
		c.LLM.Enabled = true
	}

	if other.LLM.Tier != 0 {
		c.LLM.Tier = other.LLM.Tier
	}

	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}

	if other.Output.Compress {
		c.Output.Compress = true
	}
}
