// Package config provides configuration loading and structs for the cardprep pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Filter    FilterConfig    `yaml:"filter"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Tagger    TaggerConfig    `yaml:"tagger"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

// DatasetConfig describes the input card dataset.
type DatasetConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	LabelsFile string   `yaml:"labels_file"`
}

// FilterConfig holds image filter thresholds. DuplicateDistance is a pointer
// so an explicit 0 (exact hash match only) is distinguishable from unset.
type FilterConfig struct {
	MinEdge            int     `yaml:"min_edge"`
	MaxAspectRatio     float64 `yaml:"max_aspect_ratio"`
	DuplicateDistance  *int    `yaml:"duplicate_distance"`
	MaxLabelRuneLength int     `yaml:"max_label_rune_length"`
}

// EmbeddingConfig holds encoder model paths and fusion settings.
type EmbeddingConfig struct {
	ImageModelPath string  `yaml:"image_model_path"`
	TextModelPath  string  `yaml:"text_model_path"`
	Dimensions     int     `yaml:"dimensions"`
	BatchSize      int     `yaml:"batch_size"`
	ImageWeight    float64 `yaml:"image_weight"`
	TextWeight     float64 `yaml:"text_weight"`
	CacheSize      int     `yaml:"cache_size"`
}

// ClusterConfig holds the two-stage clustering parameters. Seed is a pointer
// so an explicitly chosen zero seed is distinguishable from unset.
type ClusterConfig struct {
	KCoarse        int    `yaml:"k_coarse"`
	KFine          int    `yaml:"k_fine"`
	MinClusterSize int    `yaml:"min_cluster_size"`
	MaxIterations  int    `yaml:"max_iterations"`
	Seed           *int64 `yaml:"seed"`
	Silhouette     bool   `yaml:"silhouette"`
}

// TaggerConfig holds the vision service endpoint and pacing policy.
type TaggerConfig struct {
	Endpoint           string `yaml:"endpoint"`
	Model              string `yaml:"model"`
	APIKeyEnv          string `yaml:"api_key_env"`
	RequestDelayMs     int    `yaml:"request_delay_ms"`
	MaxRetries         int    `yaml:"max_retries"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxRepresentatives int    `yaml:"max_representatives"`
}

// ArtifactsConfig holds output paths for stage artifacts and indices.
type ArtifactsConfig struct {
	ManifestPath   string `yaml:"manifest_path"`
	EmbeddingsPath string `yaml:"embeddings_path"`
	ClustersPath   string `yaml:"clusters_path"`
	TagsPath       string `yaml:"tags_path"`
	TagIndexPath   string `yaml:"tag_index_path"`
	ReportPath     string `yaml:"report_path"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if fusion weights
// do not sum to 1.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Dataset.Directory = expandPath(cfg.Dataset.Directory, configDir)
	cfg.Dataset.LabelsFile = expandPath(cfg.Dataset.LabelsFile, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Artifacts.ManifestPath = expandPath(cfg.Artifacts.ManifestPath, configDir)
	cfg.Artifacts.EmbeddingsPath = expandPath(cfg.Artifacts.EmbeddingsPath, configDir)
	cfg.Artifacts.ClustersPath = expandPath(cfg.Artifacts.ClustersPath, configDir)
	cfg.Artifacts.TagsPath = expandPath(cfg.Artifacts.TagsPath, configDir)
	cfg.Artifacts.TagIndexPath = expandPath(cfg.Artifacts.TagIndexPath, configDir)
	cfg.Artifacts.ReportPath = expandPath(cfg.Artifacts.ReportPath, configDir)

	return &cfg, nil
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if sum := c.Embedding.ImageWeight + c.Embedding.TextWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("embedding weights must sum to 1.0, got %.3f", sum)
	}
	if c.Cluster.KCoarse < 1 {
		return fmt.Errorf("k_coarse must be at least 1, got %d", c.Cluster.KCoarse)
	}
	if c.Cluster.KFine < 1 {
		return fmt.Errorf("k_fine must be at least 1, got %d", c.Cluster.KFine)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
