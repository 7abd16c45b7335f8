package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Dataset.Extensions == nil {
		cfg.Dataset.Extensions = []string{".png", ".jpg", ".jpeg", ".gif"}
	}
	if cfg.Dataset.LabelsFile == "" && cfg.Dataset.Directory != "" {
		cfg.Dataset.LabelsFile = cfg.Dataset.Directory + "/labels.json"
	}
	if cfg.Filter.MinEdge == 0 {
		cfg.Filter.MinEdge = 64
	}
	if cfg.Filter.MaxAspectRatio == 0 {
		cfg.Filter.MaxAspectRatio = 3.0
	}
	if cfg.Filter.DuplicateDistance == nil {
		d := 5
		cfg.Filter.DuplicateDistance = &d
	}
	if cfg.Filter.MaxLabelRuneLength == 0 {
		cfg.Filter.MaxLabelRuneLength = 64
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.ImageWeight == 0 && cfg.Embedding.TextWeight == 0 {
		cfg.Embedding.ImageWeight = 0.6
		cfg.Embedding.TextWeight = 0.4
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 4096
	}
	if cfg.Cluster.KCoarse == 0 {
		cfg.Cluster.KCoarse = 12
	}
	if cfg.Cluster.KFine == 0 {
		cfg.Cluster.KFine = 4
	}
	if cfg.Cluster.MinClusterSize == 0 {
		cfg.Cluster.MinClusterSize = 3
	}
	if cfg.Cluster.MaxIterations == 0 {
		cfg.Cluster.MaxIterations = 100
	}
	if cfg.Cluster.Seed == nil {
		s := int64(42)
		cfg.Cluster.Seed = &s
	}
	if cfg.Tagger.Endpoint == "" {
		cfg.Tagger.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Tagger.Model == "" {
		cfg.Tagger.Model = "gpt-4o-mini"
	}
	if cfg.Tagger.APIKeyEnv == "" {
		cfg.Tagger.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Tagger.RequestDelayMs == 0 {
		cfg.Tagger.RequestDelayMs = 1200
	}
	if cfg.Tagger.MaxRetries == 0 {
		cfg.Tagger.MaxRetries = 3
	}
	if cfg.Tagger.TimeoutSeconds == 0 {
		cfg.Tagger.TimeoutSeconds = 30
	}
	if cfg.Tagger.MaxRepresentatives == 0 {
		cfg.Tagger.MaxRepresentatives = 5
	}
	if cfg.Artifacts.ManifestPath == "" {
		cfg.Artifacts.ManifestPath = "./data/manifest.db"
	}
	if cfg.Artifacts.EmbeddingsPath == "" {
		cfg.Artifacts.EmbeddingsPath = "./data/embeddings.bin"
	}
	if cfg.Artifacts.ClustersPath == "" {
		cfg.Artifacts.ClustersPath = "./data/clusters.json"
	}
	if cfg.Artifacts.TagsPath == "" {
		cfg.Artifacts.TagsPath = "./data/tags.json"
	}
	if cfg.Artifacts.TagIndexPath == "" {
		cfg.Artifacts.TagIndexPath = "./data/tagindex"
	}
	if cfg.Artifacts.ReportPath == "" {
		cfg.Artifacts.ReportPath = "./data/clusters.xlsx"
	}
}
