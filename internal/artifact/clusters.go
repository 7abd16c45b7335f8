package artifact

import (
	"sort"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// ClustersFile is the clusters.json artifact: every assignment plus the
// optional quality diagnostics from the clustering stage.
type ClustersFile struct {
	Assignments      []models.ClusterAssignment `json:"assignments"`
	CoarseSilhouette float64                    `json:"coarse_silhouette,omitempty"`
	FineSilhouette   map[int]float64            `json:"fine_silhouette,omitempty"`
}

// WriteClusters writes the cluster assignments artifact. Assignments are
// sorted by image ID so the file is deterministic.
func WriteClusters(path string, file ClustersFile) error {
	sorted := make([]models.ClusterAssignment, len(file.Assignments))
	copy(sorted, file.Assignments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ImageID < sorted[j].ImageID })
	file.Assignments = sorted
	return writeJSON(path, file)
}

// ReadClusters loads the cluster assignments artifact.
func ReadClusters(path string) (ClustersFile, error) {
	var file ClustersFile
	err := readJSON(path, &file)
	return file, err
}
