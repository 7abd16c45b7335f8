package artifact

import (
	"sort"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// WriteTags writes the cluster tags artifact, sorted by cluster key.
func WriteTags(path string, tags []models.ClusterTag) error {
	sorted := make([]models.ClusterTag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key.Coarse != sorted[j].Key.Coarse {
			return sorted[i].Key.Coarse < sorted[j].Key.Coarse
		}
		return sorted[i].Key.Fine < sorted[j].Key.Fine
	})
	return writeJSON(path, sorted)
}

// ReadTags loads the cluster tags artifact.
func ReadTags(path string) ([]models.ClusterTag, error) {
	var tags []models.ClusterTag
	err := readJSON(path, &tags)
	return tags, err
}
