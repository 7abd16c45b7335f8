package cluster

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

func embeddingsFromVectors(vectors [][]float32) []models.FusedEmbedding {
	out := make([]models.FusedEmbedding, len(vectors))
	for i, v := range vectors {
		out[i] = models.FusedEmbedding{
			ImageID: fmt.Sprintf("card-%03d.png", i),
			Label:   fmt.Sprintf("label %d", i),
			Vector:  v,
		}
	}
	return out
}

func clusterConfig(kCoarse, kFine, minSize int) *config.ClusterConfig {
	seed := int64(42)
	return &config.ClusterConfig{
		KCoarse:        kCoarse,
		KFine:          kFine,
		MinClusterSize: minSize,
		MaxIterations:  100,
		Seed:           &seed,
	}
}

func TestCluster_twoObviousGroups(t *testing.T) {
	// 10 cards in 2 clearly distinct groups of 5; K_coarse=2, K_fine=1 must
	// recover the groups exactly.
	a := groupVectors(t, 16, 0, 5, 11)
	b := groupVectors(t, 16, 8, 5, 12)
	embs := embeddingsFromVectors(append(append([][]float32{}, a...), b...))

	c := New(clusterConfig(2, 1, 2))
	assignments, _, err := c.Cluster(embs)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 10 {
		t.Fatalf("got %d assignments, want 10", len(assignments))
	}

	sizes := make(map[models.ClusterKey]int)
	for _, a := range assignments {
		sizes[a.Key]++
	}
	if len(sizes) != 2 {
		t.Fatalf("got %d fine clusters, want 2: %v", len(sizes), sizes)
	}
	for key, n := range sizes {
		if n != 5 {
			t.Errorf("cluster %v has %d members, want 5", key, n)
		}
	}
	// Perfect separation: the first five share one key, the last five the other.
	for i := 1; i < 5; i++ {
		if assignments[i].Key != assignments[0].Key {
			t.Errorf("group a split at %d", i)
		}
	}
	for i := 6; i < 10; i++ {
		if assignments[i].Key != assignments[5].Key {
			t.Errorf("group b split at %d", i)
		}
	}
	if assignments[0].Key == assignments[5].Key {
		t.Error("groups merged")
	}
}

func TestCluster_deterministicAcrossRuns(t *testing.T) {
	vectors := append(groupVectors(t, 16, 0, 12, 13), groupVectors(t, 16, 5, 12, 14)...)
	vectors = append(vectors, groupVectors(t, 16, 10, 12, 15)...)
	embs := embeddingsFromVectors(vectors)

	c := New(clusterConfig(3, 2, 3))
	first, _, err := c.Cluster(embs)
	if err != nil {
		t.Fatal(err)
	}
	for run := 0; run < 3; run++ {
		again, _, err := New(clusterConfig(3, 2, 3)).Cluster(embs)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: assignments differ for identical seed and input", run)
		}
	}
}

func TestCluster_everyEmbeddingAssignedOnce(t *testing.T) {
	vectors := append(groupVectors(t, 16, 0, 17, 16), groupVectors(t, 16, 7, 9, 17)...)
	embs := embeddingsFromVectors(vectors)

	assignments, _, err := New(clusterConfig(4, 3, 2)).Cluster(embs)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != len(embs) {
		t.Fatalf("got %d assignments, want %d", len(assignments), len(embs))
	}
	seen := make(map[string]bool)
	for _, a := range assignments {
		if a.ImageID == "" {
			t.Fatal("empty image id in assignment")
		}
		if seen[a.ImageID] {
			t.Fatalf("image %s assigned twice", a.ImageID)
		}
		seen[a.ImageID] = true
	}
}

func TestCluster_minClusterSizeEnforced(t *testing.T) {
	vectors := append(groupVectors(t, 16, 0, 20, 18), groupVectors(t, 16, 6, 20, 19)...)
	embs := embeddingsFromVectors(vectors)

	minSize := 4
	assignments, _, err := New(clusterConfig(2, 5, minSize)).Cluster(embs)
	if err != nil {
		t.Fatal(err)
	}
	sizes := make(map[models.ClusterKey]int)
	singleton := make(map[models.ClusterKey]bool)
	for _, a := range assignments {
		sizes[a.Key]++
		if a.Singleton {
			singleton[a.Key] = true
		}
	}
	for key, n := range sizes {
		if n < minSize && !singleton[key] {
			t.Errorf("cluster %v has %d members (< %d) and is not flagged singleton", key, n, minSize)
		}
	}
}

func TestCluster_tinyCoarseGroupBecomesSingleton(t *testing.T) {
	// 2 isolated vectors plus one large group: with K_coarse=2 the isolated
	// pair forms a coarse group below the minimum and must stay, flagged.
	big := groupVectors(t, 16, 0, 10, 20)
	tiny := groupVectors(t, 16, 9, 2, 21)
	embs := embeddingsFromVectors(append(append([][]float32{}, big...), tiny...))

	assignments, _, err := New(clusterConfig(2, 2, 3)).Cluster(embs)
	if err != nil {
		t.Fatal(err)
	}
	var flagged int
	for _, a := range assignments {
		if a.Singleton {
			flagged++
		}
	}
	if flagged != 2 {
		t.Errorf("flagged %d assignments, want the 2 isolated cards", flagged)
	}
	if len(assignments) != 12 {
		t.Errorf("got %d assignments, want 12 (nothing dropped)", len(assignments))
	}
}

func TestCluster_emptyInput(t *testing.T) {
	if _, _, err := New(clusterConfig(2, 2, 2)).Cluster(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestCluster_silhouetteDiagnostics(t *testing.T) {
	cfg := clusterConfig(2, 1, 2)
	cfg.Silhouette = true
	a := groupVectors(t, 16, 0, 6, 22)
	b := groupVectors(t, 16, 8, 6, 23)
	embs := embeddingsFromVectors(append(append([][]float32{}, a...), b...))

	_, diag, err := New(cfg).Cluster(embs)
	if err != nil {
		t.Fatal(err)
	}
	if diag == nil {
		t.Fatal("expected diagnostics")
	}
	if diag.CoarseSilhouette < 0.5 {
		t.Errorf("coarse silhouette = %v, want high for separable data", diag.CoarseSilhouette)
	}
}
