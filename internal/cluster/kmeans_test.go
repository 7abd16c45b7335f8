package cluster

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

// groupVectors returns n unit vectors scattered tightly around a base axis.
func groupVectors(t *testing.T, dim, axis, n int, seed int64) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		v[axis] = 1
		for d := range v {
			v[d] += float32(rng.Float64() * 0.05)
		}
		utils.NormalizeL2(v)
		out[i] = v
	}
	return out
}

func TestKMeans_deterministicForFixedSeed(t *testing.T) {
	vectors := append(groupVectors(t, 8, 0, 6, 1), groupVectors(t, 8, 3, 6, 2)...)

	first, err := KMeans(vectors, 3, 42, 100)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := KMeans(vectors, 3, 42, 100)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first.Assignments, again.Assignments) {
			t.Fatalf("run %d: assignments differ for identical seed and input", i)
		}
	}

	other, err := KMeans(vectors, 3, 7, 100)
	if err != nil {
		t.Fatal(err)
	}
	_ = other // a different seed may legitimately produce the same partition
}

func TestKMeans_separatesDistinctGroups(t *testing.T) {
	a := groupVectors(t, 8, 0, 5, 3)
	b := groupVectors(t, 8, 4, 5, 4)
	vectors := append(append([][]float32{}, a...), b...)

	res, err := KMeans(vectors, 2, 42, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Error("expected convergence on trivially separable data")
	}
	// All of group a in one cluster, all of group b in the other.
	for i := 1; i < 5; i++ {
		if res.Assignments[i] != res.Assignments[0] {
			t.Fatalf("group a split: %v", res.Assignments)
		}
	}
	for i := 6; i < 10; i++ {
		if res.Assignments[i] != res.Assignments[5] {
			t.Fatalf("group b split: %v", res.Assignments)
		}
	}
	if res.Assignments[0] == res.Assignments[5] {
		t.Fatalf("groups merged: %v", res.Assignments)
	}
}

func TestKMeans_kClampedToVectorCount(t *testing.T) {
	vectors := groupVectors(t, 4, 0, 3, 5)
	res, err := KMeans(vectors, 10, 42, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Centroids) != 3 {
		t.Errorf("got %d centroids, want 3", len(res.Centroids))
	}
}

func TestKMeans_errors(t *testing.T) {
	if _, err := KMeans(nil, 2, 42, 10); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := KMeans(groupVectors(t, 4, 0, 2, 6), 0, 42, 10); err == nil {
		t.Error("expected error for k < 1")
	}
	mixed := [][]float32{{1, 0}, {1, 0, 0}}
	if _, err := KMeans(mixed, 1, 42, 10); err == nil {
		t.Error("expected error for mixed dimensions")
	}
}

func TestKMeans_centroidsAreUnitLength(t *testing.T) {
	vectors := append(groupVectors(t, 8, 0, 5, 7), groupVectors(t, 8, 2, 5, 8)...)
	res, err := KMeans(vectors, 2, 42, 100)
	if err != nil {
		t.Fatal(err)
	}
	for j, c := range res.Centroids {
		if n := utils.L2Norm(c); n < 0.999 || n > 1.001 {
			t.Errorf("centroid %d norm = %v, want 1", j, n)
		}
	}
}

func TestSilhouette(t *testing.T) {
	a := groupVectors(t, 8, 0, 5, 9)
	b := groupVectors(t, 8, 4, 5, 10)
	vectors := append(append([][]float32{}, a...), b...)
	good := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	bad := []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}

	if s := Silhouette(vectors, good); s < 0.5 {
		t.Errorf("well-separated clustering scored %v, want high", s)
	}
	if sGood, sBad := Silhouette(vectors, good), Silhouette(vectors, bad); sBad >= sGood {
		t.Errorf("scrambled clustering (%v) should score below true clustering (%v)", sBad, sGood)
	}
	if s := Silhouette(vectors, make([]int, len(vectors))); s != 0 {
		t.Errorf("single cluster silhouette = %v, want 0", s)
	}
}
