// Package models defines core data structures for card images, embeddings,
// cluster assignments, and cluster tags.
package models

import (
	"fmt"
	"time"
)

// CardImage is one picture card in the input dataset: an image file plus its
// associated label text. ID is the filename relative to the dataset root.
type CardImage struct {
	ID        string    `json:"id" db:"id"`
	Path      string    `json:"path" db:"path"`
	Label     string    `json:"label" db:"label"`
	ScannedAt time.Time `json:"scanned_at" db:"scanned_at"`
}

// RejectReason is the category that caused a card to fail filtering.
type RejectReason string

const (
	RejectUnreadable     RejectReason = "unreadable"
	RejectTooSmall       RejectReason = "too_small"
	RejectExtremeAspect  RejectReason = "extreme_aspect"
	RejectIllegibleLabel RejectReason = "illegible_label"
	RejectDuplicate      RejectReason = "duplicate"
)

// FilterVerdict is the per-card filter outcome. Reason is empty when Accepted.
type FilterVerdict struct {
	ImageID  string       `json:"image_id" db:"image_id"`
	Accepted bool         `json:"accepted" db:"accepted"`
	Reason   RejectReason `json:"reason,omitempty" db:"reason"`
}

// FusedEmbedding is the fused image+text vector for one accepted card.
// Vector is unit-length; Dimension is constant across a dataset.
type FusedEmbedding struct {
	ImageID string    `json:"image_id"`
	Label   string    `json:"label"`
	Vector  []float32 `json:"-"`
}

// ClusterKey identifies a fine cluster within its parent coarse cluster.
// Fine ids are unique only within a coarse cluster.
type ClusterKey struct {
	Coarse int `json:"coarse"`
	Fine   int `json:"fine"`
}

// String renders the key in the "coarse/fine" form used by artifact files
// and the tag index.
func (k ClusterKey) String() string {
	return fmt.Sprintf("%d/%d", k.Coarse, k.Fine)
}

// ClusterAssignment maps one card to its (coarse, fine) cluster.
// Singleton marks a fine cluster that was kept below the minimum size
// instead of being merged (a coarse group too small to subdivide).
type ClusterAssignment struct {
	ImageID   string     `json:"image_id"`
	Key       ClusterKey `json:"key"`
	Singleton bool       `json:"singleton,omitempty"`
}

// ClusterTag is the short topic label assigned to one fine cluster.
// Fallback is true when tagging failed and the placeholder was recorded.
type ClusterTag struct {
	Key      ClusterKey `json:"key"`
	Tag      string     `json:"tag"`
	Fallback bool       `json:"fallback,omitempty"`
}
