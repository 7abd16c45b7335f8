// Package tagindex provides full-text search over cluster tags, so a curator
// can find which clusters cover a topic without scanning the tags artifact.
package tagindex

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// clusterDoc is the indexed representation of one tagged cluster.
type clusterDoc struct {
	Key    string `json:"key"`
	Tag    string `json:"tag"`
	Labels string `json:"labels"`
}

// Result is one search hit: a cluster key, its tag, and the match score.
type Result struct {
	Key   models.ClusterKey
	Tag   string
	Score float64
}

// Index is a Bleve index over cluster tags and member labels.
type Index struct {
	index bleve.Index
}

// New creates or opens a tag index at path. An empty path builds an
// in-memory index.
func New(path string) (*Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so short tag
	// words match exactly.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("tag", textFieldMapping)
	docMapping.AddFieldMappingsAt("labels", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("key", keywordFieldMapping)
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory tag index: %w", err)
		}
		return &Index{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open tag index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag index: %w", err)
	}
	return &Index{index: index}, nil
}

// IndexTags indexes every tagged cluster. members maps a cluster key to its
// member labels; fallback-tagged clusters are indexed by labels only so they
// stay findable. Document IDs are cluster keys, so re-indexing replaces
// previous entries.
func (idx *Index) IndexTags(ctx context.Context, tags []models.ClusterTag, members map[models.ClusterKey][]string) error {
	batch := idx.index.NewBatch()
	for _, t := range tags {
		doc := clusterDoc{
			Key:    t.Key.String(),
			Labels: strings.Join(members[t.Key], " "),
		}
		if !t.Fallback {
			doc.Tag = t.Tag
		}
		if err := batch.Index(doc.Key, doc); err != nil {
			return fmt.Errorf("failed to index cluster %s: %w", doc.Key, err)
		}
	}
	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply tag index batch: %w", err)
	}
	return nil
}

// Search returns up to limit clusters matching query, best first.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"tag"}
	res, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("tag search failed: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		var key models.ClusterKey
		if _, err := fmt.Sscanf(hit.ID, "%d/%d", &key.Coarse, &key.Fine); err != nil {
			continue
		}
		tag, _ := hit.Fields["tag"].(string)
		out = append(out, Result{Key: key, Tag: tag, Score: hit.Score})
	}
	return out, nil
}

// Count returns the number of indexed clusters.
func (idx *Index) Count() (uint64, error) {
	return idx.index.DocCount()
}

// Close releases the index.
func (idx *Index) Close() error {
	return idx.index.Close()
}
