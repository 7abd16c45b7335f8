// Package report exports a human-readable cluster summary workbook for
// dataset curators.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

const (
	clustersSheet   = "Clusters"
	rejectionsSheet = "Rejections"
)

// Summary is everything the report needs from the pipeline outputs.
type Summary struct {
	Assignments    []models.ClusterAssignment
	Tags           []models.ClusterTag
	Labels         map[string]string // image ID -> label
	Rejections     map[models.RejectReason]int
	FineSilhouette map[int]float64 // coarse ID -> silhouette of its fine split
}

// Write renders the summary to an xlsx workbook at path: one row per fine
// cluster with its tag, size, and sample labels, plus a rejection breakdown
// sheet.
func Write(path string, s Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeClustersSheet(f, s); err != nil {
		return err
	}
	if err := writeRejectionsSheet(f, s.Rejections); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func writeClustersSheet(f *excelize.File, s Summary) error {
	if err := f.SetSheetName("Sheet1", clustersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"Cluster", "Tag", "Size", "Singleton", "Silhouette", "Sample Labels"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(clustersSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	tagByKey := make(map[models.ClusterKey]models.ClusterTag, len(s.Tags))
	for _, t := range s.Tags {
		tagByKey[t.Key] = t
	}
	members := make(map[models.ClusterKey][]string)
	singleton := make(map[models.ClusterKey]bool)
	for _, a := range s.Assignments {
		label := s.Labels[a.ImageID]
		if label == "" {
			label = a.ImageID
		}
		members[a.Key] = append(members[a.Key], label)
		if a.Singleton {
			singleton[a.Key] = true
		}
	}

	keys := make([]models.ClusterKey, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Coarse != keys[j].Coarse {
			return keys[i].Coarse < keys[j].Coarse
		}
		return keys[i].Fine < keys[j].Fine
	})

	for row, key := range keys {
		labels := members[key]
		sort.Strings(labels)
		sample := labels
		if len(sample) > 5 {
			sample = sample[:5]
		}
		sampleText := ""
		for i, l := range sample {
			if i > 0 {
				sampleText += ", "
			}
			sampleText += l
		}

		silhouette := ""
		if score, ok := s.FineSilhouette[key.Coarse]; ok {
			silhouette = fmt.Sprintf("%.3f", score)
		}

		values := []interface{}{
			key.String(),
			tagByKey[key].Tag,
			len(labels),
			singleton[key],
			silhouette,
			sampleText,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(clustersSheet, cell, v); err != nil {
				return fmt.Errorf("write cluster row: %w", err)
			}
		}
	}
	return nil
}

func writeRejectionsSheet(f *excelize.File, rejections map[models.RejectReason]int) error {
	if _, err := f.NewSheet(rejectionsSheet); err != nil {
		return fmt.Errorf("create rejections sheet: %w", err)
	}
	if err := f.SetCellValue(rejectionsSheet, "A1", "Reason"); err != nil {
		return err
	}
	if err := f.SetCellValue(rejectionsSheet, "B1", "Count"); err != nil {
		return err
	}

	reasons := make([]string, 0, len(rejections))
	for r := range rejections {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	for i, r := range reasons {
		if err := f.SetCellValue(rejectionsSheet, fmt.Sprintf("A%d", i+2), r); err != nil {
			return err
		}
		if err := f.SetCellValue(rejectionsSheet, fmt.Sprintf("B%d", i+2), rejections[models.RejectReason(r)]); err != nil {
			return err
		}
	}
	return nil
}
