// Package dataset scans a directory of AAC card images and associates each
// image with its label text.
package dataset

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// Scanner lists card images under a dataset root. Labels come from an
// optional labels.json sidecar (filename -> label); files without an entry
// fall back to a label derived from the filename.
type Scanner struct {
	root       string
	extensions []string
	labelsFile string
}

// NewScanner creates a scanner for the dataset at root. extensions filters
// which files are treated as cards (empty = all); labelsFile may be "" to
// use filename-derived labels only.
func NewScanner(root string, extensions []string, labelsFile string) *Scanner {
	return &Scanner{root: root, extensions: extensions, labelsFile: labelsFile}
}

// Scan walks the dataset root and returns one CardImage per matching file,
// sorted by ID so downstream stages see a stable order. Image contents are
// not decoded here; a corrupt file surfaces later as a per-item filter failure.
func (s *Scanner) Scan() ([]models.CardImage, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat dataset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset root is not a directory: %s", s.root)
	}

	labels, err := s.loadLabels()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var cards []models.CardImage
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(s.extensions) > 0 && !extensionAllowed(ext, s.extensions) {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		id := filepath.ToSlash(rel)
		label, ok := labels[id]
		if !ok {
			label = LabelFromFilename(id)
		}
		cards = append(cards, models.CardImage{
			ID:        id,
			Path:      path,
			Label:     label,
			ScannedAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk dataset: %w", err)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

// loadLabels reads the labels sidecar. A missing file is not an error;
// an unparseable one is, since silently ignoring it would mislabel the run.
func (s *Scanner) loadLabels() (map[string]string, error) {
	if s.labelsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.labelsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	labels := make(map[string]string)
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse labels file: %w", err)
	}
	return labels, nil
}

// LabelFromFilename derives a label from a card filename: the base name
// without extension, with underscores, hyphens, and dots spaced out
// ("red_apple.png" -> "red apple").
func LabelFromFilename(id string) string {
	base := filepath.Base(id)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	replacer := strings.NewReplacer("_", " ", "-", " ", ".", " ")
	return strings.Join(strings.Fields(replacer.Replace(base)), " ")
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}

// DecodeImage reads and decodes the image file at path. PNG, JPEG, and GIF
// formats are registered.
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
