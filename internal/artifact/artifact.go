// Package artifact reads and writes the pipeline's persisted outputs:
// the fused embeddings file, cluster assignments, and cluster tags.
//
// All writers are atomic (temp file then rename) and deterministic: the
// same inputs produce byte-identical files, so re-running a stage without
// input changes leaves artifacts untouched at the byte level.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeAtomic writes via fn into a temp file next to path, then renames it
// into place so readers never observe a partial artifact.
func writeAtomic(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := fn(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact into place: %w", err)
	}
	return nil
}

// writeJSON writes v as indented JSON atomically.
func writeJSON(path string, v interface{}) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode artifact: %w", err)
		}
		return nil
	})
}

// readJSON decodes the JSON artifact at path into v.
func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}
