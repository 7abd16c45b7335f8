// Package cli provides output formatting for CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/tagindex"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "text", "":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults renders tag search hits to w in the chosen format.
func WriteSearchResults(w io.Writer, results []tagindex.Result, format OutputFormat) error {
	if format == OutputJSON {
		type jsonResult struct {
			Cluster string  `json:"cluster"`
			Tag     string  `json:"tag"`
			Score   float64 `json:"score"`
		}
		out := make([]jsonResult, len(results))
		for i, r := range results {
			out[i] = jsonResult{Cluster: r.Key.String(), Tag: r.Tag, Score: r.Score}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No matching clusters.")
		return nil
	}
	for _, r := range results {
		tag := r.Tag
		if tag == "" {
			tag = "(untagged)"
		}
		fmt.Fprintf(w, "%-8s %-40s %.3f\n", r.Key, utils.Truncate(tag, 40), r.Score)
	}
	return nil
}
