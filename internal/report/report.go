// Package report reads previously fetched records and renders summaries.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Cyphercomp/pokefetch/internal/pokedex"
)

// Summarize reads one downloaded record and renders the extract sentence.
func Summarize(path string) (string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read record: %w", err)
	}
	p, err := pokedex.ParsePokemon(body)
	if err != nil {
		return "", fmt.Errorf("parse record %s: %w", filepath.Base(path), err)
	}
	return p.Summary(), nil
}

// Stats aggregates the records included in a CSV report.
type Stats struct {
	Count         int
	AvgHeightM    float64
	AvgWeightKG   float64
	SkippedFiles  []string
	IncludedNames []string
}

// WriteCSV walks dir for *.json records, writes a name,height_m,weight_kg CSV
// to w, and returns aggregate stats. Files that fail to parse are skipped and
// reported in the stats rather than failing the report.
func WriteCSV(dir string, w io.Writer) (Stats, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return Stats{}, fmt.Errorf("list records: %w", err)
	}
	sort.Strings(paths)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "height_m", "weight_kg"}); err != nil {
		return Stats{}, fmt.Errorf("write csv header: %w", err)
	}

	var stats Stats
	var totalHeight, totalWeight float64
	for _, path := range paths {
		body, readErr := os.ReadFile(path)
		if readErr != nil {
			stats.SkippedFiles = append(stats.SkippedFiles, filepath.Base(path))
			continue
		}
		p, parseErr := pokedex.ParsePokemon(body)
		if parseErr != nil {
			stats.SkippedFiles = append(stats.SkippedFiles, filepath.Base(path))
			continue
		}

		row := []string{
			p.Name,
			strconv.FormatFloat(p.HeightMeters(), 'f', 1, 64),
			strconv.FormatFloat(p.WeightKilograms(), 'f', 1, 64),
		}
		if err := cw.Write(row); err != nil {
			return Stats{}, fmt.Errorf("write csv row: %w", err)
		}
		stats.Count++
		stats.IncludedNames = append(stats.IncludedNames, p.Name)
		totalHeight += p.HeightMeters()
		totalWeight += p.WeightKilograms()
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return Stats{}, fmt.Errorf("flush csv: %w", err)
	}

	if stats.Count > 0 {
		stats.AvgHeightM = totalHeight / float64(stats.Count)
		stats.AvgWeightKG = totalWeight / float64(stats.Count)
	}
	return stats, nil
}
