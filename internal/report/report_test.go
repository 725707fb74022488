package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pikachuBody = `{"name":"pikachu","height":4,"weight":60,` +
	`"types":[{"slot":1,"type":{"name":"electric"}}]}`

const snorlaxBody = `{"name":"snorlax","height":21,"weight":4600,` +
	`"types":[{"slot":1,"type":{"name":"normal"}}]}`

func writeRecord(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRecord(t, dir, "pikachu.json", pikachuBody)

	sentence, err := Summarize(filepath.Join(dir, "pikachu.json"))
	require.NoError(t, err)
	assert.Equal(t, "Pikachu is of type electric, weighs 6kg, and is 0.4m tall.", sentence)
}

func TestSummarizeMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRecord(t, dir, "broken.json", `{"name":""}`)

	_, err := Summarize(filepath.Join(dir, "broken.json"))
	assert.Error(t, err)
}

func TestSummarizeMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Summarize(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRecord(t, dir, "pikachu.json", pikachuBody)
	writeRecord(t, dir, "snorlax.json", snorlaxBody)
	writeRecord(t, dir, "broken.json", "not json")
	writeRecord(t, dir, "notes.txt", "ignored")

	var buf bytes.Buffer
	stats, err := WriteCSV(dir, &buf)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, []string{"pikachu", "snorlax"}, stats.IncludedNames)
	assert.Equal(t, []string{"broken.json"}, stats.SkippedFiles)
	assert.InDelta(t, (0.4+2.1)/2, stats.AvgHeightM, 1e-9)
	assert.InDelta(t, (6.0+460.0)/2, stats.AvgWeightKG, 1e-9)

	want := "name,height_m,weight_kg\n" +
		"pikachu,0.4,6.0\n" +
		"snorlax,2.1,460.0\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVEmptyDir(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	stats, err := WriteCSV(t.TempDir(), &buf)
	require.NoError(t, err)

	assert.Zero(t, stats.Count)
	assert.Equal(t, "name,height_m,weight_kg\n", buf.String())
}
