package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoom(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExportCommandWritesLooseFiles(t *testing.T) {
	doc := writeDoc(t, `
patterns:
  - id: pat-1
    title: Sunset Garden
    cells: ["🌻", "🌙"]
    grid_size: 3
  - id: pat-2
    title: Ocean Waves
    cells: ["🌊"]
    grid_size: 3
`)
	outDir := filepath.Join(t.TempDir(), "rendered")

	out, err := runLoom(t, "export", doc, "--formats", "text,svg", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 4/4 tasks")

	for _, name := range []string{
		"Sunset Garden.txt", "Sunset Garden.svg",
		"Ocean Waves.txt", "Ocean Waves.svg",
	} {
		_, statErr := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, statErr, "expected %s", name)
	}
}

func TestExportCommandZip(t *testing.T) {
	doc := writeDoc(t, `
patterns:
  - id: pat-1
    title: Sunset Garden
    cells: ["🌻"]
    grid_size: 3
`)
	archive := filepath.Join(t.TempDir(), "export.zip")

	out, err := runLoom(t, "--format", "json",
		"export", doc, "--formats", "text", "--zip", "--manifest", "--out", archive)
	require.NoError(t, err)

	info, statErr := os.Stat(archive)
	require.NoError(t, statErr)
	assert.Greater(t, info.Size(), int64(0))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestExportCommandBadDocument(t *testing.T) {
	doc := writeDoc(t, "patterns: []")

	_, err := runLoom(t, "export", doc, "--formats", "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExportCommandUnknownFormat(t *testing.T) {
	doc := writeDoc(t, `
patterns:
  - title: One
    cells: ["🌻"]
    grid_size: 3
`)

	_, err := runLoom(t, "export", doc, "--formats", "bmp")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExportCommandRejectsOversizeDimensions(t *testing.T) {
	doc := writeDoc(t, `
patterns:
  - title: One
    cells: ["🌻"]
    grid_size: 3
`)

	_, err := runLoom(t, "export", doc, "--formats", "png", "--width", "5000", "--height", "5000")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
