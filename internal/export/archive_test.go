package export

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternloom/loom/internal/pattern"
	"github.com/patternloom/loom/internal/render"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Sunset Garden", want: "Sunset Garden"},
		{name: "reserved chars", in: `a/b\c:d*e?f"g<h>i|j`, want: "abcdefghij"},
		{name: "whitespace collapsed", in: "  a \t b\n\nc  ", want: "a b c"},
		{name: "control chars dropped", in: "a\x00b\x1fc", want: "abc"},
		{name: "unicode kept", in: "Jardín 🌻", want: "Jardín 🌻"},
		{name: "nothing usable", in: `///\\\`, want: ""},
		{name: "length capped", in: string(bytes.Repeat([]byte("x"), 100)), want: string(bytes.Repeat([]byte("x"), 64))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func fixedBuilder() *Builder {
	return &Builder{Now: func() time.Time {
		return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	}}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = content
	}
	return out
}

func TestBuildArchiveLayout(t *testing.T) {
	patterns := []pattern.Pattern{
		exportPattern("pat-1", "Sunset Garden"),
		exportPattern("pat-2", "Sunset Garden"), // duplicate title
		exportPattern("pat-3", ""),              // falls back to id
	}
	results := []Result{
		{PatternID: "pat-1", PatternName: "Sunset Garden", Format: render.FormatText, Filename: "Sunset Garden.txt", Size: 3, OK: true, Artifact: render.Artifact{Data: []byte("one")}},
		{PatternID: "pat-2", PatternName: "Sunset Garden", Format: render.FormatText, Filename: "Sunset Garden.txt", Size: 3, OK: true, Artifact: render.Artifact{Data: []byte("two")}},
		{PatternID: "pat-3", PatternName: "", Format: render.FormatText, Filename: "pat-3.txt", Size: 5, OK: true, Artifact: render.Artifact{Data: []byte("three")}},
		{PatternID: "pat-1", PatternName: "Sunset Garden", Format: render.FormatPNG, ErrMessage: "surface lost"},
	}

	data, err := fixedBuilder().Build(results, patterns, ManifestOptions{
		Include: true,
		Formats: []render.Format{render.FormatText, render.FormatPNG},
		Render:  render.Options{}.WithDefaults(),
	})
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Equal(t, []byte("one"), files["Sunset Garden/Sunset Garden.txt"])
	assert.Equal(t, []byte("two"), files["Sunset Garden-2/Sunset Garden.txt"])
	assert.Equal(t, []byte("three"), files["pat-3/pat-3.txt"])
	require.Contains(t, files, "manifest.json")
	require.Contains(t, files, "EXPORT_SUMMARY.txt")

	// Failed tasks contribute no file but show up in the summary.
	summary := string(files["EXPORT_SUMMARY.txt"])
	assert.Contains(t, summary, "Failed:")
	assert.Contains(t, summary, "surface lost")
	assert.NotContains(t, files, "Sunset Garden/Sunset Garden.png")
}

func TestBuildArchiveWithoutManifest(t *testing.T) {
	patterns := []pattern.Pattern{exportPattern("pat-1", "One")}
	results := []Result{
		{PatternID: "pat-1", PatternName: "One", Format: render.FormatText, Filename: "One.txt", Size: 1, OK: true, Artifact: render.Artifact{Data: []byte("x")}},
	}

	data, err := fixedBuilder().Build(results, patterns, ManifestOptions{
		Formats: []render.Format{render.FormatText},
		Render:  render.Options{}.WithDefaults(),
	})
	require.NoError(t, err)

	files := readZip(t, data)
	assert.NotContains(t, files, "manifest.json")
	assert.NotContains(t, files, "EXPORT_SUMMARY.txt")
	assert.Contains(t, files, "One/One.txt")
}

// Full pipeline: coordinator output through the archive builder, manifest
// checked against a golden file. Pattern order in the manifest follows
// input order regardless of render completion order.
func TestProcessBatchManifestGolden(t *testing.T) {
	fr := &fakeRenderer{delay: 2 * time.Millisecond}
	c := NewCoordinator(fr, WithFormatPause(0), WithArchiveBuilder(fixedBuilder()))

	patterns := []pattern.Pattern{
		exportPattern("pat-1", "Sunset Garden"),
		exportPattern("pat-2", "Ocean Waves"),
	}
	opts := BatchOptions{
		Formats:         []render.Format{render.FormatText, render.FormatPNG},
		CreateZip:       true,
		IncludeManifest: true,
	}

	result, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	require.NotEmpty(t, result.Archive)

	files := readZip(t, result.Archive)
	require.Contains(t, files, "manifest.json")
	assert.Contains(t, files, "Sunset Garden/Sunset Garden.txt")
	assert.Contains(t, files, "Sunset Garden/Sunset Garden.png")
	assert.Contains(t, files, "Ocean Waves/Ocean Waves.txt")
	assert.Contains(t, files, "Ocean Waves/Ocean Waves.png")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "manifest", files["manifest.json"])
}
