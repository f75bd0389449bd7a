package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/patternloom/loom/internal/pattern"
	"github.com/patternloom/loom/internal/render"
)

// maxFolderNameLen caps sanitized folder names.
const maxFolderNameLen = 64

// SanitizeName turns a pattern title into a filesystem-safe name: NFC
// normalized, reserved and control characters stripped, whitespace runs
// collapsed to a single space, trimmed, length-capped. Returns "" when
// nothing usable remains.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	lastSpace := false
	for _, r := range name {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r), unicode.IsControl(r):
			// dropped
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	out := strings.TrimSpace(b.String())
	if runes := []rune(out); len(runes) > maxFolderNameLen {
		out = strings.TrimSpace(string(runes[:maxFolderNameLen]))
	}
	return out
}

// ManifestOptions control the manifest entries of an archive.
type ManifestOptions struct {
	// Include adds manifest.json and EXPORT_SUMMARY.txt at the archive root.
	Include bool
	Formats []render.Format
	Render  render.Options
}

// Manifest is the machine-readable archive index.
type Manifest struct {
	ExportDate    string           `json:"exportDate"`
	TotalPatterns int              `json:"totalPatterns"`
	Formats       []string         `json:"formats"`
	Patterns      []ManifestEntry  `json:"patterns"`
	Settings      ManifestSettings `json:"settings"`
}

// ManifestEntry lists one pattern's successfully produced files.
type ManifestEntry struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Files []ManifestFile `json:"files"`
}

// ManifestFile describes one archived artifact.
type ManifestFile struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

// ManifestSettings echoes the export configuration used.
type ManifestSettings struct {
	Width     int  `json:"width"`
	Height    int  `json:"height"`
	Quality   int  `json:"quality"`
	GridLines bool `json:"gridLines"`
}

// Builder assembles export archives. Now is the clock used for timestamps;
// tests pin it for deterministic output.
type Builder struct {
	Now func() time.Time
}

// NewBuilder creates a builder on the wall clock.
func NewBuilder() *Builder {
	return &Builder{Now: time.Now}
}

// Build assembles a zip archive: one sanitized folder per input pattern
// holding its successful artifacts, plus manifest.json and
// EXPORT_SUMMARY.txt at the root when requested. Folder and manifest order
// follow input pattern order. Failed tasks contribute no file but appear in
// the summary. Any write failure aborts with an ArchiveError: a partial
// archive is never returned.
func (b *Builder) Build(results []Result, patterns []pattern.Pattern, opts ManifestOptions) ([]byte, error) {
	now := b.Now().UTC()

	byPattern := make(map[string][]Result, len(patterns))
	for _, r := range results {
		byPattern[r.PatternID] = append(byPattern[r.PatternID], r)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	man := Manifest{
		ExportDate:    now.Format(time.RFC3339),
		TotalPatterns: len(patterns),
		Settings: ManifestSettings{
			Width:     opts.Render.Width,
			Height:    opts.Render.Height,
			Quality:   opts.Render.Quality,
			GridLines: opts.Render.GridLines,
		},
	}
	for _, f := range opts.Formats {
		man.Formats = append(man.Formats, string(f))
	}

	seen := make(map[string]int, len(patterns))
	for _, p := range patterns {
		folder := SanitizeName(p.Title)
		if folder == "" {
			folder = SanitizeName(p.ID)
		}
		if folder == "" {
			folder = "pattern"
		}
		seen[folder]++
		if n := seen[folder]; n > 1 {
			folder = fmt.Sprintf("%s-%d", folder, n)
		}

		entry := ManifestEntry{ID: p.ID, Name: p.Title, Files: []ManifestFile{}}
		for _, r := range byPattern[p.ID] {
			if !r.OK {
				continue
			}
			if err := b.writeFile(zw, folder+"/"+r.Filename, r.Artifact.Data, now); err != nil {
				return nil, err
			}
			entry.Files = append(entry.Files, ManifestFile{
				Format:   string(r.Format),
				Filename: r.Filename,
				Size:     r.Size,
			})
		}
		man.Patterns = append(man.Patterns, entry)
	}

	if opts.Include {
		manJSON, err := json.MarshalIndent(man, "", "  ")
		if err != nil {
			return nil, &ArchiveError{Message: "encoding manifest", Err: err}
		}
		if err := b.writeFile(zw, "manifest.json", append(manJSON, '\n'), now); err != nil {
			return nil, err
		}
		if err := b.writeFile(zw, "EXPORT_SUMMARY.txt", summaryText(man, results), now); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, &ArchiveError{Message: "finalizing archive", Err: err}
	}
	return buf.Bytes(), nil
}

// BuildManifest exposes the manifest without assembling an archive, for
// callers that export loose files but still want the index.
func (b *Builder) BuildManifest(results []Result, patterns []pattern.Pattern, opts ManifestOptions) Manifest {
	now := b.Now().UTC()
	man := Manifest{
		ExportDate:    now.Format(time.RFC3339),
		TotalPatterns: len(patterns),
		Settings: ManifestSettings{
			Width:     opts.Render.Width,
			Height:    opts.Render.Height,
			Quality:   opts.Render.Quality,
			GridLines: opts.Render.GridLines,
		},
	}
	for _, f := range opts.Formats {
		man.Formats = append(man.Formats, string(f))
	}
	byPattern := make(map[string][]Result, len(patterns))
	for _, r := range results {
		byPattern[r.PatternID] = append(byPattern[r.PatternID], r)
	}
	for _, p := range patterns {
		entry := ManifestEntry{ID: p.ID, Name: p.Title, Files: []ManifestFile{}}
		for _, r := range byPattern[p.ID] {
			if r.OK {
				entry.Files = append(entry.Files, ManifestFile{Format: string(r.Format), Filename: r.Filename, Size: r.Size})
			}
		}
		man.Patterns = append(man.Patterns, entry)
	}
	return man
}

func (b *Builder) writeFile(zw *zip.Writer, name string, data []byte, mod time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: mod,
	})
	if err != nil {
		return &ArchiveError{Message: fmt.Sprintf("creating %s", name), Err: err}
	}
	if _, err := w.Write(data); err != nil {
		return &ArchiveError{Message: fmt.Sprintf("writing %s", name), Err: err}
	}
	return nil
}

// summaryText renders the human-readable companion to manifest.json.
func summaryText(man Manifest, results []Result) []byte {
	var b strings.Builder
	b.WriteString("Pattern Export Summary\n")
	b.WriteString("======================\n")
	fmt.Fprintf(&b, "Date:     %s\n", man.ExportDate)
	fmt.Fprintf(&b, "Patterns: %d\n", man.TotalPatterns)
	fmt.Fprintf(&b, "Formats:  %s\n", strings.Join(man.Formats, ", "))
	b.WriteString("\nFiles:\n")
	for _, entry := range man.Patterns {
		for _, f := range entry.Files {
			fmt.Fprintf(&b, "  %s/%s (%d bytes)\n", entry.Name, f.Filename, f.Size)
		}
	}

	var failed []Result
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\nFailed:\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "  %s (%s): %s\n", r.PatternID, r.Format, r.ErrMessage)
		}
	}
	return []byte(b.String())
}
