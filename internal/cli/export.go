package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patternloom/loom/internal/export"
	"github.com/patternloom/loom/internal/render"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Formats   []string
	Out       string
	Zip       bool
	Manifest  bool
	Width     int
	Height    int
	Quality   int
	GridLines bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <patterns.yaml>",
		Short: "Render a pattern document into image files or an archive",
		Long: `Render every pattern in a YAML document into the requested formats.

Patterns are rendered under bounded concurrency; a failing pattern never
aborts its siblings. With --zip the output is a single archive with one
folder per pattern, optionally including manifest.json and a summary.

Example:
  loom export patterns.yaml --formats png,svg --zip --manifest --out export.zip
  loom export patterns.yaml --formats text --out ./rendered`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Formats, "formats", []string{"png"}, "output formats (png,svg,text)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output directory, or archive path with --zip")
	cmd.Flags().BoolVar(&opts.Zip, "zip", false, "bundle results into a single zip archive")
	cmd.Flags().BoolVar(&opts.Manifest, "manifest", false, "include manifest.json and EXPORT_SUMMARY.txt in the archive")
	cmd.Flags().IntVar(&opts.Width, "width", render.DefaultDimension, "output width in pixels")
	cmd.Flags().IntVar(&opts.Height, "height", render.DefaultDimension, "output height in pixels")
	cmd.Flags().IntVar(&opts.Quality, "quality", render.DefaultQuality, "quality percentage (0-100)")
	cmd.Flags().BoolVar(&opts.GridLines, "grid-lines", false, "draw the cell grid")

	return cmd
}

// exportSummary is the machine-readable result of one export run.
type exportSummary struct {
	Patterns  int      `json:"patterns"`
	Tasks     int      `json:"tasks"`
	Succeeded int      `json:"succeeded"`
	Archive   string   `json:"archive,omitempty"`
	Files     []string `json:"files,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func (s exportSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exported %d/%d tasks across %d patterns", s.Succeeded, s.Tasks, s.Patterns)
	if s.Archive != "" {
		fmt.Fprintf(&b, " -> %s", s.Archive)
	}
	for _, f := range s.Files {
		fmt.Fprintf(&b, "\n  %s", f)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "\nfailed: %s", e)
	}
	return b.String()
}

func runExport(opts *ExportOptions, docPath string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	patterns, err := LoadPatterns(docPath)
	if err != nil {
		out.Error(ErrCodeBadDoc, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading patterns", err)
	}
	slog.Info("patterns loaded", "path", docPath, "count", len(patterns))

	formats := make([]render.Format, 0, len(opts.Formats))
	for _, name := range opts.Formats {
		f, err := render.ParseFormat(strings.TrimSpace(name))
		if err != nil {
			out.Error(ErrCodeExport, err.Error(), nil)
			return WrapExitError(ExitCommandError, "parsing formats", err)
		}
		formats = append(formats, f)
	}

	coordinator := export.NewCoordinator(render.NewRenderer())
	batchOpts := export.BatchOptions{
		Formats:         formats,
		CreateZip:       opts.Zip,
		IncludeManifest: opts.Manifest,
		Render: render.Options{
			Width:     opts.Width,
			Height:    opts.Height,
			Quality:   opts.Quality,
			GridLines: opts.GridLines,
		},
	}

	progress := func(p export.Progress) {
		slog.Debug("export progress",
			"completed", p.Completed, "total", p.Total,
			"current", p.Current, "status", string(p.Status))
	}

	result, err := coordinator.ProcessBatch(cmd.Context(), patterns, batchOpts, progress)
	if err != nil {
		out.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitFailure, "export batch", err)
	}

	summary := exportSummary{
		Patterns:  len(patterns),
		Tasks:     len(result.Results),
		Succeeded: result.Succeeded(),
		Errors:    result.Errors,
	}

	if opts.Zip {
		archivePath := opts.Out
		if archivePath == "" {
			archivePath = "loom-export.zip"
		}
		if err := os.WriteFile(archivePath, result.Archive, 0o644); err != nil {
			out.Error(ErrCodeWriteFail, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing archive", err)
		}
		summary.Archive = archivePath
	} else {
		files, err := writeLooseFiles(opts.Out, result.Results)
		if err != nil {
			out.Error(ErrCodeWriteFail, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing artifacts", err)
		}
		summary.Files = files
	}

	if err := out.Success(summary); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed", len(result.Errors)))
	}
	return nil
}

// writeLooseFiles writes successful artifacts into dir. Filename collisions
// between patterns sharing a title fall back to id-qualified names.
func writeLooseFiles(dir string, results []export.Result) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	seen := make(map[string]bool, len(results))
	var files []string
	for _, r := range results {
		if !r.OK {
			continue
		}
		name := r.Filename
		if seen[name] {
			name = fmt.Sprintf("%s-%s", export.SanitizeName(r.PatternID), r.Filename)
		}
		seen[name] = true

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, r.Artifact.Data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}
