package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patternloom/loom/internal/config"
	"github.com/patternloom/loom/internal/remote"
	"github.com/patternloom/loom/internal/store"
	"github.com/patternloom/loom/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	// Store overrides the remote store, for testing.
	Store remote.Store
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain pending changes against the remote store",
		Long: `Run one drain of the offline change queue against the configured
remote pattern store. Entries that fail transiently stay queued for the
next run; version conflicts and other terminal failures are parked and
never re-sent. Inspect parked entries with 'loom queue' and requeue them
with fresh data.

Configuration comes from the environment (see LOOM_* variables).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	return cmd
}

// syncSummary is the machine-readable result of one drain.
type syncSummary struct {
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Pending   int      `json:"pending"`
	Abandoned int      `json:"abandoned"`
	Deferred  bool     `json:"deferred"`
	Errors    []string `json:"errors,omitempty"`
}

func (s syncSummary) String() string {
	var b strings.Builder
	if s.Deferred {
		b.WriteString("Sync deferred: network unavailable")
	} else {
		fmt.Fprintf(&b, "Synced %d, failed %d, skipped %d; %d pending", s.Synced, s.Failed, s.Skipped, s.Pending)
	}
	if s.Abandoned > 0 {
		fmt.Fprintf(&b, "\n%d abandoned entr(ies) need attention; see 'loom queue'", s.Abandoned)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "\nfailed: %s", e)
	}
	return b.String()
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load()
	if err != nil {
		out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	queue, err := store.Open(cfg.Queue.Path)
	if err != nil {
		out.Error(ErrCodeSync, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening change queue", err)
	}
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			slog.Error("closing change queue", "error", closeErr)
		}
	}()

	rs := opts.Store
	if rs == nil {
		var token remote.TokenFunc
		if cfg.Remote.Token != "" {
			bearer := cfg.Remote.Token
			token = func(context.Context) (string, error) { return bearer, nil }
		}
		rs = remote.NewHTTPStore(cfg.Remote.BaseURL, token)
	}

	engine := syncer.New(queue, rs,
		syncer.StaticProvider{IsOnline: true, Tier: syncer.QualityUnknown},
		syncer.Config{
			ChunkSize:   cfg.Sync.ChunkSize,
			ChunkPause:  cfg.Sync.ChunkPause,
			MaxRetries:  cfg.Sync.MaxRetries,
			BackoffBase: cfg.Sync.BackoffBase,
			BackoffMax:  cfg.Sync.BackoffMax,
		})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Info("draining change queue", "remote", cfg.Remote.BaseURL, "db", cfg.Queue.Path)
	result, err := engine.Drain(ctx)
	if err != nil {
		out.Error(ErrCodeSync, err.Error(), nil)
		return WrapExitError(ExitFailure, "drain", err)
	}

	pending, err := queue.UnsyncedCount(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "counting pending entries", err)
	}
	abandoned, err := queue.AbandonedCount(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "counting abandoned entries", err)
	}

	summary := syncSummary{
		Synced:    result.Synced,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Pending:   pending,
		Abandoned: abandoned,
		Deferred:  result.Deferred,
	}
	for _, e := range result.Errors {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s (%s): %s", e.PatternID, e.Op, e.Message))
	}

	if err := out.Success(summary); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d entr(ies) failed to sync", result.Failed))
	}
	return nil
}
