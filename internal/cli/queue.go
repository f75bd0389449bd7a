package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/patternloom/loom/internal/config"
	"github.com/patternloom/loom/internal/store"
)

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	PurgeOlderThan time.Duration
	Requeue        string
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show pending changes in the offline queue",
		Long: `List the unsynced change entries waiting for the next drain,
oldest first, along with entries parked after terminal failures (version
conflicts, permission errors, retry cap). With --purge-older-than, synced
entries older than the given age are removed first. With --requeue, a
parked entry is made eligible for draining again.

Example:
  loom queue
  loom queue --purge-older-than 168h
  loom queue --requeue 4f7c...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.PurgeOlderThan, "purge-older-than", 0, "purge synced entries older than this age")
	cmd.Flags().StringVar(&opts.Requeue, "requeue", "", "clear the abandoned marker on the given entry id")

	return cmd
}

// queueEntry is one pending change in the summary.
type queueEntry struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	PatternID string `json:"patternId"`
	Retries   int    `json:"retries"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// queueSummary is the machine-readable queue state.
type queueSummary struct {
	Pending   int          `json:"pending"`
	Purged    int64        `json:"purged,omitempty"`
	Entries   []queueEntry `json:"entries,omitempty"`
	Abandoned []queueEntry `json:"abandoned,omitempty"`
}

func (s queueSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending change(s)", s.Pending)
	if s.Purged > 0 {
		fmt.Fprintf(&b, ", purged %d synced entr(ies)", s.Purged)
	}
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "\n  %-6s %s (retries %d, queued %s)", e.Op, e.PatternID, e.Retries, e.CreatedAt)
	}
	if len(s.Abandoned) > 0 {
		fmt.Fprintf(&b, "\n%d abandoned change(s) need requeue with fresh data:", len(s.Abandoned))
		for _, e := range s.Abandoned {
			fmt.Fprintf(&b, "\n  %-6s %s [%s] %s", e.Op, e.PatternID, e.ID, e.Reason)
		}
	}
	return b.String()
}

func runQueue(opts *QueueOptions, cmd *cobra.Command) error {
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary := queueSummary{}
	if opts.PurgeOlderThan > 0 {
		purged, err := queue.PurgeSynced(ctx, time.Now().Add(-opts.PurgeOlderThan))
		if err != nil {
			return WrapExitError(ExitCommandError, "purging synced entries", err)
		}
		summary.Purged = purged
	}
	if opts.Requeue != "" {
		if err := queue.Requeue(ctx, opts.Requeue); err != nil {
			out.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "requeueing entry", err)
		}
	}

	entries, err := queue.Unsynced(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading queue", err)
	}
	summary.Pending = len(entries)
	for _, e := range entries {
		summary.Entries = append(summary.Entries, toQueueEntry(e))
	}

	abandoned, err := queue.Abandoned(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading abandoned entries", err)
	}
	for _, e := range abandoned {
		summary.Abandoned = append(summary.Abandoned, toQueueEntry(e))
	}

	return out.Success(summary)
}

func toQueueEntry(e store.ChangeEntry) queueEntry {
	return queueEntry{
		ID:        e.ID,
		Op:        string(e.Op),
		PatternID: e.PatternID,
		Retries:   e.RetryCount,
		Reason:    e.AbandonReason,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
