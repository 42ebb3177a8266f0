package backup

import (
	"context"
	"errors"
	"fmt"

	"mailvault/pkg/checkpoint"
	"mailvault/pkg/logger"
	"mailvault/pkg/ratelimit"
)

// ErrQuotaExhausted is returned by Run when the daily quota budget cannot
// cover the next operation. The checkpoint is left INTERRUPTED so the job
// can resume after the budget resets.
var ErrQuotaExhausted = errors.New("daily quota exhausted")

// RunOptions controls how a backup run starts.
type RunOptions struct {
	// Resume picks up the latest resumable checkpoint for the query
	// instead of starting over.
	Resume bool
	// ForceRestart ignores any resumable checkpoint and starts fresh.
	ForceRestart bool
}

// Summary reports what one backup run accomplished.
type Summary struct {
	SyncID     string
	Query      string
	Total      int
	Processed  int
	Saved      int
	Duplicates int
	Resumed    bool
	Completed  bool
}

// Coordinator drives one mailbox backup: enumerate matching message ids
// page by page, fetch each message, and hand it to the writer. All remote
// calls go through the rate limiter and count against the quota tracker.
// Progress is checkpointed so an interrupted run can resume.
type Coordinator struct {
	fetcher     Fetcher
	writer      MessageWriter
	limiter     *ratelimit.Limiter
	quota       *ratelimit.QuotaTracker
	checkpoints *checkpoint.Store
	outputDir   string

	// checkpointInterval is how many processed items pass between
	// persisted progress updates. Recovery semantics are at-least-once:
	// up to interval-1 items may be reprocessed after a crash.
	checkpointInterval int

	logger logger.Logger
}

// Config carries the Coordinator's collaborators and tuning knobs.
type Config struct {
	Fetcher            Fetcher
	Writer             MessageWriter
	Limiter            *ratelimit.Limiter
	Quota              *ratelimit.QuotaTracker
	Checkpoints        *checkpoint.Store
	OutputDir          string
	CheckpointInterval int
	Logger             logger.Logger
}

// NewCoordinator creates a backup coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Fetcher == nil || cfg.Writer == nil {
		return nil, fmt.Errorf("fetcher and writer are required")
	}
	if cfg.Limiter == nil || cfg.Quota == nil || cfg.Checkpoints == nil {
		return nil, fmt.Errorf("limiter, quota tracker and checkpoint store are required")
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 10
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Coordinator{
		fetcher:            cfg.Fetcher,
		writer:             cfg.Writer,
		limiter:            cfg.Limiter,
		quota:              cfg.Quota,
		checkpoints:        cfg.Checkpoints,
		outputDir:          cfg.OutputDir,
		checkpointInterval: cfg.CheckpointInterval,
		logger:             log,
	}, nil
}

// Run executes one backup for the query. It returns a summary even on
// error, describing how far the run got.
func (c *Coordinator) Run(ctx context.Context, query string, opts RunOptions) (*Summary, error) {
	cp, resumed, err := c.resolveCheckpoint(query, opts)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		SyncID:  cp.SyncID,
		Query:   query,
		Resumed: resumed,
	}

	skip := 0
	if resumed {
		skip = cp.ResumeInfo().SkipCount
		c.logger.InfoWithFields("resuming backup", map[string]interface{}{
			"sync_id":    cp.SyncID,
			"query":      query,
			"skip_count": skip,
		})
	} else {
		c.logger.InfoWithFields("starting backup", map[string]interface{}{
			"sync_id": cp.SyncID,
			"query":   query,
		})
	}

	// Any exit before MarkCompleted leaves the checkpoint resumable.
	completed := false
	defer func() {
		if completed {
			return
		}
		if markErr := c.checkpoints.MarkInterrupted(cp); markErr != nil {
			c.logger.ErrorWithFields("failed to mark checkpoint interrupted", map[string]interface{}{
				"sync_id": cp.SyncID,
				"error":   markErr.Error(),
			})
		}
	}()

	processed := cp.ProcessedCount
	index := 0
	pageToken := ""
	lastID := cp.LastProcessedID

	for {
		if !c.quota.CheckAvailable("list", 1) {
			summary.Processed = processed
			return summary, c.stopOnQuota(cp, processed, lastID)
		}

		page, err := ratelimit.CallWithResult(ctx, c.limiter, func() (*MessagePage, error) {
			return c.fetcher.ListMessageIDs(ctx, query, pageToken)
		}, c.quota.Cost("list"))
		if err != nil {
			summary.Processed = processed
			return summary, fmt.Errorf("listing messages: %w", err)
		}
		c.quota.Consume("list", 1)

		if cp.TotalMessages == 0 && page.ResultSizeEstimate > 0 {
			cp.TotalMessages = page.ResultSizeEstimate
		}
		summary.Total = cp.TotalMessages

		for _, id := range page.IDs {
			// Positions below the checkpoint were handled by the
			// previous run. Enumeration order must be stable for
			// this to be safe; the writer's duplicate check below
			// covers drift within a page.
			if index < skip {
				index++
				continue
			}
			index++

			if err := ctx.Err(); err != nil {
				summary.Processed = processed
				return summary, err
			}

			if c.writer.IsSaved(id) {
				summary.Duplicates++
			} else {
				if !c.quota.CheckAvailable("get", 1) {
					summary.Processed = processed
					return summary, c.stopOnQuota(cp, processed, lastID)
				}

				msg, err := ratelimit.CallWithResult(ctx, c.limiter, func() (*Message, error) {
					return c.fetcher.FetchMessage(ctx, id)
				}, c.quota.Cost("get"))
				if err != nil {
					summary.Processed = processed
					return summary, fmt.Errorf("fetching message %s: %w", id, err)
				}
				c.quota.Consume("get", 1)

				if err := c.writer.SaveMessage(msg); err != nil {
					summary.Processed = processed
					return summary, fmt.Errorf("saving message %s: %w", id, err)
				}
				summary.Saved++
			}

			processed++
			lastID = id

			if processed%c.checkpointInterval == 0 {
				if err := c.checkpoints.UpdateProgress(cp, processed, lastID); err != nil {
					summary.Processed = processed
					return summary, fmt.Errorf("updating checkpoint: %w", err)
				}
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if err := c.checkpoints.UpdateProgress(cp, processed, lastID); err != nil {
		summary.Processed = processed
		return summary, fmt.Errorf("updating checkpoint: %w", err)
	}
	if err := c.checkpoints.MarkCompleted(cp); err != nil {
		summary.Processed = processed
		return summary, fmt.Errorf("completing checkpoint: %w", err)
	}
	completed = true

	summary.Processed = processed
	summary.Completed = true

	c.logger.InfoWithFields("backup completed", map[string]interface{}{
		"sync_id":    cp.SyncID,
		"processed":  summary.Processed,
		"saved":      summary.Saved,
		"duplicates": summary.Duplicates,
	})

	return summary, nil
}

// resolveCheckpoint picks the checkpoint a run operates on.
func (c *Coordinator) resolveCheckpoint(query string, opts RunOptions) (*checkpoint.Checkpoint, bool, error) {
	if opts.Resume && !opts.ForceRestart {
		cp, err := c.checkpoints.Latest(query, true)
		if err != nil {
			return nil, false, fmt.Errorf("looking up checkpoint: %w", err)
		}
		if cp != nil {
			if err := c.checkpoints.Resume(cp); err != nil {
				return nil, false, err
			}
			return cp, true, nil
		}
	}

	cp, err := c.checkpoints.Create(query, c.outputDir, nil)
	if err != nil {
		return nil, false, err
	}
	return cp, false, nil
}

// stopOnQuota persists progress and reports quota exhaustion. The
// deferred interrupt handler finishes the state transition.
func (c *Coordinator) stopOnQuota(cp *checkpoint.Checkpoint, processed int, lastID string) error {
	c.logger.WarnWithFields("stopping backup, daily quota exhausted", map[string]interface{}{
		"sync_id":   cp.SyncID,
		"processed": processed,
	})
	cp.ProcessedCount = processed
	cp.LastProcessedID = lastID
	return ErrQuotaExhausted
}
