package scan

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"hubspot-deals-connector/internal/hubspot"
	"hubspot-deals-connector/internal/model"
	"hubspot-deals-connector/internal/store"
)

// pageFetcher is the slice of the HubSpot client the run loop needs.
type pageFetcher interface {
	FetchPage(ctx context.Context, cursor string, filters model.ScanFilters, properties []string) (*hubspot.Page, error)
}

// Runner drives one extraction end to end: fetch a page, normalize it,
// persist the rows, advance the checkpoint, repeat until the cursor runs
// out. Exactly one goroutine executes Run; Snapshot and Cancel may be
// called from any other goroutine.
type Runner struct {
	jobID    string
	scanID   string
	tenantID string
	req      model.ScanRequest

	fetcher pageFetcher
	store   *store.Store
	log     *zap.Logger

	checkpointEvery int64
	maxPages        int64

	cancelled atomic.Bool

	mu         sync.RWMutex
	status     model.ScanStatus
	cursor     string
	batchIndex int64
	total      int64
	processed  int64
	failed     int64

	onDone func(scanID string)
}

// RunnerConfig carries everything a runner needs beyond its collaborators.
type RunnerConfig struct {
	JobID           string
	Request         model.ScanRequest
	CheckpointEvery int64
	MaxPages        int64
	OnDone          func(scanID string)
}

func NewRunner(cfg RunnerConfig, fetcher pageFetcher, st *store.Store, log *zap.Logger) *Runner {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 5
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	return &Runner{
		jobID:           cfg.JobID,
		scanID:          cfg.Request.ScanID,
		tenantID:        cfg.Request.TenantID,
		req:             cfg.Request,
		fetcher:         fetcher,
		store:           st,
		log:             log.With(zap.String("scan_id", cfg.Request.ScanID)),
		checkpointEvery: cfg.CheckpointEvery,
		maxPages:        cfg.MaxPages,
		status:          model.StatusPending,
		onDone:          cfg.OnDone,
	}
}

// Cancel requests a cooperative stop. The run loop honors it at the next
// page boundary; an in-flight page is finished and persisted first, so
// cancellation never loses rows that were already fetched.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

// Snapshot returns the runner's live status and counters.
func (r *Runner) Snapshot() (model.ScanStatus, model.Progress) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := r.processed + r.failed
	rate := 100.0
	if seen > 0 {
		rate = float64(r.processed) / float64(seen) * 100.0
	}
	return r.status, model.Progress{
		TotalItems:     r.total,
		ProcessedItems: r.processed,
		FailedItems:    r.failed,
		SuccessRate:    rate,
	}
}

// Run executes the extraction until completion, failure or cancellation.
// It owns the job's status from running onward and always leaves the job
// in a terminal status before returning.
func (r *Runner) Run(ctx context.Context) {
	defer func() {
		if r.onDone != nil {
			r.onDone(r.scanID)
		}
	}()

	if err := r.resume(); err != nil {
		r.finish(model.StatusFailed, "loading checkpoint: "+err.Error())
		return
	}
	if !r.transition(model.StatusRunning, "") {
		return
	}
	r.log.Info("scan started",
		zap.String("cursor", r.cursor),
		zap.Int64("pages_done", r.batchIndex))

	for {
		if r.cancelled.Load() {
			r.finish(model.StatusCancelled, "")
			return
		}
		if r.batchIndex >= r.maxPages {
			r.log.Warn("page safety limit reached, stopping scan",
				zap.Int64("max_pages", r.maxPages))
			r.finish(model.StatusCompleted, "")
			return
		}

		page, err := r.fetcher.FetchPage(ctx, r.cursor, r.req.Filters, r.req.Properties)
		if err != nil {
			if r.cancelled.Load() {
				r.finish(model.StatusCancelled, "")
				return
			}
			r.finish(model.StatusFailed, err.Error())
			return
		}

		if err := r.processPage(page); err != nil {
			r.finish(model.StatusFailed, err.Error())
			return
		}

		r.mu.Lock()
		r.batchIndex++
		r.cursor = page.NextCursor
		done := page.NextCursor == ""
		checkpointDue := r.batchIndex%r.checkpointEvery == 0
		r.mu.Unlock()

		if checkpointDue && !done {
			if err := r.checkpoint(); err != nil {
				r.finish(model.StatusFailed, "saving checkpoint: "+err.Error())
				return
			}
		}
		if done {
			r.finish(model.StatusCompleted, "")
			return
		}
	}
}

// processPage normalizes and persists one fetched page. Records failing the
// job's filters count toward the total but are neither persisted nor
// failed; malformed records are persisted with their raw property bag and
// counted as failed.
func (r *Runner) processPage(page *hubspot.Page) error {
	pageNumber := r.batchIndex + 1
	var batch []model.DealRecord
	var processed, failed, seen int64

	for _, deal := range page.Results {
		rec, malformed := TransformDeal(deal, r.jobID, r.scanID, r.tenantID, pageNumber)
		seen++
		if !MatchesFilters(rec, r.req.Filters) {
			continue
		}
		batch = append(batch, rec)
		if malformed {
			failed++
		} else {
			processed++
		}
	}

	if err := r.store.AppendDeals(batch); err != nil {
		return err
	}

	r.mu.Lock()
	r.total += seen
	r.processed += processed
	r.failed += failed
	r.mu.Unlock()
	return nil
}

// resume loads the durable checkpoint, if any, so a restarted scan picks
// up at the last persisted page boundary instead of page one.
func (r *Runner) resume() error {
	cp, err := r.store.GetCheckpoint(r.scanID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil
		}
		return err
	}
	r.mu.Lock()
	r.cursor = cp.Cursor
	r.batchIndex = cp.LastBatchIndex
	r.total = cp.TotalSoFar
	r.processed = cp.ProcessedSoFar
	r.failed = cp.FailedSoFar
	r.mu.Unlock()
	r.log.Info("resuming from checkpoint",
		zap.Int64("pages_done", cp.LastBatchIndex),
		zap.Int64("processed", cp.ProcessedSoFar))
	return nil
}

// checkpoint persists the resume point and the job's progress counters.
func (r *Runner) checkpoint() error {
	r.mu.RLock()
	cp := model.Checkpoint{
		ScanID:         r.scanID,
		Cursor:         r.cursor,
		LastBatchIndex: r.batchIndex,
		TotalSoFar:     r.total,
		ProcessedSoFar: r.processed,
		FailedSoFar:    r.failed,
	}
	total, processed, failed := r.total, r.processed, r.failed
	r.mu.RUnlock()

	if err := r.store.SaveCheckpoint(&cp); err != nil {
		return err
	}
	return r.store.UpdateProgress(r.scanID, total, processed, failed)
}

// transition moves the runner's in-memory status forward and mirrors it to
// the store. Illegal transitions are dropped.
func (r *Runner) transition(to model.ScanStatus, errMsg string) bool {
	r.mu.Lock()
	if !model.CanTransition(r.status, to) {
		r.mu.Unlock()
		return false
	}
	r.status = to
	r.mu.Unlock()

	if err := r.store.UpdateStatus(r.scanID, to, errMsg); err != nil {
		r.log.Error("persisting status change failed",
			zap.String("status", string(to)), zap.Error(err))
	}
	return true
}

// finish writes the final checkpoint and progress, then moves the job to
// its terminal status.
func (r *Runner) finish(to model.ScanStatus, errMsg string) {
	if err := r.checkpoint(); err != nil {
		r.log.Error("final checkpoint failed", zap.Error(err))
		if to == model.StatusCompleted {
			to, errMsg = model.StatusFailed, "saving final checkpoint: "+err.Error()
		}
	}
	if !r.transition(to, errMsg) {
		return
	}

	_, progress := r.Snapshot()
	switch to {
	case model.StatusCompleted:
		r.log.Info("scan completed",
			zap.Int64("total", progress.TotalItems),
			zap.Int64("processed", progress.ProcessedItems),
			zap.Int64("failed", progress.FailedItems),
			zap.Float64("success_rate", progress.SuccessRate))
	case model.StatusCancelled:
		r.log.Info("scan cancelled",
			zap.Int64("processed", progress.ProcessedItems))
	default:
		r.log.Error("scan failed",
			zap.String("error", errMsg),
			zap.Int64("processed", progress.ProcessedItems))
	}
}
