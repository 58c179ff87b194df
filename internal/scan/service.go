package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hubspot-deals-connector/internal/hubspot"
	"hubspot-deals-connector/internal/model"
	"hubspot-deals-connector/internal/store"
)

// Options tune the service's pool and the clients it builds.
type Options struct {
	BaseURL            string
	MaxConcurrentScans int
	CheckpointEvery    int64
	MaxPages           int64
	ClientOptions      hubspot.Options
}

// Service is the control plane for extractions: it admits new scans,
// tracks the live ones, routes cancellations and serves status, results
// and stats. All HubSpot clients for the same access token share one
// pacer, so concurrent scans on one credential cannot outrun the
// account-wide rate limit between them.
type Service struct {
	store *store.Store
	log   *zap.Logger
	reg   *Registry
	opts  Options

	// startMu serializes admission so the capacity check and registry
	// insert are atomic
	startMu sync.Mutex

	pacerMu sync.Mutex
	pacers  map[string]*hubspot.Pacer
}

func NewService(st *store.Store, log *zap.Logger, opts Options) *Service {
	if opts.MaxConcurrentScans <= 0 {
		opts.MaxConcurrentScans = 5
	}
	if opts.ClientOptions.BaseURL == "" {
		opts.ClientOptions.BaseURL = opts.BaseURL
	}
	return &Service{
		store:  st,
		log:    log,
		reg:    NewRegistry(),
		opts:   opts,
		pacers: make(map[string]*hubspot.Pacer),
	}
}

// Start admits a new extraction and launches its run loop in the
// background. A scan id with a live runner, or a full pool, is a conflict.
// A durable job under the same id is resumed from its checkpoint when
// non-terminal and restarted from scratch when terminal. Credentials are
// not probed here: a bad token surfaces asynchronously as a failed job.
func (s *Service) Start(req model.ScanRequest) (*model.ScanJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.reg.Get(req.ScanID) != nil {
		return nil, fmt.Errorf("%w: scan %q is already running", model.ErrConflict, req.ScanID)
	}
	if s.reg.Len() >= s.opts.MaxConcurrentScans {
		return nil, fmt.Errorf("%w: scan pool is full (%d running)", model.ErrConflict, s.reg.Len())
	}

	job, err := s.store.GetJob(req.ScanID)
	switch {
	case model.IsNotFound(err):
		job = &model.ScanJob{
			ID:       uuid.New().String(),
			ScanID:   req.ScanID,
			TenantID: req.TenantID,
		}
		if err := s.store.CreateJob(job, req); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case job.Status.Terminal():
		// rerun of a finished scan: rewind the job and start fresh
		if err := s.store.ResetJob(req.ScanID, req); err != nil {
			return nil, err
		}
		job, err = s.store.GetJob(req.ScanID)
		if err != nil {
			return nil, err
		}
	default:
		// pending or running with no live runner means the previous
		// process died; the checkpoint makes this a resume, not a redo
		s.log.Info("resuming orphaned scan",
			zap.String("scan_id", req.ScanID),
			zap.String("status", string(job.Status)))
	}

	runner := NewRunner(RunnerConfig{
		JobID:           job.ID,
		Request:         req,
		CheckpointEvery: s.opts.CheckpointEvery,
		MaxPages:        s.opts.MaxPages,
		OnDone:          s.reg.Remove,
	}, s.clientFor(req.AccessToken), s.store, s.log)

	if !s.reg.Add(req.ScanID, runner) {
		return nil, fmt.Errorf("%w: scan %q is already running", model.ErrConflict, req.ScanID)
	}
	go runner.Run(context.Background())

	return job, nil
}

// Status returns the job with live counters overlaid when its runner is
// still in this process. Durable state alone may trail the run loop by up
// to one checkpoint interval.
func (s *Service) Status(scanID string) (*model.ScanJob, error) {
	job, err := s.store.GetJob(scanID)
	if err != nil {
		return nil, err
	}
	if runner := s.reg.Get(scanID); runner != nil {
		status, progress := runner.Snapshot()
		job.Status = status
		job.TotalItems = progress.TotalItems
		job.ProcessedItems = progress.ProcessedItems
		job.FailedItems = progress.FailedItems
	}
	return job, nil
}

// List returns every known job, most recent first.
func (s *Service) List() ([]model.ScanJob, error) {
	return s.store.ListJobs()
}

// Cancel requests a stop. A live runner stops at its next page boundary.
// A durably non-terminal job with no runner (a crash leftover) is marked
// cancelled directly. Cancelling a terminal job is a conflict.
func (s *Service) Cancel(scanID string) error {
	if runner := s.reg.Get(scanID); runner != nil {
		// the runner may have finished but not yet left the registry
		if status, _ := runner.Snapshot(); status.Terminal() {
			return fmt.Errorf("%w: scan %q already %s", model.ErrConflict, scanID, status)
		}
		runner.Cancel()
		return nil
	}
	job, err := s.store.GetJob(scanID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: scan %q already %s", model.ErrConflict, scanID, job.Status)
	}
	return s.store.UpdateStatus(scanID, model.StatusCancelled, "")
}

// Remove deletes a job and, by cascade, its checkpoint and extracted rows.
// A running scan must be cancelled first.
func (s *Service) Remove(scanID string) error {
	if s.reg.Get(scanID) != nil {
		return fmt.Errorf("%w: scan %q is running, cancel it first", model.ErrConflict, scanID)
	}
	return s.store.DeleteJob(scanID)
}

// Results returns one page of a scan's extracted rows plus the total count.
func (s *Service) Results(scanID string, page, pageSize int) ([]model.DealRecord, int64, error) {
	if _, err := s.store.GetJob(scanID); err != nil {
		return nil, 0, err
	}
	return s.store.DealsPage(scanID, page, pageSize)
}

// Export returns a scan's job record and every extracted row, for file
// download.
func (s *Service) Export(scanID string) (*model.ScanJob, []model.DealRecord, error) {
	job, err := s.store.GetJob(scanID)
	if err != nil {
		return nil, nil, err
	}
	recs, err := s.store.AllDeals(scanID)
	if err != nil {
		return nil, nil, err
	}
	return job, recs, nil
}

// Stats summarizes the service: jobs per status and live runners.
type Stats struct {
	ActiveScans int                        `json:"active_scans"`
	TotalJobs   int64                      `json:"total_jobs"`
	ByStatus    map[model.ScanStatus]int64 `json:"by_status"`
}

func (s *Service) Stats() (*Stats, error) {
	counts, err := s.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &Stats{
		ActiveScans: s.reg.Len(),
		TotalJobs:   total,
		ByStatus:    counts,
	}, nil
}

// TestConnection probes the deals endpoint with the given token and
// reports the credential error, if any.
func (s *Service) TestConnection(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: access_token is required", model.ErrValidation)
	}
	return s.clientFor(token).ValidateCredentials(ctx)
}

// clientFor builds a HubSpot client whose pacer is shared with every other
// client holding the same token.
func (s *Service) clientFor(token string) *hubspot.Client {
	return hubspot.NewClient(token, s.pacerFor(token), s.log, s.opts.ClientOptions)
}

func (s *Service) pacerFor(token string) *hubspot.Pacer {
	digest := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(digest[:])

	s.pacerMu.Lock()
	defer s.pacerMu.Unlock()
	if p, ok := s.pacers[key]; ok {
		return p
	}
	interval := s.opts.ClientOptions.MinInterval
	if interval <= 0 {
		interval = hubspot.MinInterval()
	}
	p := hubspot.NewPacer(interval)
	s.pacers[key] = p
	return p
}
