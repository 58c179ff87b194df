package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hubspot-deals-connector/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newJob(t *testing.T, st *Store, scanID string) *model.ScanJob {
	t.Helper()
	job := &model.ScanJob{ID: uuid.New().String(), ScanID: scanID, TenantID: "t1"}
	req := model.ScanRequest{ScanID: scanID, AccessToken: "pat"}
	require.NoError(t, st.CreateJob(job, req))
	return job
}

func dealRow(jobID, scanID string, page int64) model.DealRecord {
	return model.DealRecord{
		ID:            uuid.New().String(),
		JobID:         jobID,
		DealID:        uuid.New().String(),
		DealName:      "deal",
		RawProperties: map[string]any{"dealname": "deal"},
		ExtractedAt:   time.Now().UTC(),
		ScanID:        scanID,
		PageNumber:    page,
	}
}

func TestJobLifecycle(t *testing.T) {
	st := testStore(t)
	job := newJob(t, st, "scan-a")

	got, err := st.GetJob("scan-a")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)

	require.NoError(t, st.UpdateStatus("scan-a", model.StatusRunning, ""))
	got, err = st.GetJob("scan-a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, st.UpdateProgress("scan-a", 100, 95, 5))
	require.NoError(t, st.UpdateStatus("scan-a", model.StatusFailed, "token expired"))
	got, err = st.GetJob("scan-a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "token expired", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, int64(95), got.ProcessedItems)
}

func TestGetJobNotFound(t *testing.T) {
	st := testStore(t)
	_, err := st.GetJob("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteJobCascades(t *testing.T) {
	st := testStore(t)
	job := newJob(t, st, "scan-del")

	require.NoError(t, st.AppendDeals([]model.DealRecord{
		dealRow(job.ID, "scan-del", 1),
		dealRow(job.ID, "scan-del", 1),
	}))
	require.NoError(t, st.SaveCheckpoint(&model.Checkpoint{ScanID: "scan-del", Cursor: "c", LastBatchIndex: 1}))

	require.NoError(t, st.DeleteJob("scan-del"))

	_, err := st.GetJob("scan-del")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = st.GetCheckpoint("scan-del")
	assert.ErrorIs(t, err, model.ErrNotFound)
	n, err := st.CountDeals("scan-del")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, st.DeleteJob("scan-del"), model.ErrNotFound)
}

func TestCheckpointIsMonotonic(t *testing.T) {
	st := testStore(t)
	newJob(t, st, "scan-cp")

	require.NoError(t, st.SaveCheckpoint(&model.Checkpoint{
		ScanID: "scan-cp", Cursor: "p10", LastBatchIndex: 10, ProcessedSoFar: 1000,
	}))

	// an older write must be dropped, not applied
	require.NoError(t, st.SaveCheckpoint(&model.Checkpoint{
		ScanID: "scan-cp", Cursor: "p5", LastBatchIndex: 5, ProcessedSoFar: 500,
	}))

	cp, err := st.GetCheckpoint("scan-cp")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cp.LastBatchIndex)
	assert.Equal(t, "p10", cp.Cursor)
	assert.Equal(t, int64(1000), cp.ProcessedSoFar)

	require.NoError(t, st.SaveCheckpoint(&model.Checkpoint{
		ScanID: "scan-cp", Cursor: "p15", LastBatchIndex: 15, ProcessedSoFar: 1500,
	}))
	cp, err = st.GetCheckpoint("scan-cp")
	require.NoError(t, err)
	assert.Equal(t, int64(15), cp.LastBatchIndex)
}

func TestResetJobClearsStateAndCheckpoint(t *testing.T) {
	st := testStore(t)
	newJob(t, st, "scan-reset")
	require.NoError(t, st.UpdateStatus("scan-reset", model.StatusRunning, ""))
	require.NoError(t, st.UpdateProgress("scan-reset", 50, 48, 2))
	require.NoError(t, st.UpdateStatus("scan-reset", model.StatusCompleted, ""))
	require.NoError(t, st.SaveCheckpoint(&model.Checkpoint{ScanID: "scan-reset", LastBatchIndex: 5}))

	require.NoError(t, st.ResetJob("scan-reset", model.ScanRequest{ScanID: "scan-reset", AccessToken: "pat"}))

	job, err := st.GetJob("scan-reset")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)
	assert.Zero(t, job.ProcessedItems)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMessage)

	_, err = st.GetCheckpoint("scan-reset")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDealsPagePagination(t *testing.T) {
	st := testStore(t)
	job := newJob(t, st, "scan-page")

	var batch []model.DealRecord
	for i := 0; i < 25; i++ {
		batch = append(batch, dealRow(job.ID, "scan-page", int64(i/10+1)))
	}
	require.NoError(t, st.AppendDeals(batch))

	recs, total, err := st.DealsPage("scan-page", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Len(t, recs, 10)

	recs, total, err = st.DealsPage("scan-page", 3, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Len(t, recs, 5)

	// out of range still reports the accurate total
	recs, total, err = st.DealsPage("scan-page", 9, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Empty(t, recs)

	// oversized page size is clamped, not an error
	recs, _, err = st.DealsPage("scan-page", 1, 100000)
	require.NoError(t, err)
	assert.Len(t, recs, 25)
}

func TestAppendAndReadDealsRoundTrip(t *testing.T) {
	st := testStore(t)
	job := newJob(t, st, "scan-rt")

	amount := 9500.0
	closed := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rec := dealRow(job.ID, "scan-rt", 1)
	rec.Amount = &amount
	rec.CloseDate = &closed
	rec.DealStage = "closedwon"
	rec.RawProperties = map[string]any{"amount": "9500", "custom": "kept"}
	require.NoError(t, st.AppendDeals([]model.DealRecord{rec}))

	got, err := st.AllDeals("scan-rt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Amount)
	assert.Equal(t, 9500.0, *got[0].Amount)
	assert.Equal(t, "closedwon", got[0].DealStage)
	require.NotNil(t, got[0].CloseDate)
	assert.True(t, got[0].CloseDate.Equal(closed))
	assert.Equal(t, "kept", got[0].RawProperties["custom"])
}

func TestCountByStatus(t *testing.T) {
	st := testStore(t)
	newJob(t, st, "s1")
	newJob(t, st, "s2")
	require.NoError(t, st.UpdateStatus("s2", model.StatusRunning, ""))

	counts, err := st.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.StatusPending])
	assert.Equal(t, int64(1), counts[model.StatusRunning])
}
