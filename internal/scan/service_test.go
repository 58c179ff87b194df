package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hubspot-deals-connector/internal/hubspot"
	"hubspot-deals-connector/internal/model"
	"hubspot-deals-connector/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "scan.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testService(t *testing.T, st *store.Store, baseURL string, maxConcurrent int) *Service {
	t.Helper()
	return NewService(st, zap.NewNop(), Options{
		MaxConcurrentScans: maxConcurrent,
		CheckpointEvery:    2,
		ClientOptions: hubspot.Options{
			BaseURL:        baseURL,
			MinInterval:    time.Millisecond,
			InitialBackoff: time.Millisecond,
		},
	})
}

// dealsServer serves fixed page sizes: cursor "" is page 0, cursor "pN" is
// page N. mutate, when set, can rewrite a deal's property bag.
func dealsServer(t *testing.T, pageSizes []int, delay time.Duration, mutate func(page, i int, props map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}
		idx := 0
		if after := r.URL.Query().Get("after"); after != "" {
			idx, _ = strconv.Atoi(strings.TrimPrefix(after, "p"))
		}
		if idx >= len(pageSizes) {
			json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
			return
		}

		var results []map[string]any
		for i := 0; i < pageSizes[idx]; i++ {
			props := map[string]any{
				"dealname":   fmt.Sprintf("Deal %d-%d", idx, i),
				"amount":     "100.0",
				"dealstage":  "closedwon",
				"pipeline":   "default",
				"createdate": "2026-02-01T00:00:00Z",
			}
			if mutate != nil {
				mutate(idx, i, props)
			}
			results = append(results, map[string]any{
				"id":         fmt.Sprintf("%d-%d", idx, i),
				"properties": props,
			})
		}
		resp := map[string]any{"results": results}
		if idx < len(pageSizes)-1 {
			resp["paging"] = map[string]any{"next": map[string]any{"after": "p" + strconv.Itoa(idx+1)}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// waitForTerminal blocks until the scan's runner has finished and left the
// registry, then returns the durable job record.
func waitForTerminal(t *testing.T, svc *Service, scanID string) *model.ScanJob {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.reg.Get(scanID) == nil
	}, 10*time.Second, 5*time.Millisecond, "scan %s never reached a terminal status", scanID)

	job, err := svc.Status(scanID)
	require.NoError(t, err)
	require.True(t, job.Status.Terminal())
	return job
}

func TestScanRunsToCompletion(t *testing.T) {
	srv := dealsServer(t, []int{100, 100, 50}, 0, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	job, err := svc.Start(model.ScanRequest{ScanID: "full-run", AccessToken: "pat"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)

	done := waitForTerminal(t, svc, "full-run")
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, int64(250), done.TotalItems)
	assert.Equal(t, int64(250), done.ProcessedItems)
	assert.Zero(t, done.FailedItems)
	assert.Equal(t, 100.0, done.SuccessRate())

	recs, total, err := svc.Results("full-run", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(250), total)
	assert.Len(t, recs, 100)

	recs, total, err = svc.Results("full-run", 3, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(250), total)
	assert.Len(t, recs, 50, "the last page holds the remaining rows")
}

func TestEmptyPageWithCursorIsNotTermination(t *testing.T) {
	// an empty results slice only ends the scan when no next cursor
	// accompanies it
	srv := dealsServer(t, []int{3, 0, 2}, 0, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	_, err := svc.Start(model.ScanRequest{ScanID: "sparse", AccessToken: "pat"})
	require.NoError(t, err)

	done := waitForTerminal(t, svc, "sparse")
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, int64(5), done.TotalItems)
	assert.Equal(t, int64(5), done.ProcessedItems,
		"pages after the empty one must still be fetched")

	n, err := st.CountDeals("sparse")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestScanCountsMalformedRecords(t *testing.T) {
	srv := dealsServer(t, []int{10}, 0, func(page, i int, props map[string]any) {
		if i < 3 {
			props["amount"] = "not-a-number"
		}
	})
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	_, err := svc.Start(model.ScanRequest{ScanID: "malformed", AccessToken: "pat"})
	require.NoError(t, err)

	done := waitForTerminal(t, svc, "malformed")
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, int64(10), done.TotalItems)
	assert.Equal(t, int64(7), done.ProcessedItems)
	assert.Equal(t, int64(3), done.FailedItems)

	// malformed rows are persisted with their raw bag, not dropped
	_, total, err := svc.Results("malformed", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestScanAppliesStageFilter(t *testing.T) {
	srv := dealsServer(t, []int{10}, 0, func(page, i int, props map[string]any) {
		if i%2 == 0 {
			props["dealstage"] = "closedlost"
		}
	})
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	_, err := svc.Start(model.ScanRequest{
		ScanID:      "filtered",
		AccessToken: "pat",
		Filters:     model.ScanFilters{DealStages: []string{"closedwon"}},
	})
	require.NoError(t, err)

	done := waitForTerminal(t, svc, "filtered")
	assert.Equal(t, model.StatusCompleted, done.Status)
	// skipped records count toward the total but are neither stored nor failed
	assert.Equal(t, int64(10), done.TotalItems)
	assert.Equal(t, int64(5), done.ProcessedItems)
	assert.Zero(t, done.FailedItems)

	_, total, err := svc.Results("filtered", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestScanFailsOnBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	// acceptance is synchronous, the credential failure is not
	_, err := svc.Start(model.ScanRequest{ScanID: "bad-token", AccessToken: "expired"})
	require.NoError(t, err)

	done := waitForTerminal(t, svc, "bad-token")
	assert.Equal(t, model.StatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "authentication failed")
}

func TestDuplicateStartConflicts(t *testing.T) {
	srv := dealsServer(t, []int{100, 100, 100, 100}, 20*time.Millisecond, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 5)

	_, err := svc.Start(model.ScanRequest{ScanID: "dup", AccessToken: "pat"})
	require.NoError(t, err)

	_, err = svc.Start(model.ScanRequest{ScanID: "dup", AccessToken: "pat"})
	assert.ErrorIs(t, err, model.ErrConflict)

	svc.Cancel("dup")
	waitForTerminal(t, svc, "dup")
}

func TestPoolCapacityRejectsStart(t *testing.T) {
	srv := dealsServer(t, []int{100, 100, 100, 100}, 20*time.Millisecond, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 1)

	_, err := svc.Start(model.ScanRequest{ScanID: "pool-a", AccessToken: "pat"})
	require.NoError(t, err)

	_, err = svc.Start(model.ScanRequest{ScanID: "pool-b", AccessToken: "pat"})
	assert.ErrorIs(t, err, model.ErrConflict)

	svc.Cancel("pool-a")
	waitForTerminal(t, svc, "pool-a")
}

func TestCancelStopsAtPageBoundary(t *testing.T) {
	srv := dealsServer(t, []int{50, 50, 50, 50, 50, 50, 50, 50}, 15*time.Millisecond, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	_, err := svc.Start(model.ScanRequest{ScanID: "cancel-me", AccessToken: "pat"})
	require.NoError(t, err)

	// let at least one page land before cancelling
	require.Eventually(t, func() bool {
		n, err := st.CountDeals("cancel-me")
		return err == nil && n > 0
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Cancel("cancel-me"))
	done := waitForTerminal(t, svc, "cancel-me")
	assert.Equal(t, model.StatusCancelled, done.Status)

	// extracted rows survive the cancellation
	n, err := st.CountDeals("cancel-me")
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))

	// a finished scan cannot be cancelled again
	assert.ErrorIs(t, svc.Cancel("cancel-me"), model.ErrConflict)
}

type singlePageFetcher struct{}

func (singlePageFetcher) FetchPage(context.Context, string, model.ScanFilters, []string) (*hubspot.Page, error) {
	return &hubspot.Page{}, nil
}

func TestCancelFinishedRunnerConflicts(t *testing.T) {
	st := testStore(t)
	svc := testService(t, st, "http://unused", 2)

	// a runner that has reached a terminal status but not yet left the
	// registry must conflict, not accept a dead cancellation
	req := model.ScanRequest{ScanID: "late-cancel", AccessToken: "pat"}
	job := &model.ScanJob{ID: "job-late", ScanID: "late-cancel"}
	require.NoError(t, st.CreateJob(job, req))

	runner := NewRunner(RunnerConfig{JobID: job.ID, Request: req}, singlePageFetcher{}, st, zap.NewNop())
	runner.Run(context.Background())
	status, _ := runner.Snapshot()
	require.Equal(t, model.StatusCompleted, status)
	require.True(t, svc.reg.Add("late-cancel", runner))

	assert.ErrorIs(t, svc.Cancel("late-cancel"), model.ErrConflict)
}

func TestCancelUnknownScan(t *testing.T) {
	st := testStore(t)
	svc := testService(t, st, "http://unused", 2)
	assert.ErrorIs(t, svc.Cancel("ghost"), model.ErrNotFound)
}

func TestRemoveRunningScanConflicts(t *testing.T) {
	srv := dealsServer(t, []int{100, 100, 100, 100}, 20*time.Millisecond, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	_, err := svc.Start(model.ScanRequest{ScanID: "rm", AccessToken: "pat"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Remove("rm"), model.ErrConflict)

	svc.Cancel("rm")
	waitForTerminal(t, svc, "rm")

	require.NoError(t, svc.Remove("rm"))
	_, err = svc.Status("rm")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResumeFromCheckpoint(t *testing.T) {
	srv := dealsServer(t, []int{100, 100, 40}, 0, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	// a job left behind by a dead process: durable but no live runner
	req := model.ScanRequest{ScanID: "resume", AccessToken: "pat"}
	job := &model.ScanJob{ID: "job-resume", ScanID: "resume"}
	require.NoError(t, st.CreateJob(job, req))
	require.NoError(t, st.UpdateStatus("resume", model.StatusRunning, ""))
	require.NoError(t, st.SaveCheckpoint(&model.Checkpoint{
		ScanID:         "resume",
		Cursor:         "p2",
		LastBatchIndex: 2,
		TotalSoFar:     200,
		ProcessedSoFar: 200,
	}))

	_, err := svc.Start(req)
	require.NoError(t, err)

	done := waitForTerminal(t, svc, "resume")
	assert.Equal(t, model.StatusCompleted, done.Status)
	// only the last page is re-fetched; checkpointed counters carry over
	assert.Equal(t, int64(240), done.TotalItems)
	assert.Equal(t, int64(240), done.ProcessedItems)

	n, err := st.CountDeals("resume")
	require.NoError(t, err)
	assert.Equal(t, int64(40), n)
}

func TestRestartAfterCompletionStartsFresh(t *testing.T) {
	srv := dealsServer(t, []int{30}, 0, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	req := model.ScanRequest{ScanID: "rerun", AccessToken: "pat"}
	_, err := svc.Start(req)
	require.NoError(t, err)
	first := waitForTerminal(t, svc, "rerun")
	assert.Equal(t, model.StatusCompleted, first.Status)

	_, err = svc.Start(req)
	require.NoError(t, err)
	second := waitForTerminal(t, svc, "rerun")
	assert.Equal(t, model.StatusCompleted, second.Status)
	assert.Equal(t, int64(30), second.TotalItems,
		"a rerun starts from page one, not from the old checkpoint")
}

func TestStatusUnknownScan(t *testing.T) {
	st := testStore(t)
	svc := testService(t, st, "http://unused", 2)
	_, err := svc.Status("missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStats(t *testing.T) {
	srv := dealsServer(t, []int{10}, 0, nil)
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	_, err := svc.Start(model.ScanRequest{ScanID: "stats", AccessToken: "pat"})
	require.NoError(t, err)
	waitForTerminal(t, svc, "stats")

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalJobs)
	assert.Equal(t, int64(1), stats.ByStatus[model.StatusCompleted])
	assert.Zero(t, stats.ActiveScans)
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good" {
			json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	st := testStore(t)
	svc := testService(t, st, srv.URL, 2)

	require.NoError(t, svc.TestConnection(context.Background(), "good"))
	assert.ErrorIs(t, svc.TestConnection(context.Background(), "bad"), model.ErrAuthorizationFailed)
	assert.ErrorIs(t, svc.TestConnection(context.Background(), ""), model.ErrValidation)
}
