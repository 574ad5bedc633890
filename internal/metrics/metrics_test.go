package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_counters(t *testing.T) {
	r := New()

	r.ObserveSyncOperation("CREATE", "succeeded")
	r.ObserveSyncOperation("CREATE", "succeeded")
	r.ObserveSyncOperation("DELETE", "failed")
	r.ObserveRequest("get", "cached")
	r.SetQueueDepth(4, 1)
	r.SetOnline(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncOps.WithLabelValues("CREATE", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.syncOps.WithLabelValues("DELETE", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("get", "cached")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.online))

	r.SetOnline(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.online))
}

func TestRecorder_syncRun(t *testing.T) {
	r := New()
	at := time.Unix(1_700_000_000, 0)

	r.ObserveSyncRun(0, 250*time.Millisecond, at)
	r.ObserveSyncRun(2, time.Second, at)

	assert.Equal(t, 2, testutil.CollectAndCount(r.syncRuns))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(r.lastSyncTime))
}

func TestRecorder_nilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSyncOperation("CREATE", "succeeded")
		r.ObserveSyncRun(0, time.Second, time.Now())
		r.ObserveRequest("get", "fresh")
		r.SetQueueDepth(1, 1)
		r.SetOnline(true)
	})
	assert.Nil(t, r.Registry())
}

func TestRecorder_handler(t *testing.T) {
	r := New()
	r.ObserveRequest("post", "queued")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `campusync_facade_requests_total{status="queued",verb="post"} 1`), body)
}
