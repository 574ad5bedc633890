package offline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/campusync/internal/api"
	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/metrics"
	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/network"
	"github.com/kimhsiao/campusync/internal/store"
	"github.com/kimhsiao/campusync/internal/sync/queue"
)

type remoteCall struct {
	Method string
	Entity string
	ID     string
	Body   models.Record
}

// fakeRemote records calls in order and answers like a well-behaved server.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []remoteCall
	nextID  int
	records map[string][]models.Record
	failFn  func(method, entity, id string) error
	block   chan struct{} // when set, Create waits on it
	entered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string][]models.Record)}
}

func (f *fakeRemote) record(method, entity, id string, body models.Record) error {
	f.mu.Lock()
	f.calls = append(f.calls, remoteCall{Method: method, Entity: entity, ID: id, Body: body})
	failFn := f.failFn
	f.mu.Unlock()
	if failFn != nil {
		return failFn(method, entity, id)
	}
	return nil
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remoteCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRemote) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFn = func(string, string, string) error { return err }
}

func (f *fakeRemote) List(ctx context.Context, entity string) ([]models.Record, error) {
	if err := f.record("LIST", entity, "", nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[entity], nil
}

func (f *fakeRemote) Get(ctx context.Context, entity, id string) ([]models.Record, error) {
	if err := f.record("GET", entity, id, nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records[entity] {
		if r.ID() == id {
			return []models.Record{r}, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrHTTP, "server returned 404", &api.HTTPError{Status: 404})
}

func (f *fakeRemote) Create(ctx context.Context, entity string, rec models.Record) (models.Record, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err := f.record("CREATE", entity, "", rec); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	out := rec.Clone()
	out["id"] = fmt.Sprintf("srv-%d", f.nextID)
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, entity, id string, rec models.Record) (models.Record, error) {
	if err := f.record("UPDATE", entity, id, rec); err != nil {
		return nil, err
	}
	out := rec.Clone()
	out["id"] = id
	return out, nil
}

func (f *fakeRemote) Delete(ctx context.Context, entity, id string) error {
	return f.record("DELETE", entity, id, nil)
}

type harness struct {
	client  *Client
	remote  *fakeRemote
	monitor *network.Monitor
	store   *store.Store
	queue   *queue.SyncQueue
	metrics *metrics.Recorder
}

func newHarness(t *testing.T, online bool, opts ...Option) *harness {
	t.Helper()
	s, err := store.Open(context.Background(), t.TempDir(), store.DefaultSchema(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{
		remote:  newFakeRemote(),
		monitor: network.NewMonitor(online, logging.Discard()),
		store:   s,
		queue:   queue.NewSyncQueue(s, queue.WithLogger(logging.Discard())),
		metrics: metrics.New(),
	}
	h.client, err = New(Deps{
		Store:   s,
		Queue:   h.queue,
		Remote:  h.remote,
		Monitor: h.monitor,
		Metrics: h.metrics,
		Logger:  logging.Discard(),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(h.client.Close)
	return h
}

func (h *harness) cache(t *testing.T, partition string, rec models.Record) {
	t.Helper()
	require.NoError(t, h.store.Put(context.Background(), partition, models.CachedRecord{
		Record: rec,
		Meta:   models.SyncMeta{Synced: true, Version: 1},
	}))
}

func (h *harness) queueOps(t *testing.T) []models.QueueOperation {
	t.Helper()
	ops, err := h.queue.List(context.Background())
	require.NoError(t, err)
	return ops
}

var errUnreachable = apperrors.New(apperrors.ErrNetwork, "connection refused")
