// Package offline is the offline-first data access layer: cache-first
// reads, optimistic writes, and a reconciler that replays queued
// mutations once the network is back.
//
// Callers construct a *Client with New and use it instead of talking to
// the REST API directly. Every mutation hits the Local Store before any
// network I/O, so reads always observe the latest local write.
package offline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/metrics"
	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/network"
	"github.com/kimhsiao/campusync/internal/store"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
	"github.com/kimhsiao/campusync/internal/sync/conflict"
	"github.com/kimhsiao/campusync/internal/sync/queue"
)

// Remote is the subset of the REST client the facade needs.
type Remote interface {
	List(ctx context.Context, entity string) ([]models.Record, error)
	Get(ctx context.Context, entity, id string) ([]models.Record, error)
	Create(ctx context.Context, entity string, rec models.Record) (models.Record, error)
	Update(ctx context.Context, entity, id string, rec models.Record) (models.Record, error)
	Delete(ctx context.Context, entity, id string) error
}

// Deps are the collaborators of a Client. Store, Queue, Remote and Monitor
// are required.
type Deps struct {
	Store    *store.Store
	Queue    *queue.SyncQueue
	Remote   Remote
	Monitor  *network.Monitor
	Resolver *conflict.Resolver
	Metrics  *metrics.Recorder
	Logger   *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEntityMap replaces DefaultEntityMap.
func WithEntityMap(m EntityMap) Option {
	return func(c *Client) { c.entities = m }
}

// WithClock overrides the time source used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithEventHandler registers a sync event handler.
func WithEventHandler(h syncpkg.EventHandler) Option {
	return func(c *Client) { c.handlers = append(c.handlers, h) }
}

// Client is the Offline API Facade.
type Client struct {
	store    *store.Store
	queue    *queue.SyncQueue
	remote   Remote
	monitor  *network.Monitor
	resolver *conflict.Resolver
	metrics  *metrics.Recorder
	logger   *logging.Logger
	entities EntityMap
	now      func() time.Time
	handlers []syncpkg.EventHandler

	syncing atomic.Bool

	mu         sync.RWMutex
	lastSync   time.Time
	lastResult *syncpkg.Result

	unsubscribe func()
}

// New builds a Client.
func New(deps Deps, opts ...Option) (*Client, error) {
	if deps.Store == nil || deps.Queue == nil || deps.Remote == nil || deps.Monitor == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "offline client requires store, queue, remote and monitor")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Get()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = conflict.NewResolver(deps.Store, logger)
	}

	c := &Client{
		store:    deps.Store,
		queue:    deps.Queue,
		remote:   deps.Remote,
		monitor:  deps.Monitor,
		resolver: resolver,
		metrics:  deps.Metrics,
		logger:   logger.With(logging.Fields{"component": "offline"}),
		entities: DefaultEntityMap(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.metrics.SetOnline(c.monitor.IsOnline())
	c.unsubscribe = c.monitor.Subscribe(func(s network.State) {
		c.metrics.SetOnline(s.Online)
	})
	return c, nil
}

// Close detaches the client from the monitor.
func (c *Client) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Entities returns the entity map in use.
func (c *Client) Entities() EntityMap {
	return c.entities
}

func (c *Client) online() bool {
	return c.monitor.IsOnline()
}

func (c *Client) emit(ev syncpkg.Event) {
	for _, h := range c.handlers {
		h(ev)
	}
}

// refreshQueueGauge keeps the queue depth metric current.
func (c *Client) refreshQueueGauge(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	stats, err := c.queue.Stats(ctx)
	if err != nil {
		return
	}
	c.metrics.SetQueueDepth(stats.Pending, stats.Failed)
}
