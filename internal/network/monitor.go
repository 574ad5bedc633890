// Package network tracks connectivity state and tells interested parties
// when the process comes back online.
//
// The Monitor is passive: it performs no I/O and only changes state when
// one of its Handle methods is called, either by the Prober or by a caller
// with better knowledge (tests, a CLI --offline flag).
package network

import (
	"sync"

	"github.com/kimhsiao/campusync/internal/logging"
)

// Connection quality hints, mirroring the effective-type vocabulary.
const (
	Quality4G     = "4g"
	Quality3G     = "3g"
	Quality2G     = "2g"
	QualitySlow2G = "slow-2g"
)

// State is a snapshot of connectivity.
type State struct {
	Online            bool   `json:"isOnline"`
	EffectiveType     string `json:"effectiveType,omitempty"`
	ShowOfflineBanner bool   `json:"showOfflineBanner"`
}

// Monitor holds the connectivity state and its subscribers.
type Monitor struct {
	mu       sync.Mutex
	state    State
	nextID   int
	subs     map[int]func(State)
	onOnline map[int]func()
	logger   *logging.Logger
}

// NewMonitor creates a Monitor with the given initial connectivity. The
// offline banner starts visible iff the monitor starts offline.
func NewMonitor(online bool, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Get()
	}
	return &Monitor{
		state:    State{Online: online, ShowOfflineBanner: !online},
		subs:     make(map[int]func(State)),
		onOnline: make(map[int]func()),
		logger:   logger.With(logging.Fields{"component": "network"}),
	}
}

// State returns the current snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOnline reports whether the monitor believes the network is reachable.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Online
}

// HandleOnline records an offline→online transition, notifies subscribers
// and fires the OnOnline callbacks. Repeated calls while online are ignored.
func (m *Monitor) HandleOnline() {
	m.mu.Lock()
	if m.state.Online {
		m.mu.Unlock()
		return
	}
	m.state.Online = true
	m.state.ShowOfflineBanner = false
	state, subs, triggers := m.state, m.snapshotSubs(), m.snapshotTriggers()
	m.mu.Unlock()

	m.logger.Info("Network online", logging.Fields{"effective_type": state.EffectiveType})
	notify(subs, state)
	for _, fn := range triggers {
		fn()
	}
}

// HandleOffline records an online→offline transition. Repeated calls while
// offline are ignored.
func (m *Monitor) HandleOffline() {
	m.mu.Lock()
	if !m.state.Online {
		m.mu.Unlock()
		return
	}
	m.state.Online = false
	m.state.ShowOfflineBanner = true
	state, subs := m.state, m.snapshotSubs()
	m.mu.Unlock()

	m.logger.Warn("Network offline")
	notify(subs, state)
}

// HandleQualityChange updates the quality hint only.
func (m *Monitor) HandleQualityChange(effectiveType string) {
	m.mu.Lock()
	if m.state.EffectiveType == effectiveType {
		m.mu.Unlock()
		return
	}
	m.state.EffectiveType = effectiveType
	state, subs := m.state, m.snapshotSubs()
	m.mu.Unlock()

	m.logger.Debug("Network quality changed", logging.Fields{"effective_type": effectiveType})
	notify(subs, state)
}

// DismissBanner hides the offline banner until the next offline transition.
func (m *Monitor) DismissBanner() {
	m.mu.Lock()
	if !m.state.ShowOfflineBanner {
		m.mu.Unlock()
		return
	}
	m.state.ShowOfflineBanner = false
	state, subs := m.state, m.snapshotSubs()
	m.mu.Unlock()

	notify(subs, state)
}

// Subscribe registers fn for every state change. The returned function
// removes the subscription and is safe to call more than once.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// OnOnline registers fn to run on every offline→online transition.
func (m *Monitor) OnOnline(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.onOnline[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.onOnline, id)
		m.mu.Unlock()
	}
}

// Close drops every subscriber and trigger.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[int]func(State))
	m.onOnline = make(map[int]func())
}

// Subscribers returns how many subscribers and online triggers are registered.
func (m *Monitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs) + len(m.onOnline)
}

func (m *Monitor) snapshotSubs() []func(State) {
	out := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}

func (m *Monitor) snapshotTriggers() []func() {
	out := make([]func(), 0, len(m.onOnline))
	for _, fn := range m.onOnline {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(State), state State) {
	for _, fn := range subs {
		fn(state)
	}
}
