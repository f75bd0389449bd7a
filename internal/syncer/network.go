package syncer

import "sync"

// ConnectionQuality is the optional service-tier hint reported alongside
// reachability. Connections at the lowest tier are treated as unsuitable
// for sync: draining is deferred, not attempted.
type ConnectionQuality int

const (
	// QualityUnknown means no hint is available; sync proceeds.
	QualityUnknown ConnectionQuality = iota
	// QualityPoor is the lowest service tier. Sync is deferred.
	QualityPoor
	// QualityModerate is a usable mid-tier connection.
	QualityModerate
	// QualityGood is a full-quality connection.
	QualityGood
)

// NetworkStatusProvider abstracts the host's connectivity signal so the
// engine can be driven without a real network.
//
// Subscribe registers a callback fired on every online/offline transition
// and returns a cancel function that removes the registration.
type NetworkStatusProvider interface {
	Online() bool
	Quality() ConnectionQuality
	Subscribe(fn func(online bool)) (cancel func())
}

// StaticProvider reports a fixed network state and never fires transitions.
// Used by one-shot CLI invocations where connectivity is assumed.
type StaticProvider struct {
	IsOnline bool
	Tier     ConnectionQuality
}

func (s StaticProvider) Online() bool               { return s.IsOnline }
func (s StaticProvider) Quality() ConnectionQuality { return s.Tier }
func (s StaticProvider) Subscribe(func(online bool)) (cancel func()) {
	return func() {}
}

// ManualProvider is a mutable provider for tests and embedders that track
// connectivity themselves. SetOnline flips the state and notifies
// subscribers on transitions.
//
// Thread-safe.
type ManualProvider struct {
	mu     sync.Mutex
	online bool
	tier   ConnectionQuality
	subs   map[int]func(online bool)
	nextID int
}

// NewManualProvider creates a provider in the given initial state.
func NewManualProvider(online bool, tier ConnectionQuality) *ManualProvider {
	return &ManualProvider{
		online: online,
		tier:   tier,
		subs:   make(map[int]func(online bool)),
	}
}

func (m *ManualProvider) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ManualProvider) Quality() ConnectionQuality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// SetQuality updates the service-tier hint without firing transitions.
func (m *ManualProvider) SetQuality(tier ConnectionQuality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tier = tier
}

// SetOnline updates reachability. Subscribers are notified only on an
// actual transition, outside the lock.
func (m *ManualProvider) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (m *ManualProvider) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
