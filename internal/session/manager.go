package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a session key is unknown or has expired.
var ErrNotFound = errors.New("session not found")

// DefaultIdleTimeout is how long an untouched session lives.
const DefaultIdleTimeout = 30 * time.Minute

// Manager maps keys to sessions. Sessions expire after IdleTimeout without
// access.
type Manager struct {
	cache *gocache.Cache
	log   *zap.Logger
	now   func() time.Time

	platform string

	mu sync.Mutex // serialises get-or-create
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	IdleTimeout     time.Duration // defaults to DefaultIdleTimeout; negative disables expiry
	CleanupInterval time.Duration // 0 means expired sessions are removed only by Sweep
	Platform        string        // stamped on every session created here
	Logger          *zap.Logger
}

// NewManager creates a Manager.
func NewManager(opts ManagerOpts) *Manager {
	ttl := opts.IdleTimeout
	switch {
	case ttl == 0:
		ttl = DefaultIdleTimeout
	case ttl < 0:
		ttl = gocache.NoExpiration
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		cache: gocache.New(ttl, opts.CleanupInterval),
		log:   log,
		now:   time.Now,

		platform: opts.Platform,
	}
	m.cache.OnEvicted(func(key string, _ interface{}) {
		m.log.Debug("session evicted", zap.String("session", key))
	})
	return m
}

// ThreadKey builds the session key used by chat bridges.
func ThreadKey(platform, channel, thread, user string) string {
	return strings.Join([]string{platform, channel, thread, user}, ":")
}

// Create starts a new session with a random ID.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.platform, m.now)
	m.cache.Set(s.ID(), s, gocache.DefaultExpiration)
	m.log.Debug("session created", zap.String("session", s.ID()))
	return s
}

// Get returns the session for key and refreshes its TTL.
func (m *Manager) Get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, fmt.Errorf("session: get %q: %w", key, ErrNotFound)
	}
	m.cache.Set(key, v, gocache.DefaultExpiration)
	return v.(*Session), nil
}

// GetOrCreate returns the session for key, creating it if needed.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.cache.Get(key); ok {
		m.cache.Set(key, v, gocache.DefaultExpiration)
		return v.(*Session)
	}
	s := newSession(key, m.platform, m.now)
	m.cache.Set(key, s, gocache.DefaultExpiration)
	m.log.Debug("session created", zap.String("session", key))
	return s
}

// Delete removes a session. Unknown keys are ignored.
func (m *Manager) Delete(key string) {
	m.cache.Delete(key)
}

// Sweep removes expired sessions.
func (m *Manager) Sweep() {
	before := m.cache.ItemCount()
	m.cache.DeleteExpired()
	if n := before - m.cache.ItemCount(); n > 0 {
		m.log.Info("expired sessions removed", zap.Int("count", n))
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return len(m.cache.Items())
}

// List returns live sessions ordered by creation time.
func (m *Manager) List() []*Session {
	items := m.cache.Items()
	out := make([]*Session, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(*Session))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// Aggregate sums Stats over the live sessions.
type Aggregate struct {
	Sessions int `json:"sessions"`
	Stats
}

// Stats aggregates per-session stats across live sessions.
func (m *Manager) Stats() Aggregate {
	agg := Aggregate{Stats: Stats{Intents: make(map[string]int)}}
	for _, s := range m.List() {
		st := s.Stats()
		agg.Sessions++
		agg.UserMessages += st.UserMessages
		agg.Escalations += st.Escalations
		for k, v := range st.Intents {
			agg.Intents[k] += v
		}
	}
	return agg
}
