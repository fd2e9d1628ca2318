package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
)

const (
	// placeholder metadata for sessions created by a telemetry frame
	// that arrives before any session_metadata
	DefaultTrackName   = "Unknown Track"
	DefaultSessionType = "race"

	DefaultTTL = 60 * time.Second
)

// Registry is the authoritative in-memory state of the currently active
// sessions and their drivers' live telemetry. It is built purely from
// inbound relay events and evicted by the EvictionScheduler.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[string]*model.SessionEntry
	ttl      time.Duration
	now      func() time.Time
	l        *log.Logger
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(r *Registry) {
		r.l = arg
	}
}

// WithClock replaces the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...Option) *Registry {
	ret := &Registry{
		sessions: make(map[string]*model.SessionEntry),
		ttl:      DefaultTTL,
		now:      time.Now,
		l:        log.Default().Named("registry"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// UpsertMetadata creates or overwrites the non-driver fields of a session
// and refreshes its lastUpdate. The driver map is left untouched.
func (r *Registry) UpsertMetadata(sessionID string, meta model.SessionMetadata) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		entry = &model.SessionEntry{
			SessionID: sessionID,
			Drivers:   make(map[string]*model.DriverSnapshot),
		}
		r.sessions[sessionID] = entry
	}
	entry.TrackName = meta.TrackName
	entry.TrackConfig = meta.TrackConfig
	entry.SessionType = meta.SessionType
	if entry.TrackName == "" {
		entry.TrackName = DefaultTrackName
	}
	if entry.SessionType == "" {
		entry.SessionType = DefaultSessionType
	}
	entry.LastUpdate = r.now()
}

// ApplyTelemetry replaces the named drivers' snapshots and refreshes the
// session's lastUpdate. Unknown sessions are auto-created with placeholder
// metadata so that ingestion never blocks on missing metadata.
// The returned slice is the timing projection used for broadcasts: ordered
// by position if present, input order otherwise.
//
//nolint:whitespace // can't make both editor and linter happy
func (r *Registry) ApplyTelemetry(
	sessionID string, snapshots []*model.DriverSnapshot,
) []*model.DriverSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		entry = &model.SessionEntry{
			SessionID:   sessionID,
			TrackName:   DefaultTrackName,
			SessionType: DefaultSessionType,
			Drivers:     make(map[string]*model.DriverSnapshot),
		}
		r.sessions[sessionID] = entry
		r.l.Debug("auto-created session from telemetry",
			log.String("sessionId", sessionID))
	}
	projected := make([]*model.DriverSnapshot, 0, len(snapshots))
	for i := range snapshots {
		cp := *snapshots[i]
		entry.Drivers[cp.DriverID] = &cp
		projected = append(projected, &cp)
	}
	entry.LastUpdate = r.now()

	if lo.SomeBy(projected, func(s *model.DriverSnapshot) bool {
		return s.Position > 0
	}) {
		// snapshots without a position sort behind the classified ones
		sort.SliceStable(projected, func(i, j int) bool {
			pi, pj := projected[i].Position, projected[j].Position
			if pi <= 0 || pj <= 0 {
				return pj <= 0 && pi > 0
			}
			return pi < pj
		})
	}
	return projected
}

// ListActive returns a summary for every live session. Consistency across
// sessions is best-effort.
func (r *Registry) ListActive() []*model.SessionSummary {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return lo.MapToSlice(r.sessions,
		func(_ string, entry *model.SessionEntry) *model.SessionSummary {
			return &model.SessionSummary{
				SessionID:   entry.SessionID,
				TrackName:   entry.TrackName,
				SessionType: entry.SessionType,
				DriverCount: len(entry.Drivers),
				LastUpdate:  entry.LastUpdate,
			}
		})
}

// Get returns a copy of the session entry.
func (r *Registry) Get(sessionID string) (*model.SessionEntry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *entry
	cp.Drivers = make(map[string]*model.DriverSnapshot, len(entry.Drivers))
	for k, v := range entry.Drivers {
		d := *v
		cp.Drivers[k] = &d
	}
	return &cp, true
}

// EvictStale removes every session with now-lastUpdate > ttl and returns
// the number of evicted sessions. The comparison is strict, a session
// updated exactly at the TTL boundary survives the sweep.
func (r *Registry) EvictStale(now time.Time) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	evicted := 0
	for key, entry := range r.sessions {
		if now.Sub(entry.LastUpdate) > r.ttl {
			delete(r.sessions, key)
			evicted++
			r.l.Info("evicted stale session",
				log.String("sessionId", key),
				log.Time("lastUpdate", entry.LastUpdate))
		}
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}
