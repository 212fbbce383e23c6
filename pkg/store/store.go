package store

import (
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
	"github.com/google/uuid"
)

// DefaultSessionID is the reserved session id used when a caller does not
// name one. The default session is never evicted by the TTL sweep.
const DefaultSessionID = "default"

// sessionIDPattern restricts user-supplied session ids.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSessionID reports whether id satisfies the session id pattern.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Store is the authoritative keyed registry of scenes. Sessions are
// created on first reference, refreshed on every update, and evicted by a
// background sweep once idle past the TTL.
type Store struct {
	mu     sync.RWMutex
	scenes map[string]*scene.Scene

	config *Config
	logger *slog.Logger

	done      chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// Info is one row of the observability listing.
type Info struct {
	ID           string    `json:"id"`
	ElementCount int       `json:"elementCount"`
	Version      int64     `json:"version"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// New creates a Store and starts its TTL sweep loop.
func New(config *Config, logger *slog.Logger) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		scenes:    make(map[string]*scene.Scene),
		config:    config,
		logger:    logger.With("component", "session_store"),
		done:      make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Create registers a fresh scene. An empty id generates a random one; a
// supplied id must match the session id pattern. Creating an id that
// already exists replaces the prior scene.
func (s *Store) Create(id string) (*scene.Scene, error) {
	if id == "" {
		id = uuid.NewString()
	} else if !ValidSessionID(id) {
		return nil, ErrInvalidSessionID
	}

	sc := scene.New(id)

	s.mu.Lock()
	s.scenes[id] = sc
	total := len(s.scenes)
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", id, "sessions", total)
	return sc, nil
}

// Get resolves a session id, falling back to the reserved default when id
// is empty. With autoCreate, a missing session is created on the spot;
// without it, ErrSessionNotFound is returned.
func (s *Store) Get(id string, autoCreate bool) (*scene.Scene, error) {
	if id == "" {
		id = DefaultSessionID
	}

	s.mu.RLock()
	sc, ok := s.scenes[id]
	s.mu.RUnlock()

	if ok {
		return sc, nil
	}
	if !autoCreate {
		return nil, ErrSessionNotFound
	}
	return s.Create(id)
}

// Update persists a scene by id and resets its TTL countdown. Scenes
// track their own LastUpdated on mutation; Update re-registers the scene
// in case it was evicted between Get and Update.
func (s *Store) Update(sc *scene.Scene) {
	s.mu.Lock()
	s.scenes[sc.ID] = sc
	s.mu.Unlock()
}

// Delete removes a session. Returns whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.scenes[id]
	delete(s.scenes, id)
	s.mu.Unlock()

	if ok {
		s.logger.Info("session deleted", "session_id", id)
	}
	return ok
}

// List returns an id-sorted summary of every session.
func (s *Store) List() []Info {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.scenes))
	for id, sc := range s.scenes {
		infos = append(infos, Info{
			ID:           id,
			ElementCount: sc.ElementCount(),
			Version:      sc.Version(),
			LastUpdated:  sc.LastUpdated(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of registered sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scenes)
}

// sweepLoop periodically evicts idle sessions.
func (s *Store) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

// Sweep evicts every session idle past the TTL, except the reserved
// default session. Exposed for tests and manual maintenance.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	var expired []string
	for id, sc := range s.scenes {
		if id == DefaultSessionID {
			continue
		}
		if now.Sub(sc.LastUpdated()) > s.config.SessionTTL {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.scenes, id)
	}
	remaining := len(s.scenes)
	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Info("evicted idle sessions", "count", len(expired), "remaining", remaining)
	}
	return len(expired)
}

// Shutdown stops the sweep loop. Scenes are not persisted anywhere; the
// registry simply dies with the process.
func (s *Store) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.sweepDone
	})
}
