package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zia_backend/internal/entities"
)

// SessionDriver is the storage slot behind the session store: in-memory by
// default, redis when configured. Load returns (nil, false, nil) for unknown
// ids. Implementations must return copies; callers own what they get back.
type SessionDriver interface {
	Load(ctx context.Context, id string) (*entities.Session, bool, error)
	Save(ctx context.Context, s *entities.Session) error
	Delete(ctx context.Context, id string) error
}

// SessionStore maps opaque session ids to transcripts and per-session flow
// state. All mutations go through the store mutex so the single-writer
// invariant is explicit rather than relying on scheduler behavior.
type SessionStore struct {
	mu     sync.Mutex
	driver SessionDriver
}

func NewSessionStore(driver SessionDriver) *SessionStore {
	return &SessionStore{driver: driver}
}

func newSessionID() string {
	return "sess_" + uuid.New().String()
}

// Ensure returns a usable session id: creates a fresh session when id is
// empty or unknown, reuses it otherwise.
func (st *SessionStore) Ensure(ctx context.Context, id string) string {
	st.mu.Lock()
	defer st.mu.Unlock()

	if id != "" {
		if _, ok, err := st.driver.Load(ctx, id); err == nil && ok {
			return id
		}
	}
	if id == "" {
		id = newSessionID()
	}
	s := &entities.Session{
		ID:        id,
		StartedAt: time.Now(),
		Status:    "active",
		TouchedAt: time.Now(),
	}
	if err := st.driver.Save(ctx, s); err != nil {
		log.Error().Err(err).Str("session", id).Msg("session save failed")
	}
	return id
}

// Append adds one immutable message to the transcript.
func (st *SessionStore) Append(ctx context.Context, id, role, content string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return
	}
	s.Messages = append(s.Messages, entities.Message{Role: role, Content: content, TS: time.Now()})
	s.TouchedAt = time.Now()
	st.save(ctx, s)
}

// History returns at most 2*maxPairs messages, most recent last. The result
// is a copy; callers can not mutate the transcript through it.
func (st *SessionStore) History(ctx context.Context, id string, maxPairs int) []entities.Message {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return nil
	}
	msgs := s.Messages
	if maxPairs >= 0 && len(msgs) > 2*maxPairs {
		msgs = msgs[len(msgs)-2*maxPairs:]
	}
	out := make([]entities.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Messages returns the full stored transcript, or ok=false for unknown ids.
func (st *SessionStore) Messages(ctx context.Context, id string) ([]entities.Message, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return nil, false
	}
	out := make([]entities.Message, len(s.Messages))
	copy(out, s.Messages)
	return out, true
}

// Flow returns the current contact-capture state.
func (st *SessionStore) Flow(ctx context.Context, id string) entities.ContactFlow {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return entities.ContactFlow{}
	}
	return s.Flow
}

// SetFlow replaces the contact-capture state. Advancing state is the only
// mutation the flow engine performs.
func (st *SessionStore) SetFlow(ctx context.Context, id string, flow entities.ContactFlow) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return
	}
	s.Flow = flow
	s.TouchedAt = time.Now()
	st.save(ctx, s)
}

// SetLastLead records the id of the most recently persisted lead, so a later
// ask_slot answer can patch its meta.
func (st *SessionStore) SetLastLead(ctx context.Context, id string, leadID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return
	}
	s.LastLeadID = leadID
	st.save(ctx, s)
}

// LastLead returns the transient lead id, 0 when none is known.
func (st *SessionStore) LastLead(ctx context.Context, id string) int64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.load(ctx, id)
	if !ok {
		return 0
	}
	return s.LastLeadID
}

func (st *SessionStore) load(ctx context.Context, id string) (*entities.Session, bool) {
	s, ok, err := st.driver.Load(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("session", id).Msg("session load failed")
		return nil, false
	}
	return s, ok
}

func (st *SessionStore) save(ctx context.Context, s *entities.Session) {
	if err := st.driver.Save(ctx, s); err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("session save failed")
	}
}

// MemorySessionDriver keeps sessions in a mutex-guarded map and sweeps out
// stale ones periodically. The sweep is a best-effort memory cap: a session
// that ages past maxAge silently loses its transcript.
type MemorySessionDriver struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
	maxAge   time.Duration
}

func NewMemorySessionDriver(maxAge, sweepInterval time.Duration) *MemorySessionDriver {
	d := &MemorySessionDriver{
		sessions: make(map[string]*entities.Session),
		maxAge:   maxAge,
	}
	if sweepInterval > 0 {
		go d.sweep(sweepInterval)
	}
	return d
}

func (d *MemorySessionDriver) Load(_ context.Context, id string) (*entities.Session, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return cloneSession(s), true, nil
}

func (d *MemorySessionDriver) Save(_ context.Context, s *entities.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[s.ID] = cloneSession(s)
	return nil
}

func (d *MemorySessionDriver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, id)
	return nil
}

func (d *MemorySessionDriver) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	for range ticker.C {
		cutoff := time.Now().Add(-d.maxAge)
		d.mu.Lock()
		removed := 0
		for id, s := range d.sessions {
			if s.StartedAt.Before(cutoff) {
				delete(d.sessions, id)
				removed++
			}
		}
		d.mu.Unlock()
		if removed > 0 {
			log.Debug().Int("removed", removed).Msg("session sweep")
		}
	}
}

func cloneSession(s *entities.Session) *entities.Session {
	c := *s
	c.Messages = make([]entities.Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

var _ SessionDriver = (*MemorySessionDriver)(nil)
