// Package session keeps the per-browser dashboard state: one simulator view,
// one admin view and one notification bus per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/admin"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/notify"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/simulation"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

// Backend is the tournament API surface every session view uses
type Backend interface {
	simulation.Backend
	admin.Backend
}

// Session is one browser's dashboard state
type Session struct {
	ID            string
	Simulator     *simulation.View
	Admin         *admin.View
	Notifications *notify.Bus

	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// Allow reports whether another action may be dispatched now
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

// LastSeen returns the time of the latest request for this session
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// Options configures new sessions and the sweeper
type Options struct {
	DefaultRuns       int
	NotificationLimit int
	IdleTTL           time.Duration
	SweepSchedule     string
	ActionRateLimit   float64
	ActionRateBurst   int
}

// Manager owns the in-process sessions. When a SnapshotStore is set the team
// selection and run count survive restarts and move between instances.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	backend   Backend
	opts      Options
	snapshots SnapshotStore
	logger    *logrus.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// NewManager creates a session manager. snapshots may be nil.
func NewManager(backend Backend, opts Options, snapshots SnapshotStore, log *logrus.Logger) *Manager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Hour
	}
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = "@every 10m"
	}
	if opts.ActionRateLimit <= 0 {
		opts.ActionRateLimit = 2
	}
	if opts.ActionRateBurst <= 0 {
		opts.ActionRateBurst = 5
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		backend:   backend,
		opts:      opts,
		snapshots: snapshots,
		logger:    log,
		cron:      cron.New(cron.WithLogger(cron.VerbosePrintfLogger(log))),
		now:       time.Now,
	}
}

// Acquire returns the session for id, creating one when id is unknown or
// malformed. The boolean reports whether a new session was created.
func (m *Manager) Acquire(ctx context.Context, id string) (*Session, bool) {
	now := m.now()

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(now)
		return s, false
	}

	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	s = m.newSession(id, now)
	m.restore(ctx, s)

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		existing.touch(now)
		return existing, false
	}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"component":  "sessions",
		"session_id": id,
		"sessions":   count,
	}).Debug("Session created")
	return s, true
}

func (m *Manager) newSession(id string, now time.Time) *Session {
	entry := logger.WithSession(m.logger, id)
	return &Session{
		ID:            id,
		Simulator:     simulation.NewView(m.backend, m.opts.DefaultRuns, entry),
		Admin:         admin.NewView(m.backend, entry),
		Notifications: notify.NewBus(m.opts.NotificationLimit, m.logger),
		limiter:       rate.NewLimiter(rate.Limit(m.opts.ActionRateLimit), m.opts.ActionRateBurst),
		lastSeen:      now,
	}
}

func (m *Manager) restore(ctx context.Context, s *Session) {
	if m.snapshots == nil {
		return
	}
	snap, err := m.snapshots.Load(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			logger.WithSession(m.logger, s.ID).WithError(err).Warn("Failed to load session snapshot")
		}
		return
	}
	s.Simulator.Restore(snap.Selected, snap.Runs)
}

// Persist saves the session's selection and run count when a snapshot store
// is configured
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	if m.snapshots == nil {
		return nil
	}
	state := s.Simulator.Snapshot()
	snap := Snapshot{Selected: state.Selected, Runs: state.Runs, SavedAt: m.now()}
	if err := m.snapshots.Save(ctx, s.ID, snap, m.opts.IdleTTL); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", s.ID, err)
	}
	return nil
}

// Get returns an existing session without touching it
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of in-process sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the idle TTL and returns how
// many were removed
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.WithFields(logrus.Fields{
			"component": "sessions",
			"evicted":   removed,
			"remaining": remaining,
		}).Info("Evicted idle sessions")
	}
	return removed
}

// Start schedules the idle sweeper
func (m *Manager) Start() error {
	if _, err := m.cron.AddFunc(m.opts.SweepSchedule, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("invalid session sweep schedule %q: %w", m.opts.SweepSchedule, err)
	}
	m.cron.Start()
	m.logger.WithFields(logrus.Fields{
		"component": "sessions",
		"schedule":  m.opts.SweepSchedule,
		"idle_ttl":  m.opts.IdleTTL.String(),
	}).Info("Session sweeper started")
	return nil
}

// Stop stops the sweeper, waiting briefly for a running sweep
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		m.logger.WithField("component", "sessions").Warn("Session sweeper stop timed out")
	}
}
