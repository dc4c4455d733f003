package service

import (
	"context"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

type sessionKey struct {
	userID uint
	examID string
}

// SessionManager holds the live exam sessions, at most one per (user, exam).
type SessionManager struct {
	Exams *ExamService

	mu       sync.RWMutex
	policy   SessionPolicy
	idle     time.Duration
	sessions map[string]*AttemptSession
	byExam   map[sessionKey]string
	now      func() time.Time
	tick     time.Duration
}

func NewSessionManager(exams *ExamService, policy SessionPolicy, idle time.Duration) *SessionManager {
	return &SessionManager{
		Exams:    exams,
		policy:   policy,
		idle:     idle,
		sessions: make(map[string]*AttemptSession),
		byExam:   make(map[sessionKey]string),
		now:      time.Now,
		tick:     time.Second,
	}
}

// UpdatePolicy applies to sessions opened afterwards.
func (m *SessionManager) UpdatePolicy(policy SessionPolicy, idle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = policy
	m.idle = idle
}

// Open starts a fresh session for the exam. Any previous session of the user for the same exam is closed first,
// so pointer and answers never leak into the new attempt.
func (m *SessionManager) Open(ctx context.Context, userID uint, examID string) (*AttemptSession, error) {
	m.mu.Lock()
	key := sessionKey{userID: userID, examID: examID}
	if prevID, ok := m.byExam[key]; ok {
		if prev := m.sessions[prevID]; prev != nil {
			prev.Close()
			delete(m.sessions, prevID)
		}
		delete(m.byExam, key)
	}
	sess := NewAttemptSession(userID, examID, m.Exams.ForUser(userID), m.policy)
	sess.tickInterval = m.tick
	m.sessions[sess.ID] = sess
	m.byExam[key] = sess.ID
	m.updateGaugeLocked()
	m.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		m.remove(sess)
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// Get returns the session if it exists and belongs to the user. Other users see not-found.
func (m *SessionManager) Get(userID uint, sessionID string) (*AttemptSession, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok || sess.UserID != userID || sess.Closed() {
		return nil, util.ErrSessionNotFound
	}
	return sess, nil
}

func (m *SessionManager) Close(userID uint, sessionID string) error {
	sess, err := m.Get(userID, sessionID)
	if err != nil {
		return err
	}
	m.remove(sess)
	sess.Close()
	logger.Log.Info("exam session closed",
		zap.String("session_id", sess.ID), zap.String("state", string(sess.State())))
	return nil
}

func (m *SessionManager) remove(sess *AttemptSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[sess.ID]; ok && cur == sess {
		delete(m.sessions, sess.ID)
	}
	key := sessionKey{userID: sess.UserID, examID: sess.ExamID}
	if id, ok := m.byExam[key]; ok && id == sess.ID {
		delete(m.byExam, key)
	}
	m.updateGaugeLocked()
}

// EvictIdle closes sessions unused for longer than the idle window. In-progress sessions whose countdown
// is still running are kept; their timer will submit them.
func (m *SessionManager) EvictIdle() int {
	m.mu.RLock()
	idle := m.idle
	candidates := make([]*AttemptSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)
	evicted := 0
	for _, s := range candidates {
		if s.IdleSince().After(cutoff) {
			continue
		}
		snap := s.Snapshot()
		if snap.State == StateInProgress && snap.RemainingSeconds > 0 {
			continue
		}
		m.remove(s)
		s.Close()
		evicted++
	}
	if evicted > 0 {
		logger.Log.Info("evicted idle exam sessions", zap.Int("count", evicted))
	}
	return evicted
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session. Open attempts stay open server-side.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*AttemptSession)
	m.byExam = make(map[sessionKey]string)
	m.updateGaugeLocked()
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *SessionManager) updateGaugeLocked() {
	monitoring.ActiveSessions.Set(float64(len(m.sessions)))
}
