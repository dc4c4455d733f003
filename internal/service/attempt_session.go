package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AttemptStore is what an AttemptSession needs from the data access layer.
// ExamService.ForUser and client.Client both satisfy it.
type AttemptStore interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	GetExamQuestions(ctx context.Context, examID string) ([]model.Question, error)
	CreateAttempt(ctx context.Context, examID string, totalQuestions int) (*model.Attempt, error)
	SubmitAttempt(ctx context.Context, attemptID string, answers []AnswerSubmission, timeTakenSeconds int) (*SubmissionResult, error)
}

type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateInProgress   SessionState = "in_progress"
	StateSubmitting   SessionState = "submitting"
	StateCompleted    SessionState = "completed"
)

// SessionPolicy decides how long the countdown runs.
type SessionPolicy struct {
	DefaultDuration time.Duration
	UseExamDuration bool
}

func (p SessionPolicy) durationFor(exam *model.Exam) int {
	if p.UseExamDuration && exam != nil && exam.DurationMinutes > 0 {
		return exam.DurationMinutes * 60
	}
	if p.DefaultDuration > 0 {
		return int(p.DefaultDuration / time.Second)
	}
	return util.DefaultAttemptDurationSeconds
}

const submitTimeout = 30 * time.Second

// OptionView is an answer option as shown while taking the exam; correctness is never exposed here.
type OptionView struct {
	ID     string `json:"id"`
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

type QuestionView struct {
	ID               string       `json:"id"`
	Index            int          `json:"index"`
	Text             string       `json:"text"`
	Options          []OptionView `json:"options"`
	SelectedOptionID string       `json:"selectedOptionId,omitempty"`
}

// SessionSnapshot is a consistent copy of a session, safe to serialize and hand to observers.
type SessionSnapshot struct {
	ID               string            `json:"id"`
	State            SessionState      `json:"state"`
	ExamID           string            `json:"examId"`
	ExamTitle        string            `json:"examTitle,omitempty"`
	AttemptID        string            `json:"attemptId,omitempty"`
	CurrentIndex     int               `json:"currentIndex"`
	TotalQuestions   int               `json:"totalQuestions"`
	AnsweredCount    int               `json:"answeredCount"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Answered         []bool            `json:"answered"`
	Current          *QuestionView     `json:"current,omitempty"`
	Result           *SubmissionResult `json:"result,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// AttemptSession drives one user through one exam attempt:
// initializing -> in_progress -> submitting -> completed, and back to initializing on retake.
type AttemptSession struct {
	ID     string
	UserID uint
	ExamID string

	store        AttemptStore
	policy       SessionPolicy
	now          func() time.Time
	tickInterval time.Duration

	mu         sync.Mutex
	state      SessionState
	starting   bool
	closed     bool
	exam       *model.Exam
	questions  []model.Question
	attempt    *model.Attempt
	current    int
	answers    map[string]string
	remaining  int
	startedAt  time.Time
	result     *SubmissionResult
	lastErr    error
	lastActive time.Time
	stopTimer  chan struct{}

	subs    map[int]chan SessionSnapshot
	nextSub int
}

func NewAttemptSession(userID uint, examID string, store AttemptStore, policy SessionPolicy) *AttemptSession {
	return &AttemptSession{
		ID:           model.GenerateUUID(),
		UserID:       userID,
		ExamID:       examID,
		store:        store,
		policy:       policy,
		now:          time.Now,
		tickInterval: time.Second,
		state:        StateInitializing,
		answers:      make(map[string]string),
		lastActive:   time.Now(),
		subs:         make(map[int]chan SessionSnapshot),
	}
}

// Start loads the question set, creates the attempt and starts the countdown.
// On failure the session stays in initializing and Start may be called again.
func (s *AttemptSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return util.ErrSessionNotFound
	}
	if s.state != StateInitializing || s.starting {
		s.mu.Unlock()
		return util.ErrInvalidState
	}
	s.starting = true
	s.mu.Unlock()

	exam, questions, attempt, err := s.initialize(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	s.touch()
	if err != nil {
		s.lastErr = err
		s.publishLocked()
		return err
	}
	if s.closed {
		// Closed while the attempt was being created; the attempt stays open server-side.
		return util.ErrSessionNotFound
	}

	s.exam = exam
	s.questions = questions
	s.attempt = attempt
	s.current = 0
	s.answers = make(map[string]string)
	s.result = nil
	s.lastErr = nil
	s.startedAt = s.now()
	s.remaining = s.policy.durationFor(exam)
	s.state = StateInProgress
	s.startTimerLocked()
	s.publishLocked()

	logger.Log.Info("exam session started",
		zap.String("session_id", s.ID),
		zap.Uint("user_id", s.UserID),
		zap.String("attempt_id", attempt.ID),
		zap.Int("questions", len(questions)),
		zap.Int("duration_seconds", s.remaining))
	return nil
}

// initialize runs the two ordered round trips: questions first, then the attempt that needs their count.
func (s *AttemptSession) initialize(ctx context.Context) (*model.Exam, []model.Question, *model.Attempt, error) {
	exam, err := s.store.GetExam(ctx, s.ExamID)
	if err != nil {
		return nil, nil, nil, err
	}
	questions, err := s.store.GetExamQuestions(ctx, s.ExamID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(questions) == 0 {
		return nil, nil, nil, util.ErrNoQuestions
	}
	attempt, err := s.store.CreateAttempt(ctx, s.ExamID, len(questions))
	if err != nil {
		logger.Log.Error("create attempt failed",
			zap.String("session_id", s.ID), zap.String("exam_id", s.ExamID), zap.Error(err))
		return nil, nil, nil, err
	}
	if attempt == nil || attempt.ID == "" {
		return nil, nil, nil, util.ErrSubmissionRefused
	}
	return exam, questions, attempt, nil
}

// SelectAnswer records or overwrites the selection for one question. The pointer does not move.
// A blank selection clears the question.
func (s *AttemptSession) SelectAnswer(questionID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(StateInProgress); err != nil {
		return err
	}
	q := s.findQuestionLocked(questionID)
	if q == nil {
		return util.ErrUnknownQuestion
	}
	selected := util.NormalizeSelection(optionID)
	if selected == "" {
		delete(s.answers, questionID)
	} else {
		if q.FindOption(selected) == nil {
			return util.ErrUnknownOption
		}
		s.answers[questionID] = selected
	}
	s.touch()
	s.publishLocked()
	return nil
}

// Navigate moves the pointer to any question in range. Answers are untouched.
func (s *AttemptSession) Navigate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(StateInProgress); err != nil {
		return err
	}
	if index < 0 || index >= len(s.questions) {
		return util.ErrQuestionIndexOutOfRange
	}
	s.current = index
	s.touch()
	s.publishLocked()
	return nil
}

// Submit grades every question and sends the result in one call.
// Only one submission can be in flight; a failed one returns the session to in_progress with answers intact.
func (s *AttemptSession) Submit(ctx context.Context, trigger string) (*SubmissionResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, util.ErrSessionNotFound
	}
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return nil, util.ErrSubmissionInFlight
	case StateCompleted:
		s.mu.Unlock()
		return nil, util.ErrAttemptCompleted
	case StateInProgress:
	default:
		s.mu.Unlock()
		return nil, util.ErrInvalidState
	}
	if s.attempt == nil || s.attempt.ID == "" || len(s.questions) == 0 || s.startedAt.IsZero() {
		s.mu.Unlock()
		return nil, util.ErrSubmissionRefused
	}

	graded, correct := GradeAnswers(s.questions, s.answers)
	attemptID := s.attempt.ID
	total := len(s.questions)
	elapsed := int(s.now().Sub(s.startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	s.state = StateSubmitting
	s.lastErr = nil
	s.touch()
	s.publishLocked()
	s.mu.Unlock()

	res, err := s.store.SubmitAttempt(ctx, attemptID, graded, elapsed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateInProgress
		s.lastErr = err
		monitoring.SubmissionFailures.Inc()
		logger.Log.Warn("submission failed, attempt kept in progress",
			zap.String("session_id", s.ID),
			zap.String("attempt_id", attemptID),
			zap.String("trigger", trigger),
			zap.Error(err))
		s.publishLocked()
		return nil, err
	}

	if res == nil {
		res = &SubmissionResult{
			Score:          util.ScorePercent(correct, total),
			CorrectAnswers: correct,
			TotalQuestions: total,
		}
	}
	s.result = res
	s.state = StateCompleted
	s.stopTimerLocked()
	monitoring.AttemptsSubmitted.WithLabelValues(trigger).Inc()
	s.publishLocked()

	logger.Log.Info("attempt submitted",
		zap.String("session_id", s.ID),
		zap.String("attempt_id", attemptID),
		zap.String("trigger", trigger),
		zap.Int("score", res.Score),
		zap.Int("time_taken_seconds", elapsed))
	return res, nil
}

// Retake discards everything local and starts over with a brand-new attempt.
func (s *AttemptSession) Retake(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireLocked(StateCompleted); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetLocked()
	s.mu.Unlock()
	return s.Start(ctx)
}

func (s *AttemptSession) resetLocked() {
	s.stopTimerLocked()
	s.state = StateInitializing
	s.exam = nil
	s.questions = nil
	s.attempt = nil
	s.current = 0
	s.answers = make(map[string]string)
	s.remaining = 0
	s.startedAt = time.Time{}
	s.result = nil
	s.lastErr = nil
}

// Close stops the countdown and releases observers. An unsubmitted attempt is left open.
func (s *AttemptSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *AttemptSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *AttemptSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IdleSince reports the last time the session was used.
func (s *AttemptSession) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *AttemptSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots, one per tick and per transition.
// Slow readers miss frames. The channel is closed by the returned func or when the session closes.
func (s *AttemptSession) Subscribe() (<-chan SessionSnapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan SessionSnapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

func (s *AttemptSession) requireLocked(want SessionState) error {
	if s.closed {
		return util.ErrSessionNotFound
	}
	if s.state != want {
		return util.ErrInvalidState
	}
	return nil
}

func (s *AttemptSession) findQuestionLocked(id string) *model.Question {
	for i := range s.questions {
		if s.questions[i].ID == id {
			return &s.questions[i]
		}
	}
	return nil
}

func (s *AttemptSession) touch() {
	s.lastActive = s.now()
}

func (s *AttemptSession) answeredLocked(questionID string) bool {
	return util.NormalizeSelection(s.answers[questionID]) != ""
}

func (s *AttemptSession) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		ID:               s.ID,
		State:            s.state,
		ExamID:           s.ExamID,
		CurrentIndex:     s.current,
		TotalQuestions:   len(s.questions),
		RemainingSeconds: s.remaining,
		Answered:         make([]bool, len(s.questions)),
	}
	if s.exam != nil {
		snap.ExamTitle = s.exam.Title
	}
	if s.attempt != nil {
		snap.AttemptID = s.attempt.ID
	}
	for i := range s.questions {
		if s.answeredLocked(s.questions[i].ID) {
			snap.Answered[i] = true
			snap.AnsweredCount++
		}
	}
	if s.current < len(s.questions) {
		q := &s.questions[s.current]
		view := &QuestionView{
			ID:               q.ID,
			Index:            s.current,
			Text:             q.Text,
			Options:          make([]OptionView, 0, len(q.Options)),
			SelectedOptionID: s.answers[q.ID],
		}
		for _, o := range q.Options {
			view.Options = append(view.Options, OptionView{ID: o.ID, Letter: o.Letter(), Text: o.Text})
		}
		snap.Current = view
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

func (s *AttemptSession) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale frame and keep the newest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *AttemptSession) startTimerLocked() {
	s.stopTimerLocked()
	stop := make(chan struct{})
	s.stopTimer = stop
	go s.runTimer(stop)
}

func (s *AttemptSession) stopTimerLocked() {
	if s.stopTimer != nil {
		close(s.stopTimer)
		s.stopTimer = nil
	}
}

func (s *AttemptSession) runTimer(stop <-chan struct{}) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances the countdown by one second. Reaching zero submits with the timeout trigger.
func (s *AttemptSession) tick() {
	s.mu.Lock()
	if s.closed || s.state != StateInProgress || s.remaining <= 0 {
		s.mu.Unlock()
		return
	}
	s.remaining--
	expired := s.remaining == 0
	s.publishLocked()
	s.mu.Unlock()

	if !expired {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	if _, err := s.Submit(ctx, util.SubmitTriggerTimeout); err != nil &&
		!errors.Is(err, util.ErrSubmissionInFlight) && !errors.Is(err, util.ErrAttemptCompleted) {
		logger.Log.Warn("auto-submit on expiry failed",
			zap.String("session_id", s.ID), zap.Error(err))
	}
}
