package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/cache"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/tracing"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AnswerSubmission is one per-question entry of a submission.
type AnswerSubmission struct {
	QuestionID       string `json:"questionId" binding:"required"`
	SelectedOptionID string `json:"selectedOptionId"`
	IsCorrect        bool   `json:"isCorrect"`
}

type SubmitAttemptReq struct {
	Answers          []AnswerSubmission `json:"answers" binding:"dive"`
	TimeTakenSeconds int                `json:"timeTakenSeconds" binding:"min=0"`
}

type SubmissionResult struct {
	Score          int `json:"score"`
	CorrectAnswers int `json:"correctAnswers"`
	TotalQuestions int `json:"totalQuestions"`
}

type LatestAttempt struct {
	AttemptID      string    `json:"attemptId"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedAt    time.Time `json:"completedAt"`
}

type ResetResult struct {
	DeletedAttemptCount int `json:"deletedAttemptCount"`
}

// ExamService is the data access layer: typed queries and mutations over the exam store,
// memoized per (entity, parameters) and invalidated explicitly after every mutation.
type ExamService struct {
	Exams    *repository.ExamRepository
	Attempts *repository.AttemptRepository
	Cache    cache.Store
	TTL      time.Duration

	now func() time.Time
}

func NewExamService(exams *repository.ExamRepository, attempts *repository.AttemptRepository, store cache.Store, ttl time.Duration) *ExamService {
	return &ExamService{
		Exams:    exams,
		Attempts: attempts,
		Cache:    store,
		TTL:      ttl,
		now:      time.Now,
	}
}

func keyActiveExams() string {
	return cache.Key("exams", "active")
}

func keyAllExams() string {
	return cache.Key("exams", "all")
}

func keyExam(id string) string {
	return cache.Key("exam", id)
}

func keyExamQuestions(id string) string {
	return cache.Key("exam", id, "questions")
}

func keyUserAttempts(userID uint) string {
	return cache.Key("user", strconv.FormatUint(uint64(userID), 10), "attempts")
}

func keyUserLatest(userID uint) string {
	return cache.Key("user", strconv.FormatUint(uint64(userID), 10), "latest")
}

func keyAttemptAnswers(id string) string {
	return cache.Key("attempt", id, "answers")
}

func (s *ExamService) invalidate(ctx context.Context, keys ...string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, keys...); err != nil {
		logger.Log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *ExamService) ListActiveExams(ctx context.Context) ([]model.Exam, error) {
	return cache.Remember(ctx, s.Cache, keyActiveExams(), s.TTL, func() ([]model.Exam, error) {
		return s.Exams.ListActive(ctx)
	})
}

func (s *ExamService) ListAllExams(ctx context.Context) ([]model.Exam, error) {
	return cache.Remember(ctx, s.Cache, keyAllExams(), s.TTL, func() ([]model.Exam, error) {
		return s.Exams.ListAll(ctx)
	})
}

func (s *ExamService) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	exam, err := cache.Remember(ctx, s.Cache, keyExam(examID), s.TTL, func() (*model.Exam, error) {
		return s.Exams.FindByID(ctx, examID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	return exam, err
}

// GetExamQuestions returns the questions with nested options, both ordered by position.
func (s *ExamService) GetExamQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	if _, err := s.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return cache.Remember(ctx, s.Cache, keyExamQuestions(examID), s.TTL, func() ([]model.Question, error) {
		return s.Exams.ListQuestions(ctx, examID)
	})
}

// CreateAttempt opens an uncompleted attempt stamped with the question count known to the caller.
func (s *ExamService) CreateAttempt(ctx context.Context, userID uint, examID string, totalQuestions int) (*model.Attempt, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, util.ErrExamNotFound
	}
	if totalQuestions <= 0 {
		qs, err := s.GetExamQuestions(ctx, examID)
		if err != nil {
			return nil, err
		}
		totalQuestions = len(qs)
	}

	attempt := &model.Attempt{
		UserID:         userID,
		ExamID:         examID,
		TotalQuestions: totalQuestions,
		IsCompleted:    false,
		StartedAt:      s.now(),
	}
	if err := s.Attempts.Create(ctx, attempt); err != nil {
		logger.Log.Error("create attempt failed",
			zap.Uint("user_id", userID), zap.String("exam_id", examID), zap.Error(err))
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	monitoring.AttemptsStarted.Inc()
	s.invalidate(ctx, keyUserAttempts(userID))
	return attempt, nil
}

// GradeAnswers scores every question of the exam against the given selections.
// Missing, blank or foreign selections count as unanswered and incorrect; the result has one entry per question, in order.
func GradeAnswers(questions []model.Question, selections map[string]string) ([]AnswerSubmission, int) {
	results := make([]AnswerSubmission, 0, len(questions))
	correct := 0
	for i := range questions {
		q := &questions[i]
		selected := util.NormalizeSelection(selections[q.ID])
		if selected != "" && q.FindOption(selected) == nil {
			selected = ""
		}
		isCorrect := false
		if selected != "" {
			if opt := q.CorrectOption(); opt != nil && opt.ID == selected {
				isCorrect = true
			}
		}
		if isCorrect {
			correct++
		}
		results = append(results, AnswerSubmission{
			QuestionID:       q.ID,
			SelectedOptionID: selected,
			IsCorrect:        isCorrect,
		})
	}
	return results, correct
}

// SubmitAttempt completes the attempt and writes one Answer row per exam question in a single transaction.
// Correctness is re-derived from the stored options; the caller's isCorrect flags are advisory.
func (s *ExamService) SubmitAttempt(ctx context.Context, userID uint, attemptID string, answers []AnswerSubmission, timeTakenSeconds int) (*SubmissionResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ExamService.SubmitAttempt")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attemptID), attribute.Int("answers.count", len(answers)))

	attempt, err := s.Attempts.FindForUser(ctx, attemptID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if attempt.IsCompleted {
		return nil, util.ErrAttemptCompleted
	}

	questions, err := s.Exams.ListQuestions(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	selections := make(map[string]string, len(answers))
	claimed := make(map[string]bool, len(answers))
	for _, a := range answers {
		selections[a.QuestionID] = a.SelectedOptionID
		claimed[a.QuestionID] = a.IsCorrect
	}

	graded, correct := GradeAnswers(questions, selections)
	now := s.now()
	rows := make([]model.Answer, 0, len(graded))
	for i, g := range graded {
		if claimed[g.QuestionID] != g.IsCorrect {
			logger.Log.Debug("client correctness disagrees with stored key",
				zap.String("attempt_id", attemptID), zap.String("question_id", g.QuestionID))
		}
		row := model.Answer{
			QuestionID: g.QuestionID,
			IsCorrect:  g.IsCorrect,
			AnsweredAt: now,
		}
		if g.SelectedOptionID != "" {
			row.SelectedOptionID = util.StringPtr(g.SelectedOptionID)
		}
		if err := row.SetSnapshot(&questions[i]); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	timeTakenSeconds = clampTimeTaken(timeTakenSeconds, attempt.StartedAt, now)
	result := &SubmissionResult{
		Score:          util.ScorePercent(correct, len(questions)),
		CorrectAnswers: correct,
		TotalQuestions: len(questions),
	}

	err = s.Attempts.Complete(ctx, attemptID, repository.CompletionUpdate{
		Score:            result.Score,
		CorrectAnswers:   result.CorrectAnswers,
		TimeTakenSeconds: timeTakenSeconds,
		CompletedAt:      now,
	}, rows)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, util.ErrAttemptCompleted) {
			logger.Log.Error("submit attempt failed",
				zap.Uint("user_id", userID), zap.String("attempt_id", attemptID), zap.Error(err))
		}
		return nil, err
	}

	monitoring.AttemptScore.Observe(float64(result.Score))
	s.invalidate(ctx, keyUserAttempts(userID), keyUserLatest(userID), keyAttemptAnswers(attemptID))
	return result, nil
}

// clampTimeTaken bounds a client-reported duration by the wall time since the attempt started.
func clampTimeTaken(reported int, startedAt, now time.Time) int {
	elapsed := int(now.Sub(startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	if reported < 0 {
		return 0
	}
	if reported > elapsed {
		return elapsed
	}
	return reported
}

func (s *ExamService) ListUserAttempts(ctx context.Context, userID uint) ([]model.Attempt, error) {
	return cache.Remember(ctx, s.Cache, keyUserAttempts(userID), s.TTL, func() ([]model.Attempt, error) {
		return s.Attempts.ListByUser(ctx, userID)
	})
}

// GetLatestCompletedAttemptPerExam keeps only the most recently completed attempt of each exam.
func (s *ExamService) GetLatestCompletedAttemptPerExam(ctx context.Context, userID uint) (map[string]LatestAttempt, error) {
	return cache.Remember(ctx, s.Cache, keyUserLatest(userID), s.TTL, func() (map[string]LatestAttempt, error) {
		completed, err := s.Attempts.ListCompletedByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		latest := LatestPerExam(completed)
		out := make(map[string]LatestAttempt, len(latest))
		for examID, a := range latest {
			out[examID] = toLatestAttempt(a)
		}
		return out, nil
	})
}

func toLatestAttempt(a model.Attempt) LatestAttempt {
	la := LatestAttempt{
		AttemptID:      a.ID,
		TotalQuestions: a.TotalQuestions,
	}
	if a.Score != nil {
		la.Score = *a.Score
	}
	if a.CorrectAnswers != nil {
		la.CorrectAnswers = *a.CorrectAnswers
	}
	if a.CompletedAt != nil {
		la.CompletedAt = *a.CompletedAt
	}
	return la
}

// GetAnswersForAttempt returns the stored answers joined with their questions. Deleted attempts yield an empty list.
func (s *ExamService) GetAnswersForAttempt(ctx context.Context, userID uint, attemptID string) ([]model.AnswerWithQuestion, error) {
	if _, err := s.Attempts.FindForUser(ctx, attemptID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []model.AnswerWithQuestion{}, nil
		}
		return nil, err
	}
	return cache.Remember(ctx, s.Cache, keyAttemptAnswers(attemptID), s.TTL, func() ([]model.AnswerWithQuestion, error) {
		return s.Attempts.ListAnswers(ctx, attemptID)
	})
}

// GetAttempt returns one of the user's attempts.
func (s *ExamService) GetAttempt(ctx context.Context, userID uint, attemptID string) (*model.Attempt, error) {
	a, err := s.Attempts.FindForUser(ctx, attemptID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	return a, err
}

// ResetExam deletes every attempt (and answer) the user has for the exam.
func (s *ExamService) ResetExam(ctx context.Context, userID uint, examID string) (*ResetResult, error) {
	ids, err := s.Attempts.DeleteByUserAndExam(ctx, userID, examID)
	if err != nil {
		logger.Log.Error("reset exam failed",
			zap.Uint("user_id", userID), zap.String("exam_id", examID), zap.Error(err))
		return nil, fmt.Errorf("reset exam: %w", err)
	}

	keys := []string{keyUserAttempts(userID), keyUserLatest(userID)}
	for _, id := range ids {
		keys = append(keys, keyAttemptAnswers(id))
	}
	s.invalidate(ctx, keys...)
	monitoring.ExamResets.Inc()

	logger.Log.Info("exam reset",
		zap.Uint("user_id", userID), zap.String("exam_id", examID), zap.Int("deleted_attempts", len(ids)))
	return &ResetResult{DeletedAttemptCount: len(ids)}, nil
}

// InvalidateExam drops cached catalogue and question data, used after the exam content changes.
func (s *ExamService) InvalidateExam(ctx context.Context, examID string) {
	s.invalidate(ctx, keyActiveExams(), keyAllExams(), keyExam(examID), keyExamQuestions(examID))
}

// ForUser binds the service to one user so it can back an AttemptSession.
func (s *ExamService) ForUser(userID uint) AttemptStore {
	return &userAttemptStore{svc: s, userID: userID}
}

type userAttemptStore struct {
	svc    *ExamService
	userID uint
}

func (u *userAttemptStore) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return u.svc.GetExam(ctx, examID)
}

func (u *userAttemptStore) GetExamQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	return u.svc.GetExamQuestions(ctx, examID)
}

func (u *userAttemptStore) CreateAttempt(ctx context.Context, examID string, totalQuestions int) (*model.Attempt, error) {
	return u.svc.CreateAttempt(ctx, u.userID, examID, totalQuestions)
}

func (u *userAttemptStore) SubmitAttempt(ctx context.Context, attemptID string, answers []AnswerSubmission, timeTakenSeconds int) (*SubmissionResult, error) {
	return u.svc.SubmitAttempt(ctx, u.userID, attemptID, answers, timeTakenSeconds)
}
