package repository

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"sort"
	"time"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) FindForUser(ctx context.Context, id string, userID uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CompletionUpdate holds the fields written when an attempt is submitted.
type CompletionUpdate struct {
	Score            int
	CorrectAnswers   int
	TimeTakenSeconds int
	CompletedAt      time.Time
}

// Complete marks the attempt completed and appends its answers in one transaction.
// The completion flag is flipped with a conditional update, so of two racing submissions only one wins;
// the loser gets util.ErrAttemptCompleted and nothing is written.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID string, upd CompletionUpdate, answers []model.Answer) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND is_completed = ?", attemptID, false).
			Updates(map[string]interface{}{
				"is_completed":       true,
				"score":              upd.Score,
				"correct_answers":    upd.CorrectAnswers,
				"time_taken_seconds": upd.TimeTakenSeconds,
				"completed_at":       upd.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.Attempt{}).Where("id = ?", attemptID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return util.ErrAttemptNotFound
			}
			return util.ErrAttemptCompleted
		}

		if len(answers) == 0 {
			return nil
		}
		for i := range answers {
			answers[i].AttemptID = attemptID
		}
		return tx.CreateInBatches(&answers, 100).Error
	})
}

func (r *AttemptRepository) ListByUser(ctx context.Context, userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at desc").
		Find(&attempts).Error
	return attempts, err
}

// ListCompletedByUser is ordered by completion time, newest first.
func (r *AttemptRepository) ListCompletedByUser(ctx context.Context, userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND is_completed = ?", userID, true).
		Order("completed_at desc").
		Find(&attempts).Error
	return attempts, err
}

// ListAnswers joins each stored answer with its live question, ordered by question position.
// Answers whose question no longer exists keep a nil Question and sort by their snapshot position.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID string) ([]model.AnswerWithQuestion, error) {
	var answers []model.Answer
	if err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).Find(&answers).Error; err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return []model.AnswerWithQuestion{}, nil
	}

	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}

	var qs []model.Question
	if err := r.DB.WithContext(ctx).
		Preload("Options", orderedOptions).
		Where("id IN ?", ids).
		Find(&qs).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Question, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
	}

	out := make([]model.AnswerWithQuestion, len(answers))
	for i, a := range answers {
		out[i] = model.AnswerWithQuestion{Answer: a, Question: byID[a.QuestionID]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return answerPosition(out[i]) < answerPosition(out[j])
	})
	return out, nil
}

func answerPosition(a model.AnswerWithQuestion) int {
	if a.Question != nil {
		return a.Question.Position
	}
	if snap, err := a.Snapshot(); err == nil {
		return snap.Position
	}
	return 0
}

// DeleteByUserAndExam removes every attempt of the user for the exam and all of their answers.
// It returns the ids of the deleted attempts.
func (r *AttemptRepository) DeleteByUserAndExam(ctx context.Context, userID uint, examID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Attempt{}).
			Where("user_id = ? AND exam_id = ?", userID, examID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("attempt_id IN ?", ids).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Attempt{}).Error
	})
	return ids, err
}

// MarkAbandoned stamps abandoned_at on open attempts started before cutoff and returns the owners it touched.
func (r *AttemptRepository) MarkAbandoned(ctx context.Context, cutoff, now time.Time) (int64, []uint, error) {
	var userIDs []uint
	var marked int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := func() *gorm.DB {
			return tx.Model(&model.Attempt{}).
				Where("is_completed = ? AND abandoned_at IS NULL AND started_at < ?", false, cutoff)
		}
		if err := scope().Distinct("user_id").Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}
		res := scope().Update("abandoned_at", now)
		marked = res.RowsAffected
		return res.Error
	})
	return marked, userIDs, err
}
