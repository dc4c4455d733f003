package repository

import (
	"context"
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at asc, title asc").
		Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) ListAll(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.WithContext(ctx).Order("created_at asc, title asc").Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) FindByID(ctx context.Context, id string) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).First(&exam, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) FindByTitle(ctx context.Context, title string) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).Where("title = ?", title).First(&exam).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

// ListQuestions returns the exam's questions and their options, both sorted by position.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Options", orderedOptions).
		Where("exam_id = ?", examID).
		Order("position asc, created_at asc").
		Find(&qs).Error
	return qs, err
}

func (r *ExamRepository) FindQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var qs []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Options", orderedOptions).
		Where("id IN ?", ids).
		Find(&qs).Error
	return qs, err
}

// CreateExam inserts the exam and its nested questions/options in one transaction.
func (r *ExamRepository) CreateExam(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exam.TotalQuestions = len(questions)
		if err := tx.Create(exam).Error; err != nil {
			return err
		}
		for i := range questions {
			questions[i].ExamID = exam.ID
			if err := tx.Create(&questions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ExamRepository) UpdateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Omit("Options").Save(q).Error
}

func (r *ExamRepository) DeleteQuestion(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.AnswerOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Question{}, "id = ?", id).Error
	})
}
