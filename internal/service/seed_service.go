package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type SeedOption struct {
	Text    string `yaml:"text" validate:"required"`
	Correct bool   `yaml:"correct"`
}

type SeedQuestion struct {
	Text        string       `yaml:"text" validate:"required"`
	Explanation string       `yaml:"explanation"`
	Options     []SeedOption `yaml:"options" validate:"required,min=2,dive"`
}

type SeedExam struct {
	Title           string         `yaml:"title" validate:"required,max=255"`
	Description     string         `yaml:"description"`
	DurationMinutes int            `yaml:"duration_minutes" validate:"gte=0"`
	Active          *bool          `yaml:"active"`
	Questions       []SeedQuestion `yaml:"questions" validate:"required,min=1,dive"`
}

type SeedFile struct {
	Exams []SeedExam `yaml:"exams" validate:"required,min=1,dive"`
}

type SeedReport struct {
	Imported int
	Skipped  int
	Warnings []string
}

// SeedService imports exam catalogues from YAML. Exams are matched by title; existing ones are left alone.
type SeedService struct {
	Exams    *repository.ExamRepository
	validate *validator.Validate
}

func NewSeedService(exams *repository.ExamRepository) *SeedService {
	return &SeedService{Exams: exams, validate: validator.New()}
}

func (s *SeedService) ImportFile(ctx context.Context, path string) (*SeedReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return s.Import(ctx, raw)
}

// Parse decodes and validates a catalogue without touching the store.
func (s *SeedService) Parse(raw []byte) (*SeedFile, []string, error) {
	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := s.validate.Struct(file); err != nil {
		return nil, nil, fmt.Errorf("invalid seed file: %w", err)
	}

	var warnings []string
	for _, se := range file.Exams {
		warnings = append(warnings, correctnessWarnings(se)...)
	}
	return &file, warnings, nil
}

func (s *SeedService) Import(ctx context.Context, raw []byte) (*SeedReport, error) {
	file, _, err := s.Parse(raw)
	if err != nil {
		return nil, err
	}

	report := &SeedReport{}
	for _, se := range file.Exams {
		if _, err := s.Exams.FindByTitle(ctx, se.Title); err == nil {
			report.Skipped++
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return report, err
		}

		report.Warnings = append(report.Warnings, correctnessWarnings(se)...)
		exam, questions := se.toModel()
		if err := s.Exams.CreateExam(ctx, exam, questions); err != nil {
			return report, fmt.Errorf("import %q: %w", se.Title, err)
		}
		report.Imported++
		logger.Log.Info("exam imported",
			zap.String("exam_id", exam.ID), zap.String("title", exam.Title), zap.Int("questions", len(questions)))
	}

	for _, w := range report.Warnings {
		logger.Log.Warn("seed data warning", zap.String("detail", w))
	}
	return report, nil
}

// correctnessWarnings flags questions without exactly one correct option. They are imported anyway.
func correctnessWarnings(se SeedExam) []string {
	var out []string
	for i, q := range se.Questions {
		n := 0
		for _, o := range q.Options {
			if o.Correct {
				n++
			}
		}
		if n != 1 {
			out = append(out, fmt.Sprintf("%s: question %d has %d correct options", se.Title, i+1, n))
		}
	}
	return out
}

func (se SeedExam) toModel() (*model.Exam, []model.Question) {
	active := true
	if se.Active != nil {
		active = *se.Active
	}
	exam := &model.Exam{
		Title:           se.Title,
		Description:     se.Description,
		DurationMinutes: se.DurationMinutes,
		IsActive:        active,
	}
	questions := make([]model.Question, 0, len(se.Questions))
	for i, sq := range se.Questions {
		q := model.Question{
			Text:        sq.Text,
			Explanation: sq.Explanation,
			Position:    i,
			Options:     make([]model.AnswerOption, 0, len(sq.Options)),
		}
		for j, so := range sq.Options {
			q.Options = append(q.Options, model.AnswerOption{
				Text:      so.Text,
				Position:  j,
				IsCorrect: so.Correct,
			})
		}
		questions = append(questions, q)
	}
	return exam, questions
}
