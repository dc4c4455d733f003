package service

import (
	"context"
	"exam_prep_backend/internal/model"
)

const (
	ExamStatusNotAttempted = "not_attempted"
	ExamStatusCompleted    = "completed"
)

type DashboardExam struct {
	Exam       model.Exam     `json:"exam"`
	Status     string         `json:"status"`
	InProgress bool           `json:"inProgress"`
	Latest     *LatestAttempt `json:"latest,omitempty"`
}

type DashboardService struct {
	Exams *ExamService
}

func NewDashboardService(exams *ExamService) *DashboardService {
	return &DashboardService{Exams: exams}
}

// GetDashboard lists the active exams with the user's status on each. Only the most recently completed attempt
// of an exam is surfaced; older ones stay in the history.
func (s *DashboardService) GetDashboard(ctx context.Context, userID uint) ([]DashboardExam, error) {
	exams, err := s.Exams.ListActiveExams(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.Exams.GetLatestCompletedAttemptPerExam(ctx, userID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.Exams.ListUserAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}

	open := make(map[string]bool)
	for _, a := range attempts {
		if !a.IsCompleted && a.AbandonedAt == nil {
			open[a.ExamID] = true
		}
	}

	out := make([]DashboardExam, 0, len(exams))
	for _, e := range exams {
		item := DashboardExam{
			Exam:       e,
			Status:     ExamStatusNotAttempted,
			InProgress: open[e.ID],
		}
		if la, ok := latest[e.ID]; ok {
			la := la
			item.Status = ExamStatusCompleted
			item.Latest = &la
		}
		out = append(out, item)
	}
	return out, nil
}
