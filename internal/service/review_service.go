package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"sort"
)

type ReviewOption struct {
	ID        string `json:"id"`
	Letter    string `json:"letter"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Selected  bool   `json:"selected"`
}

// ReviewItem is one expandable card of the review.
type ReviewItem struct {
	Number         int            `json:"number"`
	QuestionID     string         `json:"questionId"`
	QuestionText   string         `json:"questionText"`
	Options        []ReviewOption `json:"options"`
	Answered       bool           `json:"answered"`
	SelectedLetter string         `json:"selectedLetter,omitempty"`
	SelectedText   string         `json:"selectedText,omitempty"`
	CorrectLetter  string         `json:"correctLetter,omitempty"`
	CorrectText    string         `json:"correctText,omitempty"`
	IsCorrect      bool           `json:"isCorrect"`
	ShowCorrect    bool           `json:"showCorrect"`
	Explanation    string         `json:"explanation,omitempty"`
}

type ReviewSummary struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type AttemptReview struct {
	Attempt model.Attempt `json:"attempt"`
	Items   []ReviewItem  `json:"items"`
	Summary ReviewSummary `json:"summary"`
}

type ReviewService struct {
	Exams *ExamService
}

func NewReviewService(exams *ExamService) *ReviewService {
	return &ReviewService{Exams: exams}
}

// GetReview projects a completed attempt's stored answers into review cards.
// Nothing is regraded against the live exam, so the summary always matches what was stored at submission.
func (s *ReviewService) GetReview(ctx context.Context, userID uint, attemptID string) (*AttemptReview, error) {
	attempt, err := s.Exams.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsCompleted {
		return nil, util.ErrInvalidState
	}
	answers, err := s.Exams.GetAnswersForAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	items, summary := BuildReview(answers)
	return &AttemptReview{Attempt: *attempt, Items: items, Summary: summary}, nil
}

// BuildReview turns joined answer rows into review items plus a summary computed from the rows alone.
func BuildReview(answers []model.AnswerWithQuestion) ([]ReviewItem, ReviewSummary) {
	items := make([]ReviewItem, 0, len(answers))
	correct := 0
	for i, a := range answers {
		item := reviewItem(a)
		item.Number = i + 1
		if item.IsCorrect {
			correct++
		}
		items = append(items, item)
	}
	return items, ReviewSummary{
		Correct:    correct,
		Total:      len(answers),
		Percentage: util.ScorePercent(correct, len(answers)),
	}
}

func reviewItem(a model.AnswerWithQuestion) ReviewItem {
	snap := questionAsAnswered(a)
	selected := ""
	if a.SelectedOptionID != nil {
		selected = util.NormalizeSelection(*a.SelectedOptionID)
	}

	item := ReviewItem{
		QuestionID:   a.QuestionID,
		QuestionText: snap.Text,
		Explanation:  snap.Explanation,
		IsCorrect:    a.IsCorrect,
		Options:      make([]ReviewOption, 0, len(snap.Options)),
	}

	opts := append([]model.OptionSnapshot(nil), snap.Options...)
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Position < opts[j].Position })
	for _, o := range opts {
		letter := model.OptionLetter(o.Position)
		ro := ReviewOption{ID: o.ID, Letter: letter, Text: o.Text, IsCorrect: o.IsCorrect, Selected: o.ID == selected}
		if ro.Selected {
			item.Answered = true
			item.SelectedLetter = letter
			item.SelectedText = o.Text
		}
		if o.IsCorrect && item.CorrectLetter == "" {
			item.CorrectLetter = letter
			item.CorrectText = o.Text
		}
		item.Options = append(item.Options, ro)
	}
	item.ShowCorrect = !item.IsCorrect && item.CorrectLetter != ""
	return item
}

// questionAsAnswered prefers the snapshot taken at submission and falls back to the live question.
func questionAsAnswered(a model.AnswerWithQuestion) model.QuestionSnapshot {
	if snap, err := a.Snapshot(); err == nil {
		return snap
	}
	if a.Question != nil {
		return model.NewQuestionSnapshot(a.Question)
	}
	return model.QuestionSnapshot{}
}
