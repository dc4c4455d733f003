package model

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// swagger:model Attempt
type Attempt struct {
	UUIDBase
	UserID           uint       `gorm:"index;not null" json:"userId"`
	ExamID           string     `gorm:"index;type:varchar(36);not null" json:"examId"`
	TotalQuestions   int        `gorm:"default:0" json:"totalQuestions"`
	IsCompleted      bool       `gorm:"default:false;index" json:"isCompleted"`
	Score            *int       `json:"score"`
	CorrectAnswers   *int       `json:"correctAnswers"`
	TimeTakenSeconds *int       `json:"timeTakenSeconds"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `gorm:"index" json:"completedAt"`
	AbandonedAt      *time.Time `json:"abandonedAt,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// Answer is written once, at submission, and never updated.
// swagger:model Answer
type Answer struct {
	UUIDBase
	AttemptID        string         `gorm:"index;type:varchar(36);not null" json:"attemptId"`
	QuestionID       string         `gorm:"index;type:varchar(36);not null" json:"questionId"`
	SelectedOptionID *string        `gorm:"type:varchar(36)" json:"selectedOptionId"`
	IsCorrect        bool           `gorm:"default:false" json:"isCorrect"`
	AnsweredAt       time.Time      `json:"answeredAt"`
	QuestionSnapshot datatypes.JSON `json:"questionSnapshot,omitempty"`
}

func (Answer) TableName() string {
	return "answers"
}

var errNoSnapshot = errors.New("answer has no question snapshot")

// Snapshot decodes the question as it was at submission time.
func (a Answer) Snapshot() (QuestionSnapshot, error) {
	var snap QuestionSnapshot
	if len(a.QuestionSnapshot) == 0 {
		return snap, errNoSnapshot
	}
	err := json.Unmarshal(a.QuestionSnapshot, &snap)
	return snap, err
}

func (a *Answer) SetSnapshot(q *Question) error {
	raw, err := json.Marshal(NewQuestionSnapshot(q))
	if err != nil {
		return err
	}
	a.QuestionSnapshot = raw
	return nil
}

// QuestionSnapshot freezes what the user saw so reviews survive later edits to the exam.
type QuestionSnapshot struct {
	Text        string           `json:"text"`
	Explanation string           `json:"explanation,omitempty"`
	Position    int              `json:"position"`
	Options     []OptionSnapshot `json:"options"`
}

type OptionSnapshot struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
	IsCorrect bool   `json:"isCorrect"`
}

func NewQuestionSnapshot(q *Question) QuestionSnapshot {
	snap := QuestionSnapshot{
		Text:        q.Text,
		Explanation: q.Explanation,
		Position:    q.Position,
		Options:     make([]OptionSnapshot, 0, len(q.Options)),
	}
	for _, o := range q.Options {
		snap.Options = append(snap.Options, OptionSnapshot{
			ID:        o.ID,
			Text:      o.Text,
			Position:  o.Position,
			IsCorrect: o.IsCorrect,
		})
	}
	return snap
}

// AnswerWithQuestion is an Answer joined with its live Question (and options), if the question still exists.
type AnswerWithQuestion struct {
	Answer
	Question *Question `json:"question,omitempty"`
}
