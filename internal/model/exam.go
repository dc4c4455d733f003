package model

// swagger:model Exam
type Exam struct {
	UUIDBase
	Title           string `gorm:"size:255;not null" json:"title"`
	Description     string `gorm:"type:text" json:"description,omitempty"`
	TotalQuestions  int    `gorm:"default:0" json:"totalQuestions"`
	DurationMinutes int    `gorm:"default:0" json:"durationMinutes"`
	IsActive        bool   `gorm:"not null;index" json:"isActive"`
}

func (Exam) TableName() string {
	return "exams"
}

// swagger:model Question
type Question struct {
	UUIDBase
	ExamID      string         `gorm:"index;type:varchar(36);not null" json:"examId"`
	Text        string         `gorm:"type:text;not null" json:"text"`
	Explanation string         `gorm:"type:text" json:"explanation,omitempty"`
	Position    int            `gorm:"default:0" json:"position"`
	Options     []AnswerOption `gorm:"foreignKey:QuestionID" json:"options"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectOption returns the first option flagged correct, or nil.
func (q *Question) CorrectOption() *AnswerOption {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}

func (q *Question) FindOption(id string) *AnswerOption {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// swagger:model AnswerOption
type AnswerOption struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36);not null" json:"questionId"`
	Text       string `gorm:"type:text;not null" json:"text"`
	Position   int    `gorm:"default:0" json:"position"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
}

func (AnswerOption) TableName() string {
	return "answer_options"
}

// Letter is the display letter for the option: position 0 is "A".
func (o AnswerOption) Letter() string {
	return OptionLetter(o.Position)
}

// OptionLetter maps a 0-based position to A, B, ... Z, AA, AB, ...
func OptionLetter(position int) string {
	if position < 0 {
		return ""
	}
	letter := ""
	for n := position; n >= 0; n = n/26 - 1 {
		letter = string(rune('A'+n%26)) + letter
	}
	return letter
}
