package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/pkg/cache"
	"exam_prep_backend/pkg/database"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type testEnv struct {
	db    *gorm.DB
	cache *cache.MemoryStore
	exams *ExamService
	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:    db,
		cache: cache.NewMemoryStore(),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.exams = NewExamService(repository.NewExamRepository(db), repository.NewAttemptRepository(db), env.cache, time.Minute)
	env.exams.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

// createExam stores an exam whose i-th question has three options with the correct one at correct[i].
func (e *testEnv) createExam(t *testing.T, title string, correct ...int) (*model.Exam, []model.Question) {
	t.Helper()
	exam := &model.Exam{Title: title, DurationMinutes: 15, IsActive: true}
	questions := make([]model.Question, 0, len(correct))
	for i, c := range correct {
		q := model.Question{
			Text:        fmt.Sprintf("%s question %d", title, i+1),
			Explanation: fmt.Sprintf("because %d", i+1),
			Position:    i,
		}
		for j := 0; j < 3; j++ {
			q.Options = append(q.Options, model.AnswerOption{
				Text:      fmt.Sprintf("option %d", j),
				Position:  j,
				IsCorrect: j == c,
			})
		}
		questions = append(questions, q)
	}
	require.NoError(t, e.exams.Exams.CreateExam(context.Background(), exam, questions))
	stored, err := e.exams.Exams.ListQuestions(context.Background(), exam.ID)
	require.NoError(t, err)
	return exam, stored
}

func optionAt(q model.Question, pos int) string {
	for _, o := range q.Options {
		if o.Position == pos {
			return o.ID
		}
	}
	return ""
}

func correctOf(q model.Question) string {
	return q.CorrectOption().ID
}

func wrongOf(q model.Question) string {
	for _, o := range q.Options {
		if !o.IsCorrect {
			return o.ID
		}
	}
	return ""
}

// submitCompleted creates and submits an attempt with the given selections, advancing the clock in between.
func (e *testEnv) submitCompleted(t *testing.T, userID uint, exam *model.Exam, selections map[string]string) (*model.Attempt, *SubmissionResult) {
	t.Helper()
	ctx := context.Background()
	attempt, err := e.exams.CreateAttempt(ctx, userID, exam.ID, exam.TotalQuestions)
	require.NoError(t, err)
	e.advance(90 * time.Second)

	answers := make([]AnswerSubmission, 0, len(selections))
	for qid, oid := range selections {
		answers = append(answers, AnswerSubmission{QuestionID: qid, SelectedOptionID: oid})
	}
	res, err := e.exams.SubmitAttempt(ctx, userID, attempt.ID, answers, 90)
	require.NoError(t, err)
	e.advance(time.Minute)
	return attempt, res
}

// fakeStore is an in-memory AttemptStore for driving sessions without a database.
type fakeStore struct {
	mu        sync.Mutex
	exam      *model.Exam
	questions []model.Question
	created   []*model.Attempt
	submits   []fakeSubmit

	createErr error
	submitErr error
	nilResult bool

	// When set, SubmitAttempt signals entered and waits on release.
	entered chan struct{}
	release chan struct{}
}

type fakeSubmit struct {
	attemptID string
	answers   []AnswerSubmission
	timeTaken int
}

func newFakeStore(durationMinutes int, correct ...int) *fakeStore {
	fs := &fakeStore{exam: &model.Exam{Title: "Fake", DurationMinutes: durationMinutes, IsActive: true}}
	fs.exam.ID = "exam-1"
	for i, c := range correct {
		q := model.Question{ExamID: fs.exam.ID, Text: fmt.Sprintf("Q%d", i+1), Position: i}
		q.ID = fmt.Sprintf("q%d", i+1)
		for j := 0; j < 3; j++ {
			o := model.AnswerOption{QuestionID: q.ID, Text: fmt.Sprintf("opt %d", j), Position: j, IsCorrect: j == c}
			o.ID = fmt.Sprintf("q%d-o%d", i+1, j)
			q.Options = append(q.Options, o)
		}
		fs.questions = append(fs.questions, q)
	}
	fs.exam.TotalQuestions = len(fs.questions)
	return fs
}

func (f *fakeStore) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return f.exam, nil
}

func (f *fakeStore) GetExamQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	return f.questions, nil
}

func (f *fakeStore) CreateAttempt(ctx context.Context, examID string, totalQuestions int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	a := &model.Attempt{ExamID: examID, TotalQuestions: totalQuestions}
	a.ID = fmt.Sprintf("attempt-%d", len(f.created)+1)
	f.created = append(f.created, a)
	return a, nil
}

func (f *fakeStore) SubmitAttempt(ctx context.Context, attemptID string, answers []AnswerSubmission, timeTakenSeconds int) (*SubmissionResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, fakeSubmit{attemptID: attemptID, answers: answers, timeTaken: timeTakenSeconds})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.nilResult {
		return nil, nil
	}
	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	return &SubmissionResult{Score: 100 * correct / len(answers), CorrectAnswers: correct, TotalQuestions: len(answers)}, nil
}

func (f *fakeStore) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

// newIdleSession returns a session whose ticker never fires on its own; tests drive tick() directly.
func newIdleSession(store AttemptStore, policy SessionPolicy) *AttemptSession {
	s := NewAttemptSession(1, "exam-1", store, policy)
	s.tickInterval = time.Hour
	return s
}
