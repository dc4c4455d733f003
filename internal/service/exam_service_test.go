package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListActiveExamsHidesInactive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createExam(t, "Active", 0)
	hidden := &model.Exam{Title: "Draft", IsActive: false}
	require.NoError(t, env.exams.Exams.CreateExam(ctx, hidden, nil))

	active, err := env.exams.ListActiveExams(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Active", active[0].Title)

	all, err := env.exams.ListAllExams(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetExamQuestionsOrdersOptions(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.createExam(t, "Ordered", 2, 0)

	qs, err := env.exams.GetExamQuestions(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	for i, q := range qs {
		assert.Equal(t, i, q.Position)
		require.Len(t, q.Options, 3)
		for j, o := range q.Options {
			assert.Equal(t, j, o.Position)
		}
	}
	assert.Equal(t, "C", qs[0].CorrectOption().Letter())
	assert.Equal(t, "A", qs[1].CorrectOption().Letter())

	_, err = env.exams.GetExamQuestions(context.Background(), "missing")
	assert.ErrorIs(t, err, util.ErrExamNotFound)
}

func TestSubmitAttemptScoresPartialAnswers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Three", 0, 1, 2)

	attempt, err := env.exams.CreateAttempt(ctx, 7, exam.ID, len(qs))
	require.NoError(t, err)
	assert.False(t, attempt.IsCompleted)
	assert.Equal(t, 3, attempt.TotalQuestions)

	env.advance(time.Minute)
	res, err := env.exams.SubmitAttempt(ctx, 7, attempt.ID, []AnswerSubmission{
		{QuestionID: qs[0].ID, SelectedOptionID: correctOf(qs[0]), IsCorrect: true},
		{QuestionID: qs[1].ID, SelectedOptionID: wrongOf(qs[1])},
		{QuestionID: qs[2].ID, SelectedOptionID: "undefined"},
	}, 42)
	require.NoError(t, err)
	assert.Equal(t, SubmissionResult{Score: 33, CorrectAnswers: 1, TotalQuestions: 3}, *res)

	answers, err := env.exams.GetAnswersForAttempt(ctx, 7, attempt.ID)
	require.NoError(t, err)
	require.Len(t, answers, 3)
	assert.True(t, answers[0].IsCorrect)
	assert.False(t, answers[1].IsCorrect)
	assert.False(t, answers[2].IsCorrect)
	assert.Nil(t, answers[2].SelectedOptionID)

	stored, err := env.exams.GetAttempt(ctx, 7, attempt.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 33, *stored.Score)
	assert.Equal(t, 42, *stored.TimeTakenSeconds)
	assert.NotNil(t, stored.CompletedAt)
}

func TestSubmitAttemptAllCorrect(t *testing.T) {
	env := newTestEnv(t)
	exam, qs := env.createExam(t, "Perfect", 1, 1)

	attempt, res := env.submitCompleted(t, 3, exam, map[string]string{
		qs[0].ID: correctOf(qs[0]),
		qs[1].ID: correctOf(qs[1]),
	})
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 2, res.CorrectAnswers)

	stored, err := env.exams.GetAttempt(context.Background(), 3, attempt.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
	assert.NotNil(t, stored.CompletedAt)
}

func TestSubmitAttemptWritesOneAnswerPerQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Sparse", 0, 0, 0, 0)

	attempt, err := env.exams.CreateAttempt(ctx, 1, exam.ID, len(qs))
	require.NoError(t, err)
	_, err = env.exams.SubmitAttempt(ctx, 1, attempt.ID, []AnswerSubmission{
		{QuestionID: qs[3].ID, SelectedOptionID: correctOf(qs[3])},
		{QuestionID: "not-in-exam", SelectedOptionID: "x"},
	}, 5)
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&model.Answer{}).Where("attempt_id = ?", attempt.ID).Count(&count).Error)
	assert.Equal(t, int64(len(qs)), count)
}

func TestSubmitAttemptRederivesCorrectness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Honest", 0)

	attempt, err := env.exams.CreateAttempt(ctx, 1, exam.ID, 1)
	require.NoError(t, err)
	res, err := env.exams.SubmitAttempt(ctx, 1, attempt.ID, []AnswerSubmission{
		{QuestionID: qs[0].ID, SelectedOptionID: wrongOf(qs[0]), IsCorrect: true},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CorrectAnswers)
	assert.Equal(t, 0, res.Score)
}

func TestSubmitAttemptOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Once", 0)

	attempt, _ := env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0])})
	_, err := env.exams.SubmitAttempt(ctx, 1, attempt.ID, nil, 1)
	assert.ErrorIs(t, err, util.ErrAttemptCompleted)

	var count int64
	require.NoError(t, env.db.Model(&model.Answer{}).Where("attempt_id = ?", attempt.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAttemptsAreVisibleOnlyToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Private", 0)
	attempt, _ := env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0])})

	_, err := env.exams.SubmitAttempt(ctx, 2, attempt.ID, nil, 1)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)

	answers, err := env.exams.GetAnswersForAttempt(ctx, 2, attempt.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)

	_, err = env.exams.GetAttempt(ctx, 2, attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestCreateAttemptRejectsInactiveExam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := &model.Exam{Title: "Closed", IsActive: false}
	require.NoError(t, env.exams.Exams.CreateExam(ctx, exam, nil))

	_, err := env.exams.CreateAttempt(ctx, 1, exam.ID, 0)
	assert.ErrorIs(t, err, util.ErrExamNotFound)
}

func TestCreateAttemptInvalidatesUserAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.createExam(t, "Cached", 0)

	before, err := env.exams.ListUserAttempts(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, before)

	_, err = env.exams.CreateAttempt(ctx, 1, exam.ID, 1)
	require.NoError(t, err)

	after, err := env.exams.ListUserAttempts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestSubmitInvalidatesLatestAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Fresh", 0)

	latest, err := env.exams.GetLatestCompletedAttemptPerExam(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, latest)

	attempt, _ := env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0])})

	latest, err = env.exams.GetLatestCompletedAttemptPerExam(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, latest, exam.ID)
	assert.Equal(t, attempt.ID, latest[exam.ID].AttemptID)
	assert.Equal(t, 100, latest[exam.ID].Score)
}

func TestLatestCompletedAttemptPerExamPicksMostRecent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Twice", 0, 0)
	other, oqs := env.createExam(t, "Other", 1)

	env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0])})
	second, _ := env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0]), qs[1].ID: correctOf(qs[1])})
	env.submitCompleted(t, 1, other, map[string]string{oqs[0].ID: wrongOf(oqs[0])})
	_, err := env.exams.CreateAttempt(ctx, 1, exam.ID, 2)
	require.NoError(t, err)

	latest, err := env.exams.GetLatestCompletedAttemptPerExam(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, second.ID, latest[exam.ID].AttemptID)
	assert.Equal(t, 100, latest[exam.ID].Score)
	assert.Equal(t, 2, latest[exam.ID].TotalQuestions)
	assert.Equal(t, 0, latest[other.ID].Score)

	history, err := env.exams.ListUserAttempts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestResetExamDeletesEveryAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, qs := env.createExam(t, "Reset", 0, 1)
	other, oqs := env.createExam(t, "Keep", 0)

	first, _ := env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0])})
	second, _ := env.submitCompleted(t, 1, exam, map[string]string{qs[1].ID: correctOf(qs[1])})
	env.submitCompleted(t, 1, other, map[string]string{oqs[0].ID: correctOf(oqs[0])})
	env.submitCompleted(t, 2, exam, map[string]string{qs[0].ID: correctOf(qs[0])})

	// Warm the caches so the reset has to invalidate them.
	_, err := env.exams.GetAnswersForAttempt(ctx, 1, first.ID)
	require.NoError(t, err)
	_, err = env.exams.ListUserAttempts(ctx, 1)
	require.NoError(t, err)

	res, err := env.exams.ResetExam(ctx, 1, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedAttemptCount)

	history, err := env.exams.ListUserAttempts(ctx, 1)
	require.NoError(t, err)
	for _, a := range history {
		assert.NotEqual(t, exam.ID, a.ExamID)
	}
	assert.Len(t, history, 1)

	for _, id := range []string{first.ID, second.ID} {
		answers, err := env.exams.GetAnswersForAttempt(ctx, 1, id)
		require.NoError(t, err)
		assert.Empty(t, answers)
	}

	var orphaned int64
	require.NoError(t, env.db.Model(&model.Answer{}).Where("attempt_id IN ?", []string{first.ID, second.ID}).Count(&orphaned).Error)
	assert.Zero(t, orphaned)

	// Another user's history is untouched.
	theirs, err := env.exams.ListUserAttempts(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	latest, err := env.exams.GetLatestCompletedAttemptPerExam(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, latest, exam.ID)
}

func TestResetExamWithoutAttempts(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.createExam(t, "Untouched", 0)

	res, err := env.exams.ResetExam(context.Background(), 1, exam.ID)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedAttemptCount)
}

func TestGradeAnswers(t *testing.T) {
	fs := newFakeStore(0, 0, 1, 2)
	graded, correct := GradeAnswers(fs.questions, map[string]string{
		"q1": "q1-o0",
		"q2": "null",
		"q3": "q3-o1",
	})
	require.Len(t, graded, 3)
	assert.Equal(t, 1, correct)
	assert.True(t, graded[0].IsCorrect)
	assert.Equal(t, "", graded[1].SelectedOptionID)
	assert.False(t, graded[1].IsCorrect)
	assert.False(t, graded[2].IsCorrect)
}

func TestCreateAttemptStampsStartTime(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.createExam(t, "Clock", 0)

	a, err := env.exams.CreateAttempt(context.Background(), 1, exam.ID, 1)
	require.NoError(t, err)
	assert.WithinDuration(t, env.clock, a.StartedAt, time.Second)
}

func TestGradeAnswersIgnoresOptionsOfOtherQuestions(t *testing.T) {
	fs := newFakeStore(0, 0, 0)
	graded, correct := GradeAnswers(fs.questions, map[string]string{
		"q1": "q2-o0",
		"q2": "q2-o0",
	})
	assert.Equal(t, 1, correct)
	assert.Equal(t, "", graded[0].SelectedOptionID)
	assert.False(t, graded[0].IsCorrect)
	assert.Equal(t, "q2-o0", graded[1].SelectedOptionID)
}

func TestSubmitAttemptBoundsTimeTakenByElapsedTime(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam, qs := env.createExam(t, "Timed", 0, 1)

	tests := []struct {
		name     string
		reported int
		want     int
	}{
		{"within elapsed time", 30, 30},
		{"longer than the attempt has been open", 86400, 120},
		{"negative", -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempt, err := env.exams.CreateAttempt(ctx, 11, exam.ID, len(qs))
			require.NoError(t, err)
			env.advance(2 * time.Minute)

			_, err = env.exams.SubmitAttempt(ctx, 11, attempt.ID, []AnswerSubmission{
				{QuestionID: qs[0].ID, SelectedOptionID: qs[1].Options[0].ID},
			}, tt.reported)
			require.NoError(t, err)

			stored, err := env.exams.GetAttempt(ctx, 11, attempt.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.TimeTakenSeconds)
			assert.Equal(t, tt.want, *stored.TimeTakenSeconds)

			answers, err := env.exams.GetAnswersForAttempt(ctx, 11, attempt.ID)
			require.NoError(t, err)
			require.Len(t, answers, 2)
			assert.Nil(t, answers[0].SelectedOptionID, "option of another question is stored as unanswered")
		})
	}
}
