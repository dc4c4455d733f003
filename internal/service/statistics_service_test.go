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

var statsBase = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func completedAttempt(examID string, score, seconds, minutesAfter int) model.Attempt {
	done := statsBase.Add(time.Duration(minutesAfter) * time.Minute)
	a := model.Attempt{
		ExamID:           examID,
		IsCompleted:      true,
		Score:            util.IntPtr(score),
		CorrectAnswers:   util.IntPtr(score / 10),
		TimeTakenSeconds: util.IntPtr(seconds),
		StartedAt:        done.Add(-time.Duration(seconds) * time.Second),
		CompletedAt:      &done,
	}
	a.ID = examID + "-" + done.Format("1504")
	return a
}

func TestComputeStatistics(t *testing.T) {
	attempts := []model.Attempt{
		completedAttempt("go", 50, 300, 0),
		completedAttempt("go", 90, 200, 30),
		completedAttempt("sql", 70, 600, 10),
		{ExamID: "k8s", StartedAt: statsBase},
	}

	s := ComputeStatistics(attempts)
	assert.Equal(t, 2, s.UniqueExamsCompleted)
	assert.Equal(t, 80.0, s.LatestAverageScore)
	assert.Equal(t, 70.0, s.AverageScore)
	assert.Equal(t, 90, s.HighestScore)
	assert.Equal(t, 50, s.LowestScore)
	assert.Equal(t, 366.7, s.AverageTimeSeconds)
	assert.Equal(t, 200, s.FastestTimeSeconds)
	assert.Equal(t, 600, s.SlowestTimeSeconds)
	assert.Equal(t, 3, s.CompletedAttempts)
	assert.Equal(t, 1, s.InProgressAttempts)
	assert.Equal(t, TierGood, s.PerformanceTier)

	counts := map[string]int{}
	for _, b := range s.Distribution {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, map[string]int{"0-59": 1, "60-69": 0, "70-79": 1, "80-89": 0, "90-100": 1}, counts)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	s := ComputeStatistics(nil)
	assert.Zero(t, s.CompletedAttempts)
	assert.Zero(t, s.HighestScore)
	assert.Zero(t, s.LowestScore)
	assert.Equal(t, TierNeedsImprovement, s.PerformanceTier)
	assert.Equal(t, TrendStable, s.Trend)
	assert.Len(t, s.Distribution, 5)
}

func TestPerformanceTier(t *testing.T) {
	cases := map[float64]string{
		100:  TierExcellent,
		90:   TierExcellent,
		89.9: TierVeryGood,
		80:   TierVeryGood,
		70:   TierGood,
		60:   TierFair,
		59.9: TierNeedsImprovement,
		0:    TierNeedsImprovement,
	}
	for avg, want := range cases {
		assert.Equal(t, want, PerformanceTier(avg), "average %v", avg)
	}
}

func TestScoreTrend(t *testing.T) {
	cases := []struct {
		name   string
		scores []int // oldest first
		want   string
	}{
		{"single attempt", []int{40}, TrendStable},
		{"two rising", []int{40, 80}, TrendImproving},
		{"two falling", []int{80, 40}, TrendDeclining},
		{"within threshold", []int{70, 72, 74, 71, 73, 75}, TrendStable},
		{"last three better", []int{50, 55, 60, 80, 85, 90}, TrendImproving},
		{"older history ignored", []int{100, 100, 100, 50, 55, 60, 50, 55, 60}, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := make([]model.Attempt, 0, len(tc.scores))
			for i, score := range tc.scores {
				attempts = append(attempts, completedAttempt("e", score, 60, i))
			}
			assert.Equal(t, tc.want, ComputeStatistics(attempts).Trend)
		})
	}
}

func TestLatestPerExam(t *testing.T) {
	older := completedAttempt("go", 40, 60, 0)
	newer := completedAttempt("go", 60, 60, 5)
	open := model.Attempt{ExamID: "go", StartedAt: statsBase.Add(time.Hour)}

	latest := LatestPerExam([]model.Attempt{newer, open, older})
	require.Len(t, latest, 1)
	assert.Equal(t, newer.ID, latest["go"].ID)
}

func TestGetUserStatistics(t *testing.T) {
	env := newTestEnv(t)
	stats := NewStatisticsService(env.exams)
	exam, qs := env.createExam(t, "Stats", 0, 1)

	env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0])})
	env.submitCompleted(t, 1, exam, map[string]string{qs[0].ID: correctOf(qs[0]), qs[1].ID: correctOf(qs[1])})

	s, err := stats.GetUserStatistics(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.UniqueExamsCompleted)
	assert.Equal(t, 100.0, s.LatestAverageScore)
	assert.Equal(t, 75.0, s.AverageScore)
	assert.Equal(t, TrendImproving, s.Trend)
}
