package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"math"
	"sort"
	"time"
)

const (
	TierExcellent        = "excellent"
	TierVeryGood         = "very_good"
	TierGood             = "good"
	TierFair             = "fair"
	TierNeedsImprovement = "needs_improvement"

	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"

	trendWindow    = 3
	trendThreshold = 5.0
)

type ScoreBucket struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

type UserStatistics struct {
	UniqueExamsCompleted int           `json:"uniqueExamsCompleted"`
	LatestAverageScore   float64       `json:"latestAverageScore"`
	AverageScore         float64       `json:"averageScore"`
	HighestScore         int           `json:"highestScore"`
	LowestScore          int           `json:"lowestScore"`
	AverageTimeSeconds   float64       `json:"averageTimeSeconds"`
	FastestTimeSeconds   int           `json:"fastestTimeSeconds"`
	SlowestTimeSeconds   int           `json:"slowestTimeSeconds"`
	CompletedAttempts    int           `json:"completedAttempts"`
	InProgressAttempts   int           `json:"inProgressAttempts"`
	PerformanceTier      string        `json:"performanceTier"`
	Trend                string        `json:"trend"`
	Distribution         []ScoreBucket `json:"distribution"`
}

type StatisticsService struct {
	Exams *ExamService
}

func NewStatisticsService(exams *ExamService) *StatisticsService {
	return &StatisticsService{Exams: exams}
}

// GetUserStatistics is recomputed on every call from the user's attempt history.
func (s *StatisticsService) GetUserStatistics(ctx context.Context, userID uint) (*UserStatistics, error) {
	attempts, err := s.Exams.ListUserAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := ComputeStatistics(attempts)
	return &stats, nil
}

func completedWithScore(a model.Attempt) bool {
	return a.IsCompleted && a.Score != nil
}

// ComputeStatistics reduces an attempt history. Incomplete attempts only count towards InProgressAttempts.
func ComputeStatistics(attempts []model.Attempt) UserStatistics {
	stats := UserStatistics{
		Distribution: newDistribution(),
		Trend:        TrendStable,
	}

	completed := make([]model.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if completedWithScore(a) {
			completed = append(completed, a)
		} else if !a.IsCompleted {
			stats.InProgressAttempts++
		}
	}
	stats.CompletedAttempts = len(completed)
	if len(completed) == 0 {
		stats.PerformanceTier = PerformanceTier(0)
		return stats
	}

	sortByCompletionDesc(completed)

	sum := 0
	stats.HighestScore = math.MinInt
	stats.LowestScore = math.MaxInt
	for _, a := range completed {
		score := *a.Score
		sum += score
		if score > stats.HighestScore {
			stats.HighestScore = score
		}
		if score < stats.LowestScore {
			stats.LowestScore = score
		}
		addToDistribution(stats.Distribution, score)
	}
	stats.AverageScore = round1(float64(sum) / float64(len(completed)))

	latest := LatestPerExam(completed)
	stats.UniqueExamsCompleted = len(latest)
	latestSum := 0
	for _, a := range latest {
		latestSum += *a.Score
	}
	stats.LatestAverageScore = round1(float64(latestSum) / float64(len(latest)))

	timed, timeSum := 0, 0
	for _, a := range completed {
		if a.TimeTakenSeconds == nil {
			continue
		}
		t := *a.TimeTakenSeconds
		if timed == 0 || t < stats.FastestTimeSeconds {
			stats.FastestTimeSeconds = t
		}
		if t > stats.SlowestTimeSeconds {
			stats.SlowestTimeSeconds = t
		}
		timeSum += t
		timed++
	}
	if timed > 0 {
		stats.AverageTimeSeconds = round1(float64(timeSum) / float64(timed))
	}

	stats.PerformanceTier = PerformanceTier(stats.AverageScore)
	stats.Trend = scoreTrend(completed)
	return stats
}

// LatestPerExam keeps, for each exam, the completed attempt with the latest completion time.
func LatestPerExam(attempts []model.Attempt) map[string]model.Attempt {
	sorted := make([]model.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.IsCompleted {
			sorted = append(sorted, a)
		}
	}
	sortByCompletionDesc(sorted)

	latest := make(map[string]model.Attempt)
	for _, a := range sorted {
		if _, seen := latest[a.ExamID]; !seen {
			latest[a.ExamID] = a
		}
	}
	return latest
}

func sortByCompletionDesc(attempts []model.Attempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		return completionTime(attempts[i]).After(completionTime(attempts[j]))
	})
}

func completionTime(a model.Attempt) time.Time {
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	return a.StartedAt
}

func PerformanceTier(average float64) string {
	switch {
	case average >= 90:
		return TierExcellent
	case average >= 80:
		return TierVeryGood
	case average >= 70:
		return TierGood
	case average >= 60:
		return TierFair
	default:
		return TierNeedsImprovement
	}
}

// scoreTrend compares the mean of the latest three scores with the three before them.
// completed must be sorted newest first.
func scoreTrend(completed []model.Attempt) string {
	if len(completed) < 2 {
		return TrendStable
	}
	recentN := trendWindow
	if len(completed) < 2*trendWindow {
		recentN = len(completed) / 2
	}
	recent := meanScore(completed[:recentN])
	end := recentN + trendWindow
	if end > len(completed) {
		end = len(completed)
	}
	previous := meanScore(completed[recentN:end])

	switch diff := recent - previous; {
	case diff > trendThreshold:
		return TrendImproving
	case diff < -trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func meanScore(attempts []model.Attempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	sum := 0
	for _, a := range attempts {
		sum += *a.Score
	}
	return float64(sum) / float64(len(attempts))
}

func newDistribution() []ScoreBucket {
	return []ScoreBucket{
		{Label: "0-59", Min: 0, Max: 59},
		{Label: "60-69", Min: 60, Max: 69},
		{Label: "70-79", Min: 70, Max: 79},
		{Label: "80-89", Min: 80, Max: 89},
		{Label: "90-100", Min: 90, Max: 100},
	}
}

func addToDistribution(buckets []ScoreBucket, score int) {
	for i := range buckets {
		if score >= buckets[i].Min && score <= buckets[i].Max {
			buckets[i].Count++
			return
		}
	}
	if score < 0 {
		buckets[0].Count++
	} else {
		buckets[len(buckets)-1].Count++
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
