package service

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReaperService periodically marks attempts that were opened and never submitted as abandoned,
// and drops idle exam sessions. Abandoned attempts are neither deleted nor completed.
type ReaperService struct {
	Exams    *ExamService
	Sessions *SessionManager

	mu           sync.Mutex
	cron         *cron.Cron
	entry        cron.EntryID
	schedule     string
	abandonAfter time.Duration
	now          func() time.Time
}

func NewReaperService(exams *ExamService, sessions *SessionManager, cfg config.AttemptConfig) *ReaperService {
	return &ReaperService{
		Exams:        exams,
		Sessions:     sessions,
		cron:         cron.New(),
		schedule:     cfg.ReapSchedule,
		abandonAfter: time.Duration(cfg.AbandonAfterHours) * time.Hour,
		now:          time.Now,
	}
}

func (r *ReaperService) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.scheduleLocked(r.schedule); err != nil {
		return err
	}
	r.cron.Start()
	logger.Log.Info("attempt reaper started",
		zap.String("schedule", r.schedule), zap.Duration("abandon_after", r.abandonAfter))
	return nil
}

func (r *ReaperService) scheduleLocked(spec string) error {
	id, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			logger.Log.Error("attempt reaper run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	r.entry = id
	r.schedule = spec
	return nil
}

// Reconfigure swaps the schedule and the abandonment window after a config reload.
func (r *ReaperService) Reconfigure(cfg config.AttemptConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandonAfter = time.Duration(cfg.AbandonAfterHours) * time.Hour
	if cfg.ReapSchedule == r.schedule || cfg.ReapSchedule == "" {
		return
	}
	old := r.entry
	if err := r.scheduleLocked(cfg.ReapSchedule); err != nil {
		logger.Log.Error("invalid reap schedule, keeping the previous one",
			zap.String("schedule", cfg.ReapSchedule), zap.Error(err))
		return
	}
	r.cron.Remove(old)
}

// RunOnce marks stale open attempts and evicts idle sessions. It returns the number of attempts marked.
func (r *ReaperService) RunOnce(ctx context.Context) (int64, error) {
	r.mu.Lock()
	window := r.abandonAfter
	r.mu.Unlock()

	if r.Sessions != nil {
		r.Sessions.EvictIdle()
	}
	if window <= 0 {
		return 0, nil
	}

	now := r.now()
	marked, userIDs, err := r.Exams.Attempts.MarkAbandoned(ctx, now.Add(-window), now)
	if err != nil {
		return 0, err
	}
	for _, id := range userIDs {
		r.Exams.invalidate(ctx, keyUserAttempts(id))
	}
	if marked > 0 {
		monitoring.AbandonedAttempts.Add(float64(marked))
		logger.Log.Info("marked abandoned attempts", zap.Int64("count", marked), zap.Int("users", len(userIDs)))
	}
	return marked, nil
}

// Stop waits for a running job to finish.
func (r *ReaperService) Stop() {
	<-r.cron.Stop().Done()
}
