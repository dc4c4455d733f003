package app

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/controller"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/cache"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/security"
	"exam_prep_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Cache           cache.Store
	services        *services
	limiters        *limiters
	tracer          *sdktrace.TracerProvider
	cfgMu           sync.Mutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user    *repository.UserRepository
	exam    *repository.ExamRepository
	attempt *repository.AttemptRepository
}

type services struct {
	auth       *service.AuthService
	exams      *service.ExamService
	sessions   *service.SessionManager
	reviews    *service.ReviewService
	statistics *service.StatisticsService
	dashboard  *service.DashboardService
	reaper     *service.ReaperService
	seed       *service.SeedService
}

type controllers struct {
	auth       *controller.AuthController
	exam       *controller.ExamController
	attempt    *controller.AttemptController
	session    *controller.SessionController
	statistics *controller.StatisticsController
	dashboard  *controller.DashboardController
	health     *controller.HealthController
}

// limiters hold one budget per route group so a busy exam session never starves sign-in or the rest of the API.
type limiters struct {
	auth    *security.Limiter
	api     *security.Limiter
	session *security.Limiter
}

func limitRule(r config.RateLimitRule) security.Rule {
	return security.Rule{Requests: r.MaxRequests, Window: r.Window()}
}

// userOrIP charges authenticated requests to the user and the rest to the client address.
func userOrIP(c *gin.Context) string {
	if claims := util.GetUserFromContext(c); claims != nil {
		return "user:" + strconv.FormatUint(uint64(claims.UserID), 10)
	}
	return "ip:" + c.ClientIP()
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	return &limiters{
		auth:    security.NewLimiter("auth", limitRule(cfg.Auth), security.ClientIP),
		api:     security.NewLimiter("api", limitRule(cfg.API()), userOrIP),
		session: security.NewLimiter("session", limitRule(cfg.Session), userOrIP),
	}
}

func (l *limiters) update(cfg config.RateLimitConfig) {
	l.auth.Update(limitRule(cfg.Auth))
	l.api.Update(limitRule(cfg.API()))
	l.session.Update(limitRule(cfg.Session))
}

func (l *limiters) close() {
	l.auth.Close()
	l.api.Close()
	l.session.Close()
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig hands a reloaded configuration to every registered callback.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.cfgMu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	logger.Log.Info("Configuration reloaded")
}

func sessionPolicy(cfg config.AttemptConfig) service.SessionPolicy {
	return service.SessionPolicy{
		DefaultDuration: time.Duration(cfg.DefaultDurationSeconds) * time.Second,
		UseExamDuration: cfg.UseExamDuration,
	}
}

func sessionIdle(cfg config.AttemptConfig) time.Duration {
	return time.Duration(cfg.SessionIdleMinutes) * time.Minute
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:    repository.NewUserRepository(db),
		exam:    repository.NewExamRepository(db),
		attempt: repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.exams = service.NewExamService(repos.exam, repos.attempt, a.Cache, cfg.Cache.TTL())
	s.sessions = service.NewSessionManager(s.exams, sessionPolicy(cfg.Attempt), sessionIdle(cfg.Attempt))
	s.reviews = service.NewReviewService(s.exams)
	s.statistics = service.NewStatisticsService(s.exams)
	s.dashboard = service.NewDashboardService(s.exams)
	s.reaper = service.NewReaperService(s.exams, s.sessions, cfg.Attempt)
	s.seed = service.NewSeedService(repos.exam)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		exam:       controller.NewExamController(s.exams),
		attempt:    controller.NewAttemptController(s.exams, s.reviews),
		session:    controller.NewSessionController(s.sessions, a.Config.CORS.AllowedOrigins),
		statistics: controller.NewStatisticsController(s.statistics),
		dashboard:  controller.NewDashboardController(s.dashboard),
		health:     controller.NewHealthController(a.DB, a.Cache),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) registerConfigCallbacks(s *services) {
	a.RegisterConfigCallback(logger.SetLevel)
	a.RegisterConfigCallback(func(cfg *config.Config) {
		s.sessions.UpdatePolicy(sessionPolicy(cfg.Attempt), sessionIdle(cfg.Attempt))
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		s.reaper.Reconfigure(cfg.Attempt)
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.limiters.update(cfg.RateLimit)
	})
}

func (a *App) startBackgroundTasks(s *services) {
	if err := s.reaper.Start(); err != nil {
		logger.Log.Error("Failed to start attempt reaper", zap.Error(err))
	}
}

// New wires the application around already opened stores. A nil store falls back to the in-memory cache.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, store cache.Store) *App {
	if store == nil {
		store = cache.NewMemoryStore()
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Cache:  store,
	}

	app.limiters = newLimiters(cfg.RateLimit)
	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services)

	monitoring.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)
	app.registerConfigCallbacks(services)

	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")
	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	var store cache.Store
	if cfg.Cache.Backend == util.CacheRedis {
		store = cache.NewRedisStore(rdb)
	} else {
		store = cache.NewMemoryStore()
	}

	app := New(cfg, db, rdb, store)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-prep-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if cfg.SeedPath != "" {
		report, err := app.services.seed.ImportFile(context.Background(), cfg.SeedPath)
		if err != nil {
			logger.Log.Fatal("Failed to import seed file", zap.String("path", cfg.SeedPath), zap.Error(err))
		}
		logger.Log.Info("Seed import finished",
			zap.Int("imported", report.Imported),
			zap.Int("skipped", report.Skipped),
			zap.Int("warnings", len(report.Warnings)))
	}

	if !cfg.MigrateOnly {
		app.startBackgroundTasks(app.services)
	}

	return app
}

// Shutdown stops background work. Open sessions are dropped; their attempts stay in progress.
func (a *App) Shutdown(ctx context.Context) {
	if a.services != nil {
		a.services.reaper.Stop()
		a.services.sessions.Shutdown()
	}
	if a.limiters != nil {
		a.limiters.close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.Shutdown(ctx)

	logger.Log.Info("Server exiting")
}
