package app

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/middleware"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

// registerDocs mounts the API docs UI. It is a no-op unless built with -tags swagger.
var registerDocs = func(router *gin.Engine) {}

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())
	registerDocs(router)

	// 1. public routes
	a.registerPublicRoutes(router, c)

	// 2. authenticated routes; live sessions get their own budget
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		api := authGroup.Group("", a.limiters.api.Middleware())
		a.registerExamRoutes(api, c)
		a.registerAttemptRoutes(api, c)

		a.registerSessionRoutes(authGroup.Group("", a.limiters.session.Middleware()), c)
	}

	// 3. admin routes
	a.registerAdminRoutes(router, c, repos, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", a.limiters.auth.Middleware(), c.auth.Register)
		public.POST("/login", a.limiters.auth.Middleware(), c.auth.Login)
	}
}

func (a *App) registerExamRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.Profile)
	rg.GET("/dashboard", c.dashboard.GetDashboard)
	rg.GET("/statistics", c.statistics.GetStatistics)

	exams := rg.Group("/exams")
	{
		exams.GET("", c.exam.ListActive)
		exams.GET("/:id", c.exam.GetExam)
		exams.GET("/:id/questions", c.exam.GetQuestions)
		exams.POST("/:id/attempts", c.exam.CreateAttempt)
		exams.DELETE("/:id/attempts", c.exam.ResetExam)
		exams.POST("/:id/sessions", c.session.Open)
	}
}

func (a *App) registerAttemptRoutes(rg *gin.RouterGroup, c *controllers) {
	attempts := rg.Group("/attempts")
	{
		attempts.GET("", c.attempt.List)
		attempts.GET("/latest", c.attempt.Latest)
		attempts.POST("/:id/submit", c.attempt.Submit)
		attempts.GET("/:id/answers", c.attempt.Answers)
		attempts.GET("/:id/review", c.attempt.Review)
	}
}

func (a *App) registerSessionRoutes(rg *gin.RouterGroup, c *controllers) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("/:id", c.session.Get)
		sessions.DELETE("/:id", c.session.Close)
		sessions.PUT("/:id/answers", c.session.SelectAnswer)
		sessions.PUT("/:id/position", c.session.Navigate)
		sessions.POST("/:id/submit", c.session.Submit)
		sessions.POST("/:id/retake", c.session.Retake)
		sessions.GET("/:id/ws", c.session.Stream)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user), middleware.RoleMiddleware(model.Admin), a.limiters.api.Middleware())
	{
		admin.GET("/exams", c.exam.ListAll)
	}
}
