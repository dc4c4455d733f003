package controller

import (
	"context"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/cache"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Cache cache.Store
}

func NewHealthController(db *gorm.DB, store cache.Store) *HealthController {
	return &HealthController{DB: db, Cache: store}
}

// @Summary Health check
// @Description Pings the database and the cache backend
// @Tags System
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.PingContext(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	cacheStatus := "disabled"
	if c.Cache != nil {
		cacheStatus = "up"
		if err := c.Cache.Ping(pingCtx); err != nil {
			cacheStatus = "down"
		}
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
			"cache":    cacheStatus,
		},
	})
}
