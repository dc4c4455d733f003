package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type StatisticsController struct {
	Statistics *service.StatisticsService
}

func NewStatisticsController(stats *service.StatisticsService) *StatisticsController {
	return &StatisticsController{Statistics: stats}
}

// GetStatistics godoc
// @Summary Aggregated performance of the current user
// @Tags Statistics
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.UserStatistics}
// @Router /api/statistics [get]
func (c *StatisticsController) GetStatistics(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	stats, err := c.Statistics.GetUserStatistics(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
