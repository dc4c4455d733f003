package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Exams   *service.ExamService
	Reviews *service.ReviewService
}

func NewAttemptController(exams *service.ExamService, reviews *service.ReviewService) *AttemptController {
	return &AttemptController{Exams: exams, Reviews: reviews}
}

// Submit godoc
// @Summary Submit an attempt
// @Description Marks the attempt completed and stores one answer per exam question. Correctness is graded server-side.
// @Tags Attempts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Attempt ID"
// @Param body body service.SubmitAttemptReq true "Answers and elapsed seconds"
// @Success 200 {object} util.Response{data=service.SubmissionResult}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "Already submitted"
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req service.SubmitAttemptReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Exams.SubmitAttempt(ctx.Request.Context(), userID, ctx.Param("id"), req.Answers, req.TimeTakenSeconds)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// List godoc
// @Summary Attempt history of the current user, newest first
// @Tags Attempts
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Attempt}
// @Router /api/attempts [get]
func (c *AttemptController) List(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	attempts, err := c.Exams.ListUserAttempts(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// Latest godoc
// @Summary Latest completed attempt per exam
// @Tags Attempts
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=map[string]service.LatestAttempt}
// @Router /api/attempts/latest [get]
func (c *AttemptController) Latest(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	latest, err := c.Exams.GetLatestCompletedAttemptPerExam(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, latest)
}

// Answers godoc
// @Summary Stored answers of an attempt joined with their questions
// @Tags Attempts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Attempt ID"
// @Success 200 {object} util.Response{data=[]model.AnswerWithQuestion}
// @Router /api/attempts/{id}/answers [get]
func (c *AttemptController) Answers(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	answers, err := c.Exams.GetAnswersForAttempt(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, answers)
}

// Review godoc
// @Summary Per-question review of a completed attempt
// @Tags Attempts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Attempt ID"
// @Success 200 {object} util.Response{data=service.AttemptReview}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "Attempt not completed"
// @Router /api/attempts/{id}/review [get]
func (c *AttemptController) Review(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	review, err := c.Reviews.GetReview(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, review)
}
