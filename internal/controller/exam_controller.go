package controller

import (
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Exams *service.ExamService
}

func NewExamController(exams *service.ExamService) *ExamController {
	return &ExamController{Exams: exams}
}

type CreateAttemptReq struct {
	TotalQuestions int `json:"totalQuestions" binding:"min=0"`
}

// PublicOption is an answer option without its correctness flag.
type PublicOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
	Letter     string `json:"letter"`
}

type PublicQuestion struct {
	ID          string         `json:"id"`
	ExamID      string         `json:"examId"`
	Text        string         `json:"text"`
	Explanation string         `json:"explanation,omitempty"`
	Position    int            `json:"position"`
	Options     []PublicOption `json:"options"`
}

func publicQuestions(qs []model.Question) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(qs))
	for _, q := range qs {
		pq := PublicQuestion{
			ID:       q.ID,
			ExamID:   q.ExamID,
			Text:     q.Text,
			Position: q.Position,
			Options:  make([]PublicOption, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			pq.Options = append(pq.Options, PublicOption{
				ID:         o.ID,
				QuestionID: o.QuestionID,
				Text:       o.Text,
				Position:   o.Position,
				Letter:     o.Letter(),
			})
		}
		out = append(out, pq)
	}
	return out
}

// ListActive godoc
// @Summary Active exams
// @Tags Exams
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Exam}
// @Router /api/exams [get]
func (c *ExamController) ListActive(ctx *gin.Context) {
	exams, err := c.Exams.ListActiveExams(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, exams)
}

// ListAll godoc
// @Summary All exams, including inactive ones
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Exam}
// @Router /api/admin/exams [get]
func (c *ExamController) ListAll(ctx *gin.Context) {
	exams, err := c.Exams.ListAllExams(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, exams)
}

// GetExam godoc
// @Summary Exam details
// @Tags Exams
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Exam ID"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	exam, err := c.visibleExam(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

func isAdmin(ctx *gin.Context) bool {
	return util.GetUserFromContext(ctx).IsAdmin()
}

// visibleExam hides inactive exams from everyone but admins.
func (c *ExamController) visibleExam(ctx *gin.Context) (*model.Exam, error) {
	exam, err := c.Exams.GetExam(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		return nil, err
	}
	if !exam.IsActive && !isAdmin(ctx) {
		return nil, util.ErrExamNotFound
	}
	return exam, nil
}

// GetQuestions godoc
// @Summary Questions of an exam with their options, ordered by position
// @Description Students never receive the answer key; admins do.
// @Tags Exams
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Exam ID"
// @Success 200 {object} util.Response{data=[]PublicQuestion}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id}/questions [get]
func (c *ExamController) GetQuestions(ctx *gin.Context) {
	exam, err := c.visibleExam(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	qs, err := c.Exams.GetExamQuestions(ctx.Request.Context(), exam.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	if isAdmin(ctx) {
		util.Success(ctx, qs)
		return
	}
	util.Success(ctx, publicQuestions(qs))
}

// CreateAttempt godoc
// @Summary Start a new attempt
// @Tags Attempts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Exam ID"
// @Param body body CreateAttemptReq false "Question count known to the client"
// @Success 201 {object} util.Response{data=model.Attempt}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id}/attempts [post]
func (c *ExamController) CreateAttempt(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req CreateAttemptReq
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	attempt, err := c.Exams.CreateAttempt(ctx.Request.Context(), userID, ctx.Param("id"), req.TotalQuestions)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// ResetExam godoc
// @Summary Delete every attempt of the current user for the exam
// @Tags Attempts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Exam ID"
// @Success 200 {object} util.Response{data=service.ResetResult}
// @Router /api/exams/{id}/attempts [delete]
func (c *ExamController) ResetExam(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	res, err := c.Exams.ResetExam(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
