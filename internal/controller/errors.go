package controller

import (
	"errors"
	"exam_prep_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError turns domain errors into user-facing messages; anything unknown is logged and hidden.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrExamNotFound):
		util.Error(ctx, http.StatusNotFound, "This exam is not available")
	case errors.Is(err, util.ErrAttemptNotFound):
		util.Error(ctx, http.StatusNotFound, "We could not find that attempt")
	case errors.Is(err, util.ErrSessionNotFound):
		util.Error(ctx, http.StatusNotFound, "This exam session has ended. Please open the exam again")
	case errors.Is(err, util.ErrNoQuestions):
		util.Error(ctx, http.StatusUnprocessableEntity, "This exam has no questions yet")
	case errors.Is(err, util.ErrAttemptCompleted):
		util.Conflict(ctx, "This attempt has already been submitted")
	case errors.Is(err, util.ErrSubmissionInFlight):
		util.Conflict(ctx, "Your answers are being submitted, please wait")
	case errors.Is(err, util.ErrSubmissionRefused):
		util.Conflict(ctx, "The exam did not start correctly and cannot be submitted. Please reopen it")
	case errors.Is(err, util.ErrInvalidState):
		util.Conflict(ctx, "That action is not available right now")
	case errors.Is(err, util.ErrQuestionIndexOutOfRange):
		util.BadRequest(ctx, "There is no question at that position")
	case errors.Is(err, util.ErrUnknownQuestion):
		util.BadRequest(ctx, "That question is not part of this exam")
	case errors.Is(err, util.ErrUnknownOption):
		util.BadRequest(ctx, "That answer does not belong to the question")
	case errors.Is(err, util.ErrEmailRegistered):
		util.Conflict(ctx, "An account with this email already exists")
	case errors.Is(err, util.ErrInvalidCredentials):
		util.Error(ctx, http.StatusUnauthorized, "Incorrect email or password")
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}

func currentUserID(ctx *gin.Context) (uint, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return 0, false
	}
	return claims.UserID, true
}
