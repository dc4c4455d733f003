package util

import "errors"

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailRegistered         = errors.New("email already registered")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidToken            = errors.New("invalid token")
	ErrTokenExpired            = errors.New("token expired")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrExamNotFound            = errors.New("exam not found")
	ErrNoQuestions             = errors.New("exam has no questions")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptCompleted        = errors.New("attempt already completed")
	ErrSessionNotFound         = errors.New("exam session not found")
	ErrInvalidState            = errors.New("operation not allowed in current attempt state")
	ErrSubmissionInFlight      = errors.New("submission already in progress")
	ErrSubmissionRefused       = errors.New("submission refused: attempt not fully initialized")
	ErrQuestionIndexOutOfRange = errors.New("question index out of range")
	ErrUnknownQuestion         = errors.New("question does not belong to this exam")
	ErrUnknownOption           = errors.New("option does not belong to this question")
)
