// Package client is a typed HTTP client of the exam-prep API. It satisfies service.AttemptStore, so an
// AttemptSession can run on the caller's side against a remote server.
package client

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrUnauthenticated = errors.New("client: not authenticated")

// APIError is a non-2xx reply. It unwraps to the matching domain error when the status identifies one.
type APIError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// statusErrors maps reply statuses of one endpoint to domain errors.
type statusErrors map[int]error

type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(r *resty.Client) { r.SetTimeout(d) }
}

// WithRetry retries reads on transport errors and 5xx replies. Mutations are never retried.
func WithRetry(count int, wait time.Duration) Option {
	return func(r *resty.Client) {
		r.SetRetryCount(count).
			SetRetryWaitTime(wait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				if resp == nil || resp.Request == nil {
					return err != nil
				}
				if resp.Request.Method != http.MethodGet {
					return false
				}
				return err != nil || resp.StatusCode() >= http.StatusInternalServerError
			})
	}
}

func New(baseURL string, opts ...Option) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(r)
	}
	return &Client{http: r}
}

func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

func call[T any](ctx context.Context, c *Client, method, path string, body interface{}, known statusErrors) (T, error) {
	var (
		result envelope[T]
		failed envelope[interface{}]
		zero   T
	)

	req := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failed)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return zero, newAPIError(resp.StatusCode(), failed.Message, known)
	}
	return result.Data, nil
}

func newAPIError(status int, message string, known statusErrors) *APIError {
	apiErr := &APIError{StatusCode: status, Message: message}
	if e, ok := known[status]; ok {
		apiErr.err = e
		return apiErr
	}
	switch status {
	case http.StatusUnauthorized:
		apiErr.err = ErrUnauthenticated
	case http.StatusForbidden:
		apiErr.err = util.ErrPermissionDenied
	}
	return apiErr
}

func examPath(examID string, suffix string) string {
	return "/api/exams/" + url.PathEscape(examID) + suffix
}

func attemptPath(attemptID string, suffix string) string {
	return "/api/attempts/" + url.PathEscape(attemptID) + suffix
}

var (
	examErrors    = statusErrors{http.StatusNotFound: util.ErrExamNotFound, http.StatusUnprocessableEntity: util.ErrNoQuestions}
	attemptErrors = statusErrors{http.StatusNotFound: util.ErrAttemptNotFound, http.StatusConflict: util.ErrAttemptCompleted}
)

func (c *Client) Register(ctx context.Context, req service.RegisterReq) (*model.User, error) {
	return call[*model.User](ctx, c, http.MethodPost, "/api/register", req,
		statusErrors{http.StatusConflict: util.ErrEmailRegistered})
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*service.LoginResp, error) {
	resp, err := call[*service.LoginResp](ctx, c, http.MethodPost, "/api/login",
		service.LoginReq{Email: email, Password: password},
		statusErrors{http.StatusUnauthorized: util.ErrInvalidCredentials})
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

func (c *Client) ListActiveExams(ctx context.Context) ([]model.Exam, error) {
	return call[[]model.Exam](ctx, c, http.MethodGet, "/api/exams", nil, nil)
}

func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return call[*model.Exam](ctx, c, http.MethodGet, examPath(examID, ""), nil, examErrors)
}

// GetExamQuestions returns the questions as the caller's role sees them; for students no option is flagged correct.
func (c *Client) GetExamQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	return call[[]model.Question](ctx, c, http.MethodGet, examPath(examID, "/questions"), nil, examErrors)
}

func (c *Client) CreateAttempt(ctx context.Context, examID string, totalQuestions int) (*model.Attempt, error) {
	body := map[string]int{"totalQuestions": totalQuestions}
	return call[*model.Attempt](ctx, c, http.MethodPost, examPath(examID, "/attempts"), body, examErrors)
}

func (c *Client) SubmitAttempt(ctx context.Context, attemptID string, answers []service.AnswerSubmission, timeTakenSeconds int) (*service.SubmissionResult, error) {
	body := service.SubmitAttemptReq{Answers: answers, TimeTakenSeconds: timeTakenSeconds}
	return call[*service.SubmissionResult](ctx, c, http.MethodPost, attemptPath(attemptID, "/submit"), body, attemptErrors)
}

func (c *Client) ListUserAttempts(ctx context.Context) ([]model.Attempt, error) {
	return call[[]model.Attempt](ctx, c, http.MethodGet, "/api/attempts", nil, nil)
}

func (c *Client) GetLatestCompletedAttemptPerExam(ctx context.Context) (map[string]service.LatestAttempt, error) {
	return call[map[string]service.LatestAttempt](ctx, c, http.MethodGet, "/api/attempts/latest", nil, nil)
}

func (c *Client) GetAnswersForAttempt(ctx context.Context, attemptID string) ([]model.AnswerWithQuestion, error) {
	return call[[]model.AnswerWithQuestion](ctx, c, http.MethodGet, attemptPath(attemptID, "/answers"), nil, attemptErrors)
}

func (c *Client) GetReview(ctx context.Context, attemptID string) (*service.AttemptReview, error) {
	return call[*service.AttemptReview](ctx, c, http.MethodGet, attemptPath(attemptID, "/review"), nil,
		statusErrors{http.StatusNotFound: util.ErrAttemptNotFound, http.StatusConflict: util.ErrInvalidState})
}

func (c *Client) ResetExam(ctx context.Context, examID string) (*service.ResetResult, error) {
	return call[*service.ResetResult](ctx, c, http.MethodDelete, examPath(examID, "/attempts"), nil, examErrors)
}

func (c *Client) GetStatistics(ctx context.Context) (*service.UserStatistics, error) {
	return call[*service.UserStatistics](ctx, c, http.MethodGet, "/api/statistics", nil, nil)
}

func (c *Client) GetDashboard(ctx context.Context) ([]service.DashboardExam, error) {
	return call[[]service.DashboardExam](ctx, c, http.MethodGet, "/api/dashboard", nil, nil)
}

var _ service.AttemptStore = (*Client)(nil)
