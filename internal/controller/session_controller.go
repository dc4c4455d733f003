package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

type SessionController struct {
	Sessions *service.SessionManager
	upgrader websocket.Upgrader
}

func NewSessionController(sessions *service.SessionManager, allowedOrigins []string) *SessionController {
	return &SessionController{
		Sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

type SelectAnswerReq struct {
	QuestionID string `json:"questionId" binding:"required"`
	OptionID   string `json:"optionId"`
}

type NavigateReq struct {
	Index *int `json:"index" binding:"required"`
}

func (c *SessionController) session(ctx *gin.Context) (*service.AttemptSession, bool) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil, false
	}
	sess, err := c.Sessions.Get(userID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return nil, false
	}
	return sess, true
}

// Open godoc
// @Summary Open an exam session
// @Description Loads the questions, creates a new attempt and starts the countdown. Reopening replaces the previous session of the same exam.
// @Tags Sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Exam ID"
// @Success 201 {object} util.Response{data=service.SessionSnapshot}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id}/sessions [post]
func (c *SessionController) Open(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	sess, err := c.Sessions.Open(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, sess.Snapshot())
}

// Get godoc
// @Summary Current state of an exam session
// @Tags Sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Session ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Router /api/sessions/{id} [get]
func (c *SessionController) Get(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}
	util.Success(ctx, sess.Snapshot())
}

// SelectAnswer godoc
// @Summary Select (or clear) the answer of a question
// @Tags Sessions
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Session ID"
// @Param body body SelectAnswerReq true "Selection; an empty optionId clears it"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Router /api/sessions/{id}/answers [put]
func (c *SessionController) SelectAnswer(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}

	var req SelectAnswerReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := sess.SelectAnswer(req.QuestionID, req.OptionID); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, sess.Snapshot())
}

// Navigate godoc
// @Summary Move to a question
// @Tags Sessions
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Session ID"
// @Param body body NavigateReq true "0-based question index"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Router /api/sessions/{id}/position [put]
func (c *SessionController) Navigate(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}

	var req NavigateReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := sess.Navigate(*req.Index); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, sess.Snapshot())
}

// Submit godoc
// @Summary Submit the session's attempt
// @Tags Sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Session ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Failure 409 {object} util.Response "Already submitted or in flight"
// @Router /api/sessions/{id}/submit [post]
func (c *SessionController) Submit(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}

	if _, err := sess.Submit(ctx.Request.Context(), util.SubmitTriggerManual); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, sess.Snapshot())
}

// Retake godoc
// @Summary Start over with a new attempt
// @Tags Sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Session ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Router /api/sessions/{id}/retake [post]
func (c *SessionController) Retake(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}

	if err := sess.Retake(ctx.Request.Context()); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, sess.Snapshot())
}

// Close godoc
// @Summary Close a session
// @Description Stops the countdown. An unsubmitted attempt stays open.
// @Tags Sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Session ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id} [delete]
func (c *SessionController) Close(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	if err := c.Sessions.Close(userID, ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Stream godoc
// @Summary Live session snapshots over WebSocket
// @Description Pushes a snapshot on every countdown tick and state change. The token may be passed as a query parameter.
// @Tags Sessions
// @Param id path string true "Session ID"
// @Param token query string false "JWT"
// @Router /api/sessions/{id}/ws [get]
func (c *SessionController) Stream(ctx *gin.Context) {
	sess, ok := c.session(ctx)
	if !ok {
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case snap, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// readUntilClosed drains client frames so pongs and close messages are processed.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}
