package app

import (
	"bytes"
	"context"
	"encoding/json"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/database"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testSeed = `
exams:
  - title: Networking Basics
    duration_minutes: 10
    questions:
      - text: Which layer does TCP belong to?
        explanation: TCP is a transport protocol.
        options:
          - text: Transport
            correct: true
          - text: Network
          - text: Link
      - text: Default HTTPS port?
        options:
          - text: "80"
          - text: "443"
            correct: true
  - title: Retired Exam
    active: false
    questions:
      - text: Unused
        options:
          - text: a
            correct: true
          - text: b
`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Mode: gin.TestMode},
		JWT:    config.JWTConfig{Secret: "test-secret-test-secret-test-secret", ExpireTime: time.Hour},
		Cache:  config.CacheConfig{Backend: "memory", TTLSeconds: 60},
		Attempt: config.AttemptConfig{
			DefaultDurationSeconds: 3600,
			UseExamDuration:        true,
			AbandonAfterHours:      24,
			ReapSchedule:           "@every 1h",
			SessionIdleMinutes:     60,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type testServer struct {
	app *App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, testConfig())
}

func newTestServerWith(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := New(cfg, newTestDB(t), nil, nil)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	report, err := a.services.seed.Import(context.Background(), []byte(testSeed))
	require.NoError(t, err)
	require.Equal(t, 2, report.Imported)

	return &testServer{app: a}
}

func (s *testServer) userToken(t *testing.T, email string, role model.UserRole) (uint, string) {
	t.Helper()
	user := &model.User{Name: email, Email: email, Password: "x", Role: role}
	require.NoError(t, s.app.DB.Create(user).Error)
	token, err := util.GenerateJWT(user, s.app.Config.JWT.Secret, time.Hour)
	require.NoError(t, err)
	return user.ID, token
}

func (s *testServer) examByTitle(t *testing.T, title string) *model.Exam {
	t.Helper()
	exam, err := s.app.services.exams.Exams.FindByTitle(context.Background(), title)
	require.NoError(t, err)
	return exam
}

type reply struct {
	Status  int
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Raw     string
}

func (r reply) decode(t *testing.T, out interface{}) {
	t.Helper()
	require.NotEmpty(t, r.Data, "reply has no data: %s", r.Raw)
	require.NoError(t, json.Unmarshal(r.Data, out))
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) reply {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	r := reply{Status: w.Code, Raw: w.Body.String()}
	if w.Body.Len() > 0 && strings.Contains(w.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r), "body: %s", r.Raw)
	}
	return r
}

func (s *testServer) mustDo(t *testing.T, want int, method, path, token string, body interface{}) reply {
	t.Helper()
	r := s.do(t, method, path, token, body)
	require.Equal(t, want, r.Status, fmt.Sprintf("%s %s: %s", method, path, r.Raw))
	return r
}
