package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const testBaseURL = "http://forgeledger.test"

var handlerTestNow = time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)

type testServer struct {
	engine *gin.Engine
	clock  *calendar.FakeClock
	jar    http.CookieJar
}

type testResponse struct {
	Code   int
	Header http.Header
	Body   map[string]any
}

func newTestServer(t *testing.T, limiter *service.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open("file:handler-"+name+"?mode=memory&cache=shared", true)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := calendar.NewFakeClock(handlerTestNow)
	gdb.Config.NowFunc = func() time.Time { return clock.Now() }

	api := NewAPI(gdb, Options{
		Zone:    calendar.NewZone(time.UTC, clock),
		Caps:    ledger.DefaultCaps,
		Cache:   service.NewStatsCache(32, time.Minute),
		Limiter: limiter,
	})

	engine := gin.New()
	engine.Use(RequestID())
	engine.Use(sessions.Sessions("forgeledger_session", cookie.NewStore([]byte("test-secret"))))
	engine.POST("/api/auth/register", api.Register)
	engine.POST("/api/auth/login", api.Login)
	engine.POST("/api/auth/logout", api.Logout)

	protected := engine.Group("/api")
	protected.Use(AuthRequired())
	protected.GET("/me", api.Me)
	protected.GET("/progress", api.GetProgress)
	protected.GET("/dashboard", api.GetDashboard)
	protected.GET("/habits", api.ListHabits)
	protected.POST("/habits", api.CreateHabit)
	protected.GET("/habits/stats", api.GetBulkHabitStats)
	protected.PATCH("/habits/:id", api.UpdateHabit)
	protected.DELETE("/habits/:id", api.DeleteHabit)
	protected.POST("/habits/:id/log", api.LogHabit)
	protected.GET("/habits/:id/logs", api.ListHabitLogs)
	protected.GET("/habits/:id/stats", api.GetHabitStats)
	protected.GET("/todos", api.ListTodos)
	protected.POST("/todos", api.CreateTodo)
	protected.PATCH("/todos/:id", api.UpdateTodo)
	protected.DELETE("/todos/:id", api.DeleteTodo)
	protected.POST("/todos/:id/complete", api.CompleteTodo)
	protected.POST("/focus/start", api.StartFocus)
	protected.POST("/focus/:id/complete", api.CompleteFocus)
	protected.POST("/focus/:id/cancel", api.CancelFocus)
	protected.GET("/focus/today", api.GetFocusToday)
	protected.GET("/focus/range", api.GetFocusRange)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testServer{engine: engine, clock: clock, jar: jar}
}

func (s *testServer) do(t *testing.T, method, target string, body any, headers ...string) testResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, testBaseURL+target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	for _, c := range s.jar.Cookies(req.URL) {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)
	resp := rr.Result()
	s.jar.SetCookies(req.URL, resp.Cookies())

	out := testResponse{Code: rr.Code, Header: rr.Header()}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &out.Body); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return out
}

func (s *testServer) register(t *testing.T, username string) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/auth/register", gin.H{"username": username, "password": "pa55word"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %v", username, resp.Code, resp.Body)
	}
}

func expectStatus(t *testing.T, resp testResponse, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("expected status %d, got %d (%v)", want, resp.Code, resp.Body)
	}
}

// number 读取嵌套 JSON 中的数字字段
func number(t *testing.T, body map[string]any, path ...string) int {
	t.Helper()
	var current any = body
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			t.Fatalf("path %v: %v is not an object", path, current)
		}
		current = obj[key]
	}
	value, ok := current.(float64)
	if !ok {
		t.Fatalf("path %v: %v is not a number", path, current)
	}
	return int(value)
}
