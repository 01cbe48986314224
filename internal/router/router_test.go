package router_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"focuspal/backend/internal/db"
	"focuspal/backend/internal/handler"
	"focuspal/backend/internal/notify"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/router"
	"focuspal/backend/internal/service"
	"focuspal/backend/internal/timer/timertest"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type stateEnvelope struct {
	State struct {
		Mode            string `json:"mode"`
		RemainingMs     int64  `json:"remainingMs"`
		TotalMs         int64  `json:"totalMs"`
		Version         int    `json:"version"`
		ManuallyStopped bool   `json:"manuallyStopped"`
	} `json:"state"`
}

type historyEnvelope struct {
	Sessions []struct {
		Status string `json:"status"`
		Kind   string `json:"kind"`
	} `json:"sessions"`
}

type statsEnvelope struct {
	Stats struct {
		CompletedSessions int `json:"completedSessions"`
		CompletedToday    int `json:"completedToday"`
	} `json:"stats"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			State struct {
				Version int `json:"version"`
			} `json:"state"`
		} `json:"details"`
	} `json:"error"`
}

type testEnv struct {
	engine    http.Handler
	clock     *timertest.Clock
	scheduler *timertest.Scheduler
}

func TestFocusSyncAndConflict(t *testing.T) {
	env := setupTestEnv(t)

	user1 := registerUser(t, env.engine, "user1@example.com", "123456")
	user2 := registerUser(t, env.engine, "user2@example.com", "123456")

	state := getState(t, env.engine, user1.Token)
	if state.State.Mode != "idle" || state.State.Version != 0 {
		t.Fatalf("expected idle version 0, got %s v%d", state.State.Mode, state.State.Version)
	}

	status, raw := requestJSON(t, env.engine, http.MethodPost, "/api/focus/start", user1.Token, map[string]int{"minutes": 10})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d: %s", status, raw)
	}
	started := decodeState(t, raw)
	if started.State.TotalMs != 600000 || started.State.Mode != "focus" {
		t.Fatalf("unexpected started state: %+v", started.State)
	}

	status, raw = requestJSON(t, env.engine, http.MethodPost, "/api/focus/pause", user1.Token, map[string]int{
		"baseVersion": started.State.Version,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on pause, got %d", status)
	}
	paused := decodeState(t, raw)
	if paused.State.Mode != "paused" {
		t.Fatalf("expected paused, got %s", paused.State.Mode)
	}

	// Resume with a stale version from another device should conflict.
	status, rawConflict := requestJSON(t, env.engine, http.MethodPost, "/api/focus/resume", user1.Token, map[string]int{
		"baseVersion": started.State.Version,
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for stale version, got %d", status)
	}

	var conflictResp apiErrorEnvelope
	if err := json.Unmarshal(rawConflict, &conflictResp); err != nil {
		t.Fatalf("unmarshal conflict response: %v", err)
	}
	if conflictResp.Error.Code != "state_conflict" {
		t.Fatalf("expected state_conflict, got %s", conflictResp.Error.Code)
	}

	// Stop with latest version from conflict details.
	latestVersion := conflictResp.Error.Details.State.Version
	status, raw = requestJSON(t, env.engine, http.MethodPost, "/api/focus/stop", user1.Token, map[string]int{
		"baseVersion": latestVersion,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on stop, got %d", status)
	}
	stopped := decodeState(t, raw)
	if stopped.State.Mode != "idle" || stopped.State.RemainingMs != 0 || !stopped.State.ManuallyStopped {
		t.Fatalf("unexpected stopped state: %+v", stopped.State)
	}

	// User isolation: user2 should still have no history.
	user2History := getHistory(t, env.engine, user2.Token)
	if len(user2History.Sessions) != 0 {
		t.Fatalf("expected no sessions for user2, got %d", len(user2History.Sessions))
	}

	user1History := getHistory(t, env.engine, user1.Token)
	if len(user1History.Sessions) != 1 {
		t.Fatalf("expected one session for user1, got %d", len(user1History.Sessions))
	}
	if user1History.Sessions[0].Status != "cancelled" {
		t.Fatalf("expected latest session cancelled, got %s", user1History.Sessions[0].Status)
	}
}

func TestFocusRunsToCompletion(t *testing.T) {
	env := setupTestEnv(t)
	user := registerUser(t, env.engine, "runner@example.com", "123456")

	status, _ := requestJSON(t, env.engine, http.MethodPost, "/api/focus/start", user.Token, map[string]int{"minutes": 25})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d", status)
	}

	env.scheduler.Run(env.clock, time.Second, 25*60)

	state := getState(t, env.engine, user.Token)
	if state.State.Mode != "idle" || state.State.RemainingMs != 0 {
		t.Fatalf("expected idle after completion, got %+v", state.State)
	}
	if state.State.ManuallyStopped {
		t.Fatal("completion must not be flagged as manual stop")
	}

	history := getHistory(t, env.engine, user.Token)
	if len(history.Sessions) != 1 || history.Sessions[0].Status != "completed" {
		t.Fatalf("expected one completed session, got %+v", history.Sessions)
	}

	status, raw := requestJSON(t, env.engine, http.MethodGet, "/api/focus/stats", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on stats, got %d", status)
	}
	var stats statsEnvelope
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Stats.CompletedSessions != 1 || stats.Stats.CompletedToday != 1 {
		t.Fatalf("unexpected stats: %+v", stats.Stats)
	}
}

func TestBreakUsesSettings(t *testing.T) {
	env := setupTestEnv(t)
	user := registerUser(t, env.engine, "breaker@example.com", "123456")

	status, _ := requestJSON(t, env.engine, http.MethodPut, "/api/focus/settings", user.Token, map[string]int{
		"focusMinutes": 50,
		"breakMinutes": 10,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on settings, got %d", status)
	}

	status, raw := requestJSON(t, env.engine, http.MethodPost, "/api/focus/break", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on break, got %d: %s", status, raw)
	}
	state := decodeState(t, raw)
	if state.State.Mode != "breakTime" || state.State.TotalMs != 600000 {
		t.Fatalf("unexpected break state: %+v", state.State)
	}

	status, _ = requestJSON(t, env.engine, http.MethodPost, "/api/focus/pause", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("pause during break should be a silent no-op, got %d", status)
	}
	if getState(t, env.engine, user.Token).State.Mode != "breakTime" {
		t.Fatal("pause must not change a break")
	}
}

func TestRejectsOversizedDurations(t *testing.T) {
	env := setupTestEnv(t)
	user := registerUser(t, env.engine, "huge@example.com", "123456")

	cases := []struct {
		method string
		path   string
		body   map[string]int
	}{
		{http.MethodPost, "/api/focus/start", map[string]int{"minutes": 200000000}},
		{http.MethodPost, "/api/focus/break", map[string]int{"minutes": 200000000}},
		{http.MethodPut, "/api/focus/settings", map[string]int{"focusMinutes": 200000000, "breakMinutes": 5}},
	}
	for _, tc := range cases {
		status, raw := requestJSON(t, env.engine, tc.method, tc.path, user.Token, tc.body)
		if status != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d: %s", tc.method, tc.path, status, raw)
		}
		var resp apiErrorEnvelope
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		if resp.Error.Code != "invalid_duration" {
			t.Fatalf("%s %s: expected invalid_duration, got %s", tc.method, tc.path, resp.Error.Code)
		}
	}

	state := getState(t, env.engine, user.Token)
	if state.State.Mode != "idle" {
		t.Fatalf("rejected start must leave the session idle, got %s", state.State.Mode)
	}
	if history := getHistory(t, env.engine, user.Token); len(history.Sessions) != 0 {
		t.Fatalf("expected no history, got %+v", history.Sessions)
	}
}

func TestRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	status, raw := requestJSON(t, env.engine, http.MethodGet, "/api/focus/state", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	var resp apiErrorEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", resp.Error.Code)
	}

	status, _ = requestJSON(t, env.engine, http.MethodGet, "/api/focus/state", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}

	user := registerUser(t, env.engine, "me@example.com", "123456")
	status, raw = requestJSON(t, env.engine, http.MethodGet, "/api/auth/me", user.Token, nil)
	if status != http.StatusOK || !strings.Contains(string(raw), "me@example.com") {
		t.Fatalf("expected current user, got %d: %s", status, raw)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()

	env.engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestEventsStream(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.engine)
	defer server.Close()

	user := registerUser(t, env.engine, "stream@example.com", "123456")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/focus/events", nil)
	if err != nil {
		t.Fatalf("build events request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+user.Token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open events stream: %v", err)
	}
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	first := nextData(t, lines)
	if !strings.Contains(first, `"mode":"idle"`) {
		t.Fatalf("expected initial idle snapshot, got %s", first)
	}

	status, _ := requestJSON(t, env.engine, http.MethodPost, "/api/focus/start", user.Token, map[string]int{"minutes": 5})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d", status)
	}

	next := nextData(t, lines)
	if !strings.Contains(next, `"mode":"focus"`) {
		t.Fatalf("expected focus snapshot, got %s", next)
	}
}

func nextData(t *testing.T, lines *bufio.Scanner) string {
	t.Helper()
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "data:") {
			return strings.TrimPrefix(line, "data:")
		}
	}
	t.Fatalf("stream ended: %v", lines.Err())
	return ""
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	clock := timertest.NewClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	scheduler := timertest.NewScheduler()

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	outbox := notify.NewOutbox(repository.NewNotificationRepository(database), clock)
	registry := service.NewRegistry(service.RegistryConfig{
		Backend:   repository.NewKVRepository(database),
		Outbox:    outbox,
		History:   sessionRepo,
		Clock:     clock,
		Scheduler: scheduler,
	})
	t.Cleanup(registry.Close)

	authService := service.NewAuthService(userRepo, "test-secret", 24*time.Hour)
	focusService := service.NewFocusService(registry, sessionRepo, outbox, clock)

	authHandler := handler.NewAuthHandler(authService)
	focusHandler := handler.NewFocusHandler(focusService)

	return testEnv{
		engine:    router.New(authService, authHandler, focusHandler, []string{"http://localhost:5173"}),
		clock:     clock,
		scheduler: scheduler,
	}
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func getState(t *testing.T, server http.Handler, token string) stateEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/focus/state", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get state failed with status %d: %s", status, string(body))
	}
	return decodeState(t, body)
}

func getHistory(t *testing.T, server http.Handler, token string) historyEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/focus/history?limit=10", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get history failed with status %d: %s", status, string(body))
	}
	var history historyEnvelope
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	return history
}

func decodeState(t *testing.T, body []byte) stateEnvelope {
	t.Helper()
	var stateResp stateEnvelope
	if err := json.Unmarshal(body, &stateResp); err != nil {
		t.Fatalf("unmarshal state response: %v", err)
	}
	return stateResp
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
