package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calling-assistant/internal/auth"
	"calling-assistant/internal/calls"
	"calling-assistant/internal/config"
	"calling-assistant/internal/telephony"

	"github.com/gin-gonic/gin"
)

func testRouter(t *testing.T, svc *calls.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		App:   config.AppConfig{Env: "local", Port: 8080},
		DB:    config.DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "assistant"},
		Auth:  config.AuthConfig{JWTSecret: "secret"},
		Agent: config.AgentConfig{APIKey: "agent-key"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	am, err := auth.NewManager(cfg.Auth)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	r := gin.New()
	registerRoutes(r, cfg, deps{
		auth:     am,
		calls:    svc,
		webhooks: telephony.WebhookHandler{Reconciler: telephony.NewReconciler(svc, "", nil)},
	})
	return r
}

func TestWebhookBurstIsNeverRateLimited(t *testing.T) {
	ctx := context.Background()
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	for i := 0; i < 10; i++ {
		if _, err := svc.Create(ctx, calls.NewCall{UserID: 7, CallID: fmt.Sprintf("call-%02d", i)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	r := testRouter(t, svc)

	codes := map[int]int{}
	for i := 0; i < 60; i++ {
		path := "/webhooks/livekit"
		if i%2 == 1 {
			path = "/webhooks/livekit-egress"
		}
		body := fmt.Sprintf(`{"event":"room_started","room":{"name":"call-%02d"}}`, i%10)
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.5:7880"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes[w.Code]++
	}
	if codes[http.StatusOK] != 60 {
		t.Fatalf("expected every delivery acknowledged with 200, got %v", codes)
	}

	c, err := svc.Get(ctx, "call-09", 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != calls.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", c.Status)
	}
}

func TestAgentRoutesAreRateLimited(t *testing.T) {
	r := testRouter(t, calls.NewService(calls.NewMemoryRepo(), nil))

	limited := false
	deadline := time.Now().Add(2 * time.Second)
	for i := 0; i < 100 && time.Now().Before(deadline); i++ {
		req := httptest.NewRequest(http.MethodGet, "/agent/appointments/7", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without agent key, got %d", w.Code)
		}
	}
	if !limited {
		t.Fatalf("expected agent burst to be rate limited")
	}
}
