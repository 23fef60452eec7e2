package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calling-assistant/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
)

func newWebhookRouter(h WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/livekit", h.Handle)
	return r
}

func postWebhook(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/livekit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v body=%s", err, w.Body.String())
	}
	msg, _ := resp["message"].(string)
	return msg
}

func TestWebhookHandler_AppliesEvent(t *testing.T) {
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	_, _ = svc.Create(context.Background(), calls.NewCall{UserID: 7, CallID: "call-001"})
	r := newWebhookRouter(WebhookHandler{Reconciler: NewReconciler(svc, "", nil)})

	w := postWebhook(r, `{"event":"room_started","room":{"name":"call-001"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if got := message(t, w); got != "Room call-001 started" {
		t.Fatalf("unexpected message %q", got)
	}
	c, _ := svc.Get(context.Background(), "call-001", 7)
	if c.Status != calls.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", c.Status)
	}
}

func TestWebhookHandler_IrrelevantEventsAre200(t *testing.T) {
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	r := newWebhookRouter(WebhookHandler{Reconciler: NewReconciler(svc, "", nil)})

	for _, body := range []string{
		`{"event":"track_published","room":{"name":"call-x"}}`,
		`{"event":"room_started"}`,
		`{"event":"room_started","room":{"name":"unknown-call"}}`,
		`{}`,
	} {
		if w := postWebhook(r, body); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", body, w.Code)
		}
	}
}

func TestWebhookHandler_MalformedIs400(t *testing.T) {
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	r := newWebhookRouter(WebhookHandler{Reconciler: NewReconciler(svc, "", nil)})

	if w := postWebhook(r, `{"event":`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type countingStore struct {
	updates int
	fail    bool
}

func (s *countingStore) Update(context.Context, string, calls.Update) (int64, bool, error) {
	s.updates++
	if s.fail {
		return 0, false, errors.New("db down")
	}
	return 1, true, nil
}

func TestWebhookHandler_DuplicateDeliveryAppliedOnce(t *testing.T) {
	store := &countingStore{}
	r := newWebhookRouter(WebhookHandler{
		Reconciler: NewReconciler(store, "", nil),
		Dedup:      NewMemoryDeduper(time.Minute),
	})

	body := `{"id":"EV_abc","event":"room_started","room":{"name":"call-001"}}`
	postWebhook(r, body)
	w := postWebhook(r, body)
	if w.Code != http.StatusOK || message(t, w) != "Duplicate delivery ignored" {
		t.Fatalf("unexpected duplicate response %d %s", w.Code, w.Body.String())
	}
	if store.updates != 1 {
		t.Fatalf("expected 1 update, got %d", store.updates)
	}
}

func TestWebhookHandler_StoreFailureReleasesClaim(t *testing.T) {
	store := &countingStore{fail: true}
	r := newWebhookRouter(WebhookHandler{
		Reconciler: NewReconciler(store, "", nil),
		Dedup:      NewMemoryDeduper(time.Minute),
	})

	body := `{"id":"EV_retry","event":"room_started","room":{"name":"call-001"}}`
	if w := postWebhook(r, body); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	store.fail = false
	if w := postWebhook(r, body); w.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", w.Code)
	}
	if store.updates != 2 {
		t.Fatalf("expected retry to reach the store, got %d updates", store.updates)
	}
}

func TestWebhookHandler_RejectsUnsignedWhenVerifying(t *testing.T) {
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	r := newWebhookRouter(WebhookHandler{
		Reconciler: NewReconciler(svc, "", nil),
		Keys:       auth.NewSimpleKeyProvider("APIkey", "secret"),
	})

	if w := postWebhook(r, `{"event":"room_started","room":{"name":"call-001"}}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
