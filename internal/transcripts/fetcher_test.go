package transcripts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"calling-assistant/internal/calls"
	"calling-assistant/pkg/logger"
)

type mapBlobs map[string]string

func (m mapBlobs) ReadBlob(_ context.Context, path string) ([]byte, error) {
	v, ok := m[path]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return []byte(v), nil
}

func setup(t *testing.T, blobs BlobReader) (*Fetcher, *calls.Service) {
	t.Helper()
	svc := calls.NewService(calls.NewMemoryRepo(), logger.Discard())
	if _, err := svc.Create(context.Background(), calls.NewCall{UserID: 7, CallID: "call-001"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	return NewFetcher(2*time.Second, blobs, svc, logger.Discard()), svc
}

func TestFetchAndStore_FallsBackToBlobOn404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, svc := setup(t, mapBlobs{"transcripts/call-001.json": `{"items":[{"role":"user","text":"hi"}]}`})

	doc, ok := f.FetchAndStore(context.Background(), "call-001", srv.URL+"/t.json", "transcripts/call-001.json")
	if !ok || doc == nil {
		t.Fatalf("expected blob document")
	}
	var parsed struct {
		Items []map[string]string `json:"items"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil || len(parsed.Items) != 1 {
		t.Fatalf("unexpected doc %s: %v", doc, err)
	}

	got, _ := svc.Get(context.Background(), "call-001", 7)
	if string(got.Transcript) != string(doc) {
		t.Fatalf("transcript not persisted: %s", got.Transcript)
	}
}

func TestFetchAndStore_PrefersURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"source":"url"}`))
	}))
	defer srv.Close()

	f, _ := setup(t, mapBlobs{"b": `{"source":"blob"}`})
	doc, ok := f.FetchAndStore(context.Background(), "call-001", srv.URL, "b")
	if !ok || string(doc) != `{"source":"url"}` {
		t.Fatalf("expected url document, got %s", doc)
	}
}

func TestFetchAndStore_DegradesToNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	f, svc := setup(t, mapBlobs{})

	cases := []struct{ url, blob string }{
		{"", ""},
		{srv.URL, ""},
		{"", "missing.json"},
		{"http://127.0.0.1:1/unreachable", "missing.json"},
	}
	for _, tc := range cases {
		if doc, ok := f.FetchAndStore(context.Background(), "call-001", tc.url, tc.blob); ok || doc != nil {
			t.Fatalf("expected none for %+v, got %s", tc, doc)
		}
	}

	got, _ := svc.Get(context.Background(), "call-001", 7)
	if got.Transcript != nil {
		t.Fatalf("expected transcript to stay null")
	}
}

func TestFetchAndStore_UnknownCall(t *testing.T) {
	f, _ := setup(t, mapBlobs{"b": `{}`})
	if _, ok := f.FetchAndStore(context.Background(), "ghost", "", "b"); ok {
		t.Fatalf("expected not stored for unknown call")
	}
}

func TestFetchAndStore_TimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	svc := calls.NewService(calls.NewMemoryRepo(), logger.Discard())
	_, _ = svc.Create(context.Background(), calls.NewCall{UserID: 1, CallID: "c"})
	f := NewFetcher(50*time.Millisecond, mapBlobs{"b": `{"ok":true}`}, svc, logger.Discard())

	doc, ok := f.FetchAndStore(context.Background(), "c", srv.URL, "b")
	if !ok || string(doc) != `{"ok":true}` {
		t.Fatalf("expected blob fallback after timeout, got %s", doc)
	}
}
