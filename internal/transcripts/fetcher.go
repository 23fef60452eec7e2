package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"calling-assistant/internal/calls"
)

// maxDocumentBytes caps how much of a transcript response is read.
const maxDocumentBytes = 8 << 20

var ErrBlobNotFound = errors.New("blob not found")

// BlobReader reads an object by path from the configured bucket.
type BlobReader interface {
	ReadBlob(ctx context.Context, path string) ([]byte, error)
}

// Updater persists the fetched document onto the call record.
type Updater interface {
	Update(ctx context.Context, callID string, u calls.Update) (int64, bool, error)
}

// Fetcher resolves a call's transcript from its URL, falling back to the
// blob path, and stores the first document that parses.
type Fetcher struct {
	http  *http.Client
	blobs BlobReader
	calls Updater
	log   *slog.Logger
}

func NewFetcher(timeout time.Duration, blobs BlobReader, store Updater, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		http:  &http.Client{Timeout: timeout},
		blobs: blobs,
		calls: store,
		log:   log,
	}
}

// FetchAndStore never fails its caller. ok is false when no source produced
// a document or the document could not be stored.
func (f *Fetcher) FetchAndStore(ctx context.Context, callID, url, blob string) (json.RawMessage, bool) {
	log := f.log.With("call_id", callID)

	doc, source := f.resolve(ctx, log, strings.TrimSpace(url), strings.TrimSpace(blob))
	if doc == nil {
		log.Warn("transcript unavailable", "has_url", url != "", "has_blob", blob != "")
		return nil, false
	}

	if _, ok, err := f.calls.Update(ctx, callID, calls.Update{Transcript: doc}); err != nil {
		log.Error("transcript store failed", "source", source, "err", err)
		return nil, false
	} else if !ok {
		log.Warn("transcript fetched for unknown call", "source", source)
		return nil, false
	}
	log.Info("transcript stored", "source", source, "bytes", len(doc))
	return doc, true
}

func (f *Fetcher) resolve(ctx context.Context, log *slog.Logger, url, blob string) (json.RawMessage, string) {
	if url != "" {
		doc, err := f.fromURL(ctx, url)
		if err == nil {
			return doc, "url"
		}
		log.Warn("transcript url fetch failed", "err", err)
	}
	if blob != "" && f.blobs != nil {
		doc, err := f.fromBlob(ctx, blob)
		if err == nil {
			return doc, "blob"
		}
		log.Warn("transcript blob read failed", "blob", blob, "err", err)
	}
	return nil, ""
}

func (f *Fetcher) fromURL(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, err
	}
	return parseDocument(body)
}

func (f *Fetcher) fromBlob(ctx context.Context, path string) (json.RawMessage, error) {
	body, err := f.blobs.ReadBlob(ctx, path)
	if err != nil {
		return nil, err
	}
	return parseDocument(body)
}

func parseDocument(b []byte) (json.RawMessage, error) {
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) == 0 || !json.Valid(b) {
		return nil, errors.New("transcript is not valid json")
	}
	return json.RawMessage(b), nil
}
