package telephony

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/encoding/protojson"
)

// DefaultAgentName is the worker registered for outbound calls.
const DefaultAgentName = "outbound-caller"

const createDispatchPath = "/twirp/livekit.AgentDispatchService/CreateDispatch"

// DispatchRequest asks the platform to send an agent into room.
type DispatchRequest struct {
	Room     string
	Metadata string
}

// Dispatcher starts an agent for a room and returns the dispatch id.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (string, error)
}

// LiveKitDispatcher calls the AgentDispatchService twirp endpoint.
type LiveKitDispatcher struct {
	baseURL   string
	apiKey    string
	apiSecret string
	agentName string
	http      *http.Client
}

// NewLiveKitDispatcher accepts ws(s) or http(s) server URLs.
func NewLiveKitDispatcher(serverURL, apiKey, apiSecret, agentName string, timeout time.Duration) *LiveKitDispatcher {
	if agentName == "" {
		agentName = DefaultAgentName
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LiveKitDispatcher{
		baseURL:   httpBaseURL(serverURL),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		agentName: agentName,
		http:      &http.Client{Timeout: timeout},
	}
}

func httpBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}

func (d *LiveKitDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	token, err := auth.NewAccessToken(d.apiKey, d.apiSecret).
		SetVideoGrant(&auth.VideoGrant{RoomAdmin: true, Room: req.Room}).
		SetValidFor(5 * time.Minute).
		ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign dispatch token: %w", err)
	}

	body, err := protojson.Marshal(&livekit.CreateAgentDispatchRequest{
		AgentName: d.agentName,
		Room:      req.Room,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("encode dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+createDispatchPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create dispatch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read dispatch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create dispatch: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out livekit.AgentDispatch
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode dispatch response: %w", err)
	}
	return out.GetId(), nil
}
