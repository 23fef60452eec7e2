package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"calling-assistant/internal/calls"
	"calling-assistant/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidRequest = errors.New("invalid call request")
	ErrBusy           = errors.New("too many calls in flight")
	ErrDispatchFailed = errors.New("agent dispatch failed")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// InitiateRequest is what a user supplies to place a call.
type InitiateRequest struct {
	PhoneNumber string `json:"outbound_number"`
	Voice       string `json:"voice"`
	Context     string `json:"context"`
	CallerName  string `json:"caller_name"`
	CallerEmail string `json:"caller_email"`
}

type InitiateResult struct {
	RoomName   string `json:"room_name"`
	DispatchID string `json:"dispatch_id"`
	Voice      Voice  `json:"voice"`
}

// CallRecorder is the slice of the call store initiation needs.
type CallRecorder interface {
	Create(ctx context.Context, in calls.NewCall) (int64, error)
	Update(ctx context.Context, callID string, u calls.Update) (int64, bool, error)
}

// Outbound places agent-driven calls and records them as queued.
type Outbound struct {
	dispatcher Dispatcher
	calls      CallRecorder
	voices     *Voices
	log        *slog.Logger

	// Optional per-user cap on dispatches in flight.
	rdb      redis.Scripter
	capLimit int
	capTTL   time.Duration

	now    func() time.Time
	suffix func() string
}

func NewOutbound(d Dispatcher, store CallRecorder, voices *Voices, log *slog.Logger) *Outbound {
	if voices == nil {
		voices = DefaultVoices()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Outbound{dispatcher: d, calls: store, voices: voices, log: log, now: time.Now, suffix: shortID}
}

// WithConcurrencyCap limits each user to limit dispatches in flight.
func (o *Outbound) WithConcurrencyCap(rdb redis.Scripter, limit int) *Outbound {
	o.rdb = rdb
	o.capLimit = limit
	o.capTTL = 30 * time.Second
	return o
}

// RoomName is the call id for a call placed by userID at t. The suffix keeps
// calls placed within the same second apart.
func RoomName(userID int64, t time.Time, suffix string) string {
	return fmt.Sprintf("call-%d-%s-%s", userID, t.Format("20060102150405"), suffix)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (o *Outbound) Initiate(ctx context.Context, userID int64, req InitiateRequest) (InitiateResult, error) {
	phone := normalizePhone(req.PhoneNumber)
	if userID <= 0 {
		return InitiateResult{}, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	if !phonePattern.MatchString(phone) {
		return InitiateResult{}, fmt.Errorf("%w: outbound_number must be a phone number", ErrInvalidRequest)
	}

	voice, known := o.voices.Resolve(req.Voice)
	if req.Voice != "" && !known {
		o.log.Warn("unknown voice, using default", "voice", req.Voice, "default", voice.Name)
	}

	room := RoomName(userID, o.now(), o.suffix())
	log := o.log.With("call_id", room, "user_id", userID)

	release, err := o.acquire(ctx, userID)
	if err != nil {
		return InitiateResult{}, err
	}
	defer release()

	meta, err := json.Marshal(map[string]any{
		"phone_number": phone,
		"call_context": req.Context,
		"user_id":      userID,
		"caller_name":  req.CallerName,
		"caller_email": req.CallerEmail,
		"voice_id":     voice.ID,
		"voice_name":   voice.Name,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	// The row must exist before the room does: room_started can arrive
	// while the dispatch request is still in flight.
	if _, err := o.calls.Create(ctx, calls.NewCall{
		UserID:    userID,
		CallID:    room,
		Status:    calls.StatusQueued,
		VoiceID:   voice.ID,
		VoiceName: voice.Name,
		ToNumber:  phone,
	}); err != nil {
		log.Error("call record create failed", "err", err)
		return InitiateResult{}, err
	}

	dispatchID, err := o.dispatcher.Dispatch(ctx, DispatchRequest{Room: room, Metadata: string(meta)})
	if err != nil {
		log.Error("agent dispatch failed", "err", err)
		o.abandon(context.WithoutCancel(ctx), room, log)
		return InitiateResult{}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	log.Info("call initiated", "dispatch_id", dispatchID, "voice", voice.Name)
	return InitiateResult{RoomName: room, DispatchID: dispatchID, Voice: voice}, nil
}

// abandon closes out a queued record whose agent never left.
func (o *Outbound) abandon(ctx context.Context, room string, log *slog.Logger) {
	status := calls.StatusEnded
	ended := o.now().UTC()
	zero := 0.0
	if _, _, err := o.calls.Update(ctx, room, calls.Update{Status: &status, EndedAt: &ended, Duration: &zero}); err != nil {
		log.Warn("abandoned call record not closed", "err", err)
	}
}

func (o *Outbound) acquire(ctx context.Context, userID int64) (func(), error) {
	if o.rdb == nil || o.capLimit <= 0 {
		return func() {}, nil
	}
	key := fmt.Sprintf("calls:dispatch:%d", userID)
	ok, err := utils.AcquireConcurrencyCap(ctx, o.rdb, key, o.capLimit, o.capTTL)
	if err != nil {
		// Fail open when Redis is unreachable.
		o.log.Warn("dispatch cap unavailable", "user_id", userID, "err", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		if err := utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), o.rdb, key); err != nil {
			o.log.Warn("dispatch cap release failed", "user_id", userID, "err", err)
		}
	}, nil
}

func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}
