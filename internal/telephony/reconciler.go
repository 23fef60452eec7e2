package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"calling-assistant/internal/calls"
)

// CallUpdater is the slice of the call store the reconciler writes through.
type CallUpdater interface {
	Update(ctx context.Context, callID string, u calls.Update) (int64, bool, error)
}

// Outcome is what the webhook acknowledges back to the platform.
type Outcome struct {
	Message string
	CallID  string

	// Applied is true when a row was updated.
	Applied bool
}

// Reconciler turns one lifecycle event into at most one targeted call update.
type Reconciler struct {
	calls  CallUpdater
	bucket string
	log    *slog.Logger
}

// NewReconciler wires the store. bucket qualifies bare recording paths.
func NewReconciler(store CallUpdater, bucket string, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{calls: store, bucket: bucket, log: log}
}

// Apply only errors when the store fails; every other case is acknowledged.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case RoomStarted:
		if e.CallID == "" {
			return ignoredMissingRoom(EventRoomStarted), nil
		}
		u := calls.Update{Status: status(calls.StatusInProgress), StartedAt: e.StartedAt}
		return r.update(ctx, e.CallID, u, fmt.Sprintf("Room %s started", e.CallID))

	case ParticipantJoined:
		if e.CallID == "" || !strings.HasPrefix(e.Identity, SIPIdentityPrefix) {
			return Outcome{Message: "Participant joined (ignored)", CallID: e.CallID}, nil
		}
		return r.update(ctx, e.CallID, calls.Update{Status: status(calls.StatusConnected)}, "Caller connected")

	case ParticipantLeft:
		if e.CallID == "" || !strings.HasPrefix(e.Identity, SIPIdentityPrefix) {
			return Outcome{Message: "Participant left (ignored)", CallID: e.CallID}, nil
		}
		return r.update(ctx, e.CallID, calls.Update{Status: status(calls.StatusEnded)}, "Call ended")

	case RoomFinished:
		if e.CallID == "" {
			return ignoredMissingRoom(EventRoomFinished), nil
		}
		u := calls.Update{Status: status(calls.StatusCompleted), EndedAt: e.EndedAt}
		if e.CreatedAt != nil && e.EndedAt != nil {
			d := e.EndedAt.Sub(*e.CreatedAt).Seconds()
			if d < 0 {
				d = 0
			}
			u.Duration = &d
		}
		return r.update(ctx, e.CallID, u, fmt.Sprintf("Room %s completed", e.CallID))

	case EgressEnded:
		if e.RoomName == "" || e.Location == "" {
			r.log.Info("egress ended without a usable recording", "room", e.RoomName)
			return Outcome{Message: "Event egress_ended ignored", CallID: e.RoomName}, nil
		}
		url := r.recordingURL(e.Location)
		return r.update(ctx, e.RoomName, calls.Update{RecordingURL: &url}, "Recording URL stored")

	case Ignored:
		return Outcome{Message: fmt.Sprintf("Event %s ignored", e.Name)}, nil

	case Unrecognized:
		r.log.Warn("unhandled webhook event", "event", e.Name)
		return Outcome{Message: fmt.Sprintf("Event %s ignored", e.Name)}, nil

	default:
		r.log.Error("webhook event variant without a handler", "type", fmt.Sprintf("%T", ev))
		return Outcome{Message: "Event ignored"}, nil
	}
}

func (r *Reconciler) update(ctx context.Context, callID string, u calls.Update, msg string) (Outcome, error) {
	_, ok, err := r.calls.Update(ctx, callID, u)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply webhook to %s: %w", callID, err)
	}
	if !ok {
		r.log.Info("webhook for unknown call", "call_id", callID)
	}
	return Outcome{Message: msg, CallID: callID, Applied: ok}, nil
}

// recordingURL keeps absolute URLs and qualifies bare object paths against
// the configured bucket.
func (r *Reconciler) recordingURL(location string) string {
	if strings.HasPrefix(location, "http") || r.bucket == "" {
		return location
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", r.bucket, strings.TrimPrefix(location, "/"))
}

func ignoredMissingRoom(event string) Outcome {
	return Outcome{Message: fmt.Sprintf("Event %s ignored: missing room name", event)}
}

func status(s calls.Status) *calls.Status { return &s }
