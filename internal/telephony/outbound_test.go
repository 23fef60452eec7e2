package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"calling-assistant/internal/calls"
)

type fakeDispatcher struct {
	reqs []DispatchRequest
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req DispatchRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return "AD_1", nil
}

func newTestOutbound(d Dispatcher) (*Outbound, *calls.Service) {
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	o := NewOutbound(d, svc, nil, nil)
	o.now = func() time.Time { return time.Date(2025, 11, 5, 14, 3, 9, 0, time.UTC) }
	o.suffix = func() string { return "a1b2c3d4" }
	return o, svc
}

func TestOutbound_InitiateQueuesCall(t *testing.T) {
	ctx := context.Background()
	d := &fakeDispatcher{}
	o, svc := newTestOutbound(d)

	res, err := o.Initiate(ctx, 7, InitiateRequest{PhoneNumber: "+1 (555) 000-1111", Voice: "rosa", Context: "dentist"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if res.RoomName != "call-7-20251105140309-a1b2c3d4" || res.DispatchID != "AD_1" {
		t.Fatalf("unexpected result %+v", res)
	}

	if len(d.reqs) != 1 || d.reqs[0].Room != res.RoomName {
		t.Fatalf("unexpected dispatches %+v", d.reqs)
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(d.reqs[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["phone_number"] != "+15550001111" || meta["call_context"] != "dentist" {
		t.Fatalf("unexpected metadata %v", meta)
	}

	c, err := svc.Get(ctx, res.RoomName, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != calls.StatusQueued || c.VoiceName == nil || *c.VoiceName != "rosa" {
		t.Fatalf("unexpected call %+v", c)
	}
}

func TestOutbound_RejectsBadNumber(t *testing.T) {
	d := &fakeDispatcher{}
	o, _ := newTestOutbound(d)
	for _, n := range []string{"", "abc", "12"} {
		if _, err := o.Initiate(context.Background(), 7, InitiateRequest{PhoneNumber: n}); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%q: expected ErrInvalidRequest, got %v", n, err)
		}
	}
	if len(d.reqs) != 0 {
		t.Fatalf("nothing should be dispatched")
	}
}

func TestOutbound_DispatchFailureEndsRecord(t *testing.T) {
	ctx := context.Background()
	o, svc := newTestOutbound(&fakeDispatcher{err: errors.New("twirp: unavailable")})

	_, err := o.Initiate(ctx, 7, InitiateRequest{PhoneNumber: "+15550001111"})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	c, err := svc.Get(ctx, "call-7-20251105140309-a1b2c3d4", 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != calls.StatusEnded || c.EndedAt == nil {
		t.Fatalf("expected ended record, got %+v", c)
	}
}

// recordingDispatcher checks the call row exists when the agent is sent.
type recordingDispatcher struct {
	svc   *calls.Service
	found bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	_, err := d.svc.Get(ctx, req.Room, 7)
	d.found = err == nil
	return "AD_2", nil
}

func TestOutbound_RecordExistsBeforeDispatch(t *testing.T) {
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	d := &recordingDispatcher{svc: svc}
	o := NewOutbound(d, svc, nil, nil)

	if _, err := o.Initiate(context.Background(), 7, InitiateRequest{PhoneNumber: "+15550001111"}); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !d.found {
		t.Fatalf("expected queued record before dispatch")
	}
}

func TestOutbound_SameSecondCallsGetDistinctRooms(t *testing.T) {
	ctx := context.Background()
	d := &fakeDispatcher{}
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	o := NewOutbound(d, svc, nil, nil)
	o.now = func() time.Time { return time.Date(2025, 11, 5, 14, 3, 9, 0, time.UTC) }

	first, err := o.Initiate(ctx, 7, InitiateRequest{PhoneNumber: "+15550001111"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := o.Initiate(ctx, 7, InitiateRequest{PhoneNumber: "+15550002222"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.RoomName == second.RoomName {
		t.Fatalf("expected distinct rooms, both %q", first.RoomName)
	}
	for _, room := range []string{first.RoomName, second.RoomName} {
		if !strings.HasPrefix(room, "call-7-20251105140309-") {
			t.Fatalf("unexpected room %q", room)
		}
	}
	if len(d.reqs) != 2 || d.reqs[0].Room == d.reqs[1].Room {
		t.Fatalf("unexpected dispatches %+v", d.reqs)
	}
	page, _ := svc.List(ctx, 7, 1, 10)
	if page.Total != 2 {
		t.Fatalf("expected 2 records, got %d", page.Total)
	}
}

func TestOutbound_DuplicateRoomIsNotDispatched(t *testing.T) {
	d := &fakeDispatcher{}
	o, _ := newTestOutbound(d)

	if _, err := o.Initiate(context.Background(), 7, InitiateRequest{PhoneNumber: "+15550001111"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := o.Initiate(context.Background(), 7, InitiateRequest{PhoneNumber: "+15550002222"})
	if !errors.Is(err, calls.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if len(d.reqs) != 1 {
		t.Fatalf("second agent must not be dispatched, got %d", len(d.reqs))
	}
}
