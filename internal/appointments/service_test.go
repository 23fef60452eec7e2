package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Appointment
	err  error
}

func (n *recordingNotifier) NotifyBooked(_ context.Context, a Appointment, _ Organizer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a)
	return nil
}

func booking(userID int64, date, start, end string) BookingRequest {
	return BookingRequest{
		UserID:         userID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		OrganizerName:  "Dana",
		OrganizerEmail: "dana@example.com",
	}
}

func TestBook_OverlappingSecondBookingConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	n := &recordingNotifier{}
	svc := NewService(repo, n, nil)

	res, err := svc.Book(ctx, booking(3, "2025-11-05", "14:00", "15:00"))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if res.AppointmentID == 0 || !res.EmailSent {
		t.Fatalf("unexpected result: %+v", res)
	}

	taken, err := svc.CheckConflict(ctx, 3, "2025-11-05", "14:30", "15:30")
	if err != nil || !taken {
		t.Fatalf("expected conflict, got %v %v", taken, err)
	}
	if _, err := svc.Book(ctx, booking(3, "2025-11-05", "14:30", "15:30")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected one row, got %d", repo.Len())
	}
}

func TestBook_SameSlotTwice(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil, nil)

	if _, err := svc.Book(ctx, booking(1, "2025-11-05", "10:00", "11:00")); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.Book(ctx, booking(1, "2025-11-05", "10:00", "11:00")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected one row, got %d", repo.Len())
	}
}

func TestBook_AdjacentAndOtherUsersDoNotConflict(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil, nil)

	if _, err := svc.Book(ctx, booking(1, "2025-11-05", "10:00", "11:00")); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.Book(ctx, booking(1, "2025-11-05", "11:00", "12:00")); err != nil {
		t.Fatalf("adjacent: %v", err)
	}
	if _, err := svc.Book(ctx, booking(2, "2025-11-05", "10:00", "11:00")); err != nil {
		t.Fatalf("other user: %v", err)
	}
	if _, err := svc.Book(ctx, booking(1, "2025-11-06", "10:00", "11:00")); err != nil {
		t.Fatalf("other day: %v", err)
	}
}

func TestBook_ConcurrentRequestsForOneSlotCreateOneRow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil, nil)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, taken int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(ctx, booking(5, "2025-11-05", "09:00", "10:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || taken != workers-1 || repo.Len() != 1 {
		t.Fatalf("ok=%d taken=%d rows=%d", ok, taken, repo.Len())
	}
}

func TestBook_NotifierFailureKeepsAppointment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, &recordingNotifier{err: errors.New("smtp down")}, nil)

	res, err := svc.Book(ctx, booking(1, "2025-11-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.EmailSent {
		t.Fatalf("expected email_sent=false")
	}
	if repo.Len() != 1 {
		t.Fatalf("appointment should persist")
	}
}

func TestBook_DefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	n := &recordingNotifier{}
	svc := NewService(repo, n, nil)

	if _, err := svc.Book(ctx, BookingRequest{UserID: 1, Date: "2025-11-05", StartTime: "10:00", EndTime: "11:00"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected missing organizer_email to fail, got %v", err)
	}
	if _, err := svc.Book(ctx, booking(1, "2025-11-05", "11:00", "10:00")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected inverted slot to fail, got %v", err)
	}
	if _, err := svc.Book(ctx, booking(1, "05/11/2025", "10:00", "11:00")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected bad date to fail, got %v", err)
	}

	if _, err := svc.Book(ctx, booking(1, "2025-11-05", "10:00", "11:00")); err != nil {
		t.Fatalf("book: %v", err)
	}
	a := n.sent[0]
	if a.AttendeeName != "Valued Customer" || a.Title != "Appointment" || a.AttendeeEmail != "dana@example.com" {
		t.Fatalf("defaults not applied: %+v", a)
	}
}

func TestList_DefaultsToToday(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil, nil)
	svc.clock = func() time.Time { return time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC) }

	_, _ = svc.Book(ctx, booking(1, "2025-11-04", "10:00", "11:00"))
	_, _ = svc.Book(ctx, booking(1, "2025-11-06", "09:00", "10:00"))
	_, _ = svc.Book(ctx, booking(1, "2025-11-05", "15:00", "16:00"))
	_, _ = svc.Book(ctx, booking(1, "2025-11-05", "08:00", "09:00"))

	list, err := svc.List(ctx, 1, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
	if list[0].Date != "2025-11-05" || list[0].StartTime.String() != "08:00" || list[2].Date != "2025-11-06" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestAvailability_HourSlotsAroundBookings(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil, nil)
	_, _ = svc.Book(ctx, booking(1, "2025-11-05", "09:30", "10:30"))

	av, err := svc.Availability(ctx, 1, "2025-11-05")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(av.Booked) != 1 {
		t.Fatalf("expected one booked slot, got %v", av.Booked)
	}
	// 08..18 is ten hour slots; 09:00 and 10:00 overlap the booking.
	if len(av.Free) != 8 {
		t.Fatalf("expected 8 free slots, got %d: %v", len(av.Free), av.Free)
	}
	for _, f := range av.Free {
		if f.Start.String() == "09:00" || f.Start.String() == "10:00" {
			t.Fatalf("slot %s should be taken", f.Start)
		}
	}
}
