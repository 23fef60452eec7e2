package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultAttendeeName = "Valued Customer"
	defaultTitle        = "Appointment"

	businessOpen  TimeOfDay = 8 * 60
	businessClose TimeOfDay = 18 * 60
	slotLength    TimeOfDay = 60
)

// Organizer is the person who receives the booking confirmation.
type Organizer struct {
	Name  string
	Email string
}

// Notifier delivers the booking confirmation. Failures never undo a booking.
type Notifier interface {
	NotifyBooked(ctx context.Context, a Appointment, org Organizer) error
}

// BookingRequest is what the voice agent sends. Dates and times are strings
// as received: YYYY-MM-DD and HH:MM.
type BookingRequest struct {
	UserID         int64
	Date           string
	StartTime      string
	EndTime        string
	AttendeeName   string
	Title          string
	Description    string
	Notes          string
	OrganizerName  string
	OrganizerEmail string
}

type BookingResult struct {
	AppointmentID int64 `json:"appointment_id"`
	EmailSent     bool  `json:"email_sent"`
}

// Availability is one day's schedule inside business hours.
type Availability struct {
	Date   string `json:"date"`
	Booked []Slot `json:"booked_slots"`
	Free   []Slot `json:"available_slots"`
}

type Service struct {
	repo     Repository
	notifier Notifier
	log      *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, log: log, clock: time.Now}
}

// CheckConflict reports whether [start, end) on date overlaps a scheduled
// appointment of userID.
func (s *Service) CheckConflict(ctx context.Context, userID int64, date, start, end string) (bool, error) {
	day, slot, err := parseSlot(userID, date, start, end)
	if err != nil {
		return false, err
	}
	return s.repo.HasConflict(ctx, userID, day, slot)
}

// Book validates req, books the slot atomically and then attempts the
// confirmation. ErrConflict means nothing was written.
func (s *Service) Book(ctx context.Context, req BookingRequest) (BookingResult, error) {
	req.OrganizerEmail = strings.TrimSpace(req.OrganizerEmail)
	if req.UserID <= 0 || req.Date == "" || req.StartTime == "" || req.EndTime == "" || req.OrganizerEmail == "" {
		return BookingResult{}, fmt.Errorf("%w: missing required fields", ErrInvalidArgument)
	}
	day, slot, err := parseSlot(req.UserID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return BookingResult{}, err
	}

	// Fast path; CreateIfFree repeats the check under a lock.
	taken, err := s.repo.HasConflict(ctx, req.UserID, day, slot)
	if err != nil {
		return BookingResult{}, err
	}
	if taken {
		return BookingResult{}, ErrConflict
	}

	in := NewAppointment{
		UserID:        req.UserID,
		Date:          day,
		Slot:          slot,
		AttendeeName:  orDefault(req.AttendeeName, defaultAttendeeName),
		AttendeeEmail: req.OrganizerEmail,
		Title:         orDefault(req.Title, defaultTitle),
		Description:   req.Description,
		Notes:         req.Notes,
	}
	id, err := s.repo.CreateIfFree(ctx, in)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.Info("booking lost race for slot", "user_id", req.UserID, "date", req.Date, "start", slot.Start.String())
		}
		return BookingResult{}, err
	}

	appt := Appointment{
		ID:            id,
		UserID:        in.UserID,
		Date:          formatDate(day),
		StartTime:     slot.Start,
		EndTime:       slot.End,
		AttendeeName:  in.AttendeeName,
		AttendeeEmail: in.AttendeeEmail,
		Title:         in.Title,
		Description:   in.Description,
		Notes:         in.Notes,
		Status:        StatusScheduled,
		CreatedAt:     s.clock().UTC(),
	}
	s.log.Info("appointment booked", "appointment_id", id, "user_id", req.UserID, "date", appt.Date, "start", slot.Start.String(), "end", slot.End.String())

	res := BookingResult{AppointmentID: id}
	if s.notifier != nil {
		org := Organizer{Name: req.OrganizerName, Email: req.OrganizerEmail}
		if err := s.notifier.NotifyBooked(ctx, appt, org); err != nil {
			s.log.Warn("booking confirmation not sent", "appointment_id", id, "err", err)
		} else {
			res.EmailSent = true
		}
	}
	return res, nil
}

// List returns appointments on or after from; an empty from means today.
func (s *Service) List(ctx context.Context, userID int64, from string) ([]Appointment, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	day := s.today()
	if from != "" {
		var err error
		if day, err = ParseDate(from); err != nil {
			return nil, err
		}
	}
	return s.repo.ListByUser(ctx, userID, day)
}

// Availability lists booked slots and the free hour-long slots between 08:00
// and 18:00 on date.
func (s *Service) Availability(ctx context.Context, userID int64, date string) (Availability, error) {
	if userID <= 0 {
		return Availability{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	day := s.today()
	if date != "" {
		var err error
		if day, err = ParseDate(date); err != nil {
			return Availability{}, err
		}
	}
	booked, err := s.repo.BookedSlots(ctx, userID, day)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Date: formatDate(day), Booked: booked, Free: freeSlots(booked)}, nil
}

func freeSlots(booked []Slot) []Slot {
	out := []Slot{}
	for start := businessOpen; start+slotLength <= businessClose; start += slotLength {
		candidate := Slot{Start: start, End: start + slotLength}
		free := true
		for _, b := range booked {
			if Overlaps(candidate, b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, candidate)
		}
	}
	return out
}

func (s *Service) today() time.Time {
	now := s.clock().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseSlot(userID int64, date, start, end string) (time.Time, Slot, error) {
	if userID <= 0 {
		return time.Time{}, Slot{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, Slot{}, err
	}
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return time.Time{}, Slot{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return time.Time{}, Slot{}, err
	}
	slot := Slot{Start: s, End: e}
	if !slot.Valid() {
		return time.Time{}, Slot{}, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidArgument)
	}
	return day, slot, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
