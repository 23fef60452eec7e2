package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"calling-assistant/internal/appointments"

	"github.com/wneessen/go-mail"
)

// ErrDisabled is returned when no mail transport is configured.
var ErrDisabled = errors.New("email notifications are disabled")

// SMTPConfig is the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends booking confirmations with a calendar invite attached.
type Mailer struct {
	cfg SMTPConfig
	loc *time.Location
	log *slog.Logger
	now func() time.Time
}

// NewMailer interprets appointment times in loc (UTC when nil).
func NewMailer(cfg SMTPConfig, loc *time.Location, log *slog.Logger) *Mailer {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Mailer{cfg: cfg, loc: loc, log: log, now: time.Now}
}

func (m *Mailer) NotifyBooked(ctx context.Context, a appointments.Appointment, org appointments.Organizer) error {
	msg, err := m.message(a, org)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	m.log.Info("booking confirmation sent", "appointment_id", a.ID, "to", org.Email)
	return nil
}

func (m *Mailer) message(a appointments.Appointment, org appointments.Organizer) (*mail.Msg, error) {
	invite, err := Invite(a, org, m.loc, m.now())
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(org.Email); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Appointment booked: %s on %s at %s", a.Title, a.Date, a.StartTime))
	msg.SetBodyString(mail.TypeTextPlain, describe(a))
	msg.AddAlternativeString(mail.ContentType("text/calendar; method=REQUEST"), invite)
	msg.AttachReadSeeker("invite.ics", bytes.NewReader([]byte(invite)))
	return msg, nil
}

// Disabled satisfies appointments.Notifier when SMTP is not configured.
type Disabled struct{}

func (Disabled) NotifyBooked(context.Context, appointments.Appointment, appointments.Organizer) error {
	return ErrDisabled
}
