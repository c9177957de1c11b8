// Package reminder sends upcoming-appointment and next-dose-due reminders.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaxsched/vaxsched/internal/domain/appointment"
	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/platform/notification"
)

// AppointmentSource is the subset of the appointment service a sweep reads.
type AppointmentSource interface {
	ListDueBetween(ctx context.Context, from, to doseschedule.Date) ([]*appointment.Appointment, error)
	DoseEvents(ctx context.Context, vaccineType string) ([]doseschedule.DoseEvent, error)
	FindPatientByKey(ctx context.Context, key string) (*appointment.Patient, error)
}

type ScheduleSource interface {
	ActiveLookup(ctx context.Context) (map[string]doseschedule.Schedule, error)
}

// Notifier sends rendered templates and remembers what was delivered.
type Notifier interface {
	Sent(dedupeKey string) bool
	SendFromTemplate(ctx context.Context, channel notification.Channel, recipient, templateID string, data map[string]string, dedupeKey string) (*notification.Notification, error)
}

// Failure is one reminder that could not be delivered.
type Failure struct {
	PatientKey  string `json:"patient_key"`
	VaccineType string `json:"vaccine_type"`
	Reason      string `json:"reason"`
}

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Sent     int       `json:"sent"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures"`
}

type Reminder struct {
	appointments AppointmentSource
	schedules    ScheduleSource
	notifier     Notifier
	leadDays     int
	loc          *time.Location
	logger       zerolog.Logger
}

// New returns a Reminder that looks leadDays ahead. Dates are taken in loc.
func New(appts AppointmentSource, schedules ScheduleSource, notifier Notifier, leadDays int, loc *time.Location, logger zerolog.Logger) *Reminder {
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{
		appointments: appts,
		schedules:    schedules,
		notifier:     notifier,
		leadDays:     leadDays,
		loc:          loc,
		logger:       logger.With().Str("component", "reminder").Logger(),
	}
}

// Today is the current date in the hospital time zone.
func (r *Reminder) Today() doseschedule.Date {
	return doseschedule.DateOf(time.Now().In(r.loc))
}

type recipient struct {
	name    string
	channel notification.Channel
	address string
}

func contact(name string, lineUserID, phone *string) (recipient, bool) {
	switch {
	case lineUserID != nil && *lineUserID != "":
		return recipient{name: name, channel: notification.ChannelLine, address: *lineUserID}, true
	case phone != nil && *phone != "":
		return recipient{name: name, channel: notification.ChannelSMS, address: *phone}, true
	}
	return recipient{}, false
}

// Sweep sends a reminder for every scheduled or pending appointment dated
// within [today, today+leadDays], and a next-dose-due reminder for every
// unfinished course with no upcoming appointment whose next dose falls in
// the same window. Per-recipient failures are collected in the result.
func (r *Reminder) Sweep(ctx context.Context, today doseschedule.Date) (*SweepResult, error) {
	until := today.AddDays(r.leadDays)
	res := &SweepResult{Failures: []Failure{}}

	events, err := r.appointments.DoseEvents(ctx, "")
	if err != nil {
		return nil, err
	}
	courses := doseschedule.GroupCourses(events)
	doseOf := make(map[string]int)
	for _, c := range courses {
		for i, ev := range c.Attendable() {
			doseOf[ev.ID] = i + 1
		}
	}

	due, err := r.appointments.ListDueBetween(ctx, today, until)
	if err != nil {
		return nil, fmt.Errorf("list due appointments: %w", err)
	}
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dose := doseOf[a.ID.String()]
		if a.DoseNumber != nil {
			dose = *a.DoseNumber
		}
		key := "appt:" + a.ID.String() + ":" + a.AppointmentDate.String()
		rcpt, ok := contact(a.PatientName, a.PatientLineUserID, a.PatientPhone)
		r.send(ctx, res, a.PatientKey(), a.VaccineType, rcpt, ok, notification.TemplateDoseReminder, dose, a.AppointmentDate, key)
	}

	lookup, err := r.schedules.ActiveLookup(ctx)
	if err != nil {
		return res, err
	}
	for _, c := range courses {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		next, ok := r.nextDue(c, lookup, today)
		if !ok || next.Before(today) || next.After(until) {
			continue
		}
		key := "due:" + c.Key() + ":" + next.String()
		var rcpt recipient
		var found bool
		if p, err := r.appointments.FindPatientByKey(ctx, c.PatientKey); err == nil {
			rcpt, found = contact(p.FullName, p.LineUserID, p.Phone)
		}
		r.send(ctx, res, c.PatientKey, c.VaccineType, rcpt, found, notification.TemplateNextDoseDue, c.DosesReceived()+1, next, key)
	}

	r.logger.Info().
		Str("date", today.String()).
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failures)).
		Msg("reminder sweep complete")
	return res, nil
}

// nextDue returns the next expected dose date for a course that still needs
// one and has nothing booked from today on.
func (r *Reminder) nextDue(c doseschedule.Course, lookup map[string]doseschedule.Schedule, today doseschedule.Date) (doseschedule.Date, bool) {
	sched, ok := lookup[c.VaccineType]
	if !ok || c.IsComplete(sched) {
		return doseschedule.Date{}, false
	}
	for _, ev := range c.Attendable() {
		if ev.Status.Correctable() && !ev.Date.Before(today) {
			return doseschedule.Date{}, false
		}
	}
	first, ok := c.FirstDoseDate()
	if !ok {
		return doseschedule.Date{}, false
	}
	next, err := doseschedule.CalculateNextDueDate(sched, first, c.DosesReceived())
	if err != nil || next == nil {
		return doseschedule.Date{}, false
	}
	return *next, true
}

func (r *Reminder) send(ctx context.Context, res *SweepResult, patientKey, vaccineType string, rcpt recipient, hasContact bool, templateID string, dose int, date doseschedule.Date, key string) {
	if r.notifier.Sent(key) {
		res.Skipped++
		return
	}
	fail := func(reason string) {
		r.logger.Warn().
			Str("patient_key", patientKey).
			Str("vaccine_type", vaccineType).
			Str("reason", reason).
			Msg("reminder not delivered")
		res.Failures = append(res.Failures, Failure{PatientKey: patientKey, VaccineType: vaccineType, Reason: reason})
	}
	if !hasContact {
		fail("no LINE user id or phone")
		return
	}
	data := map[string]string{
		"patient_name": rcpt.name,
		"vaccine":      vaccineType,
		"dose":         strconv.Itoa(dose),
		"date":         date.String(),
	}
	if _, err := r.notifier.SendFromTemplate(ctx, rcpt.channel, rcpt.address, templateID, data, key); err != nil {
		fail(err.Error())
		return
	}
	res.Sent++
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (r *Reminder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx, r.Today()); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reminder sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
