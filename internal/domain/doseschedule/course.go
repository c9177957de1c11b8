package doseschedule

import (
	"fmt"
	"sort"
)

// Status is the lifecycle state of a dose event.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusScheduled Status = "scheduled"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusScheduled, StatusPending, StatusCancelled:
		return true
	}
	return false
}

// Correctable reports whether an event in this status may have its date
// rewritten. Completed history and cancelled events never are.
func (s Status) Correctable() bool {
	return s == StatusScheduled || s == StatusPending
}

// DoseEvent is an administered dose or a booked appointment.
type DoseEvent struct {
	ID          string `json:"id"`
	PatientKey  string `json:"patient_key"`
	VaccineType string `json:"vaccine_type"`
	Date        Date   `json:"date"`
	Status      Status `json:"status"`
}

// Course holds every event for one patient and vaccine, oldest first.
type Course struct {
	PatientKey  string      `json:"patient_key"`
	VaccineType string      `json:"vaccine_type"`
	Events      []DoseEvent `json:"events"`
}

// NewCourse copies events into a course sorted by date. Events on the same
// date keep a stable order by ID.
func NewCourse(patientKey, vaccineType string, events []DoseEvent) Course {
	sorted := make([]DoseEvent, len(events))
	copy(sorted, events)
	sortEvents(sorted)
	return Course{PatientKey: patientKey, VaccineType: vaccineType, Events: sorted}
}

func sortEvents(events []DoseEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if c := events[i].Date.Compare(events[j].Date); c != 0 {
			return c < 0
		}
		return events[i].ID < events[j].ID
	})
}

// Key identifies the course as "patientKey/vaccineType".
func (c Course) Key() string {
	return fmt.Sprintf("%s/%s", c.PatientKey, c.VaccineType)
}

// FirstDoseDate returns the date of the earliest completed event.
func (c Course) FirstDoseDate() (Date, bool) {
	for _, ev := range c.Events {
		if ev.Status == StatusCompleted {
			return ev.Date, true
		}
	}
	return Date{}, false
}

func (c Course) DosesReceived() int {
	n := 0
	for _, ev := range c.Events {
		if ev.Status == StatusCompleted {
			n++
		}
	}
	return n
}

func (c Course) IsComplete(s Schedule) bool {
	return c.DosesReceived() >= s.TotalDoses
}

// Attendable returns the events that take part in pairing: everything except
// cancelled appointments, in chronological order.
func (c Course) Attendable() []DoseEvent {
	out := make([]DoseEvent, 0, len(c.Events))
	for _, ev := range c.Events {
		if ev.Status != StatusCancelled {
			out = append(out, ev)
		}
	}
	return out
}

// GroupCourses splits a flat list of events into one course per
// (patient, vaccine), ordered by patient key then vaccine type.
func GroupCourses(events []DoseEvent) []Course {
	type key struct{ patient, vaccine string }
	grouped := make(map[key][]DoseEvent)
	var keys []key
	for _, ev := range events {
		k := key{ev.PatientKey, ev.VaccineType}
		if _, seen := grouped[k]; !seen {
			keys = append(keys, k)
		}
		grouped[k] = append(grouped[k], ev)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].patient != keys[j].patient {
			return keys[i].patient < keys[j].patient
		}
		return keys[i].vaccine < keys[j].vaccine
	})

	courses := make([]Course, 0, len(keys))
	for _, k := range keys {
		courses = append(courses, NewCourse(k.patient, k.vaccine, grouped[k]))
	}
	return courses
}
