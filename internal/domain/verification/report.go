package verification

import (
	"time"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

// CourseState summarises one course in a report.
type CourseState string

const (
	CourseOK       CourseState = "ok"
	CourseMismatch CourseState = "mismatch"
	CourseSkipped  CourseState = "skipped"
)

// CourseReport is the reconciliation outcome for one patient and vaccine.
type CourseReport struct {
	PatientKey  string                            `json:"patient_key"`
	VaccineType string                            `json:"vaccine_type"`
	State       CourseState                       `json:"state"`
	Entries     []doseschedule.Entry              `json:"entries"`
	NextDueDate *doseschedule.Date                `json:"next_due_date"`
	Proposals   []doseschedule.CorrectionProposal `json:"proposals"`
	Error       string                            `json:"error,omitempty"`
}

// Summary counts courses by state.
type Summary struct {
	Courses    int `json:"courses"`
	Matching   int `json:"matching"`
	Mismatched int `json:"mismatched"`
	Skipped    int `json:"skipped"`
	Proposals  int `json:"proposals"`
}

// Report is the result of one verification run.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	VaccineType string         `json:"vaccine_type,omitempty"`
	Pairing     string         `json:"pairing"`
	Summary     Summary        `json:"summary"`
	Courses     []CourseReport `json:"courses"`
}

// Proposals flattens every course's proposals in report order.
func (r *Report) Proposals() []doseschedule.CorrectionProposal {
	var out []doseschedule.CorrectionProposal
	for _, c := range r.Courses {
		out = append(out, c.Proposals...)
	}
	return out
}

func (r *Report) summarize() {
	s := Summary{Courses: len(r.Courses)}
	for _, c := range r.Courses {
		switch c.State {
		case CourseOK:
			s.Matching++
		case CourseMismatch:
			s.Mismatched++
		case CourseSkipped:
			s.Skipped++
		}
		s.Proposals += len(c.Proposals)
	}
	r.Summary = s
}
