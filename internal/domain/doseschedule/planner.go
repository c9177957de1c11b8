package doseschedule

// CorrectionProposal is one suggested appointment-date change, held for
// human review before anything is written.
//
// Proposals of one course are applied together. Moving a single appointment
// re-sorts the course, so under positional pairing a later appointment can
// slide into the corrected dose's slot and the dose still mismatches.
// CourseProposals carries the size of the course's plan so writers can
// refuse a partial subset.
type CorrectionProposal struct {
	EventID     string `json:"event_id"`
	PatientKey  string `json:"patient_key"`
	VaccineType string `json:"vaccine_type"`
	DoseIndex   int    `json:"dose_index"`
	Status      Status `json:"status"`
	CurrentDate Date   `json:"current_date"`
	CorrectDate Date   `json:"correct_date"`
	DayOffset   int    `json:"day_offset"`
	// CourseProposals is the number of proposals planned for this course.
	CourseProposals int `json:"course_proposals"`
}

// CourseKey identifies the proposal's course as "patientKey/vaccineType".
func (p CorrectionProposal) CourseKey() string {
	return p.PatientKey + "/" + p.VaccineType
}

// PlanCorrections proposes a new date for every mismatched entry whose event
// is still scheduled or pending. Completed and cancelled events are never
// proposed for change.
func PlanCorrections(entries []Entry, events []DoseEvent) []CorrectionProposal {
	byID := make(map[string]DoseEvent, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	var proposals []CorrectionProposal
	for _, entry := range entries {
		if entry.Matches || entry.ActualDate == nil || entry.EventID == "" {
			continue
		}
		ev, ok := byID[entry.EventID]
		if !ok || !ev.Status.Correctable() {
			continue
		}
		proposals = append(proposals, CorrectionProposal{
			EventID:     ev.ID,
			PatientKey:  ev.PatientKey,
			VaccineType: ev.VaccineType,
			DoseIndex:   entry.DoseIndex,
			Status:      ev.Status,
			CurrentDate: ev.Date,
			CorrectDate: entry.ExpectedDate,
			DayOffset:   entry.DayOffset,
		})
	}
	for i := range proposals {
		proposals[i].CourseProposals = len(proposals)
	}
	return proposals
}

// ApplyCorrection returns a copy of events with the proposal's event moved to
// the corrected date. Applying the same proposal twice gives the same result.
// Apply every proposal of a course (see ApplyCorrections) before
// re-reconciling.
func ApplyCorrection(events []DoseEvent, p CorrectionProposal) []DoseEvent {
	out := make([]DoseEvent, len(events))
	copy(out, events)
	for i := range out {
		if out[i].ID == p.EventID && out[i].Status.Correctable() {
			out[i].Date = p.CorrectDate
		}
	}
	return out
}

// ApplyCorrections applies every proposal in turn.
func ApplyCorrections(events []DoseEvent, proposals []CorrectionProposal) []DoseEvent {
	out := append([]DoseEvent(nil), events...)
	for _, p := range proposals {
		out = ApplyCorrection(out, p)
	}
	return out
}
