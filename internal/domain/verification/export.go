package verification

import (
	"encoding/csv"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

var csvHeader = []string{
	"patient_key", "vaccine_type", "course_state", "dose_index", "event_id", "event_status",
	"expected_date", "actual_date", "matches", "day_offset", "entry_state",
	"proposed_date", "next_due_date", "error",
}

// WriteCSV writes one row per reconciled entry, and one row for each skipped
// course. Output starts with a UTF-8 byte order mark so spreadsheet tools
// read Thai patient data correctly.
func WriteCSV(w io.Writer, r *Report) error {
	bw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(bw)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range r.Courses {
		next := dateString(c.NextDueDate)
		if len(c.Entries) == 0 {
			row := []string{c.PatientKey, c.VaccineType, string(c.State), "", "", "", "", "", "", "", "", "", next, c.Error}
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}
		proposed := make(map[int]doseschedule.Date, len(c.Proposals))
		for _, p := range c.Proposals {
			proposed[p.DoseIndex] = p.CorrectDate
		}
		for _, e := range c.Entries {
			var prop string
			if d, ok := proposed[e.DoseIndex]; ok {
				prop = d.String()
			}
			row := []string{
				c.PatientKey, c.VaccineType, string(c.State),
				strconv.Itoa(e.DoseIndex), e.EventID, string(e.EventStatus),
				e.ExpectedDate.String(), dateString(e.ActualDate),
				strconv.FormatBool(e.Matches), strconv.Itoa(e.DayOffset), string(e.State),
				prop, next, c.Error,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Close()
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func dateString(d *doseschedule.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
