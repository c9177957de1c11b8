package doseschedule

// Result is the full calculated course for one first-dose date.
type Result struct {
	VaccineType   string `json:"vaccine_type"`
	FirstDoseDate Date   `json:"first_dose_date"`
	DosesReceived int    `json:"doses_received"`
	// ExpectedDates[k-1] is the expected date of dose k.
	ExpectedDates []Date `json:"expected_dates"`
	NextDueDate   *Date  `json:"next_due_date"`
}

// CalculateDoseDate returns the expected date of dose doseIndex (1-based):
// the first dose date plus the sum of the first doseIndex-1 intervals.
func CalculateDoseDate(s Schedule, firstDoseDate Date, doseIndex int) (Date, error) {
	if err := s.Validate(); err != nil {
		return Date{}, err
	}
	if doseIndex < 1 || doseIndex > s.TotalDoses {
		return Date{}, &DoseIndexError{VaccineType: s.VaccineType, DoseIndex: doseIndex, TotalDoses: s.TotalDoses}
	}
	days := 0
	for _, interval := range s.DoseIntervals[:doseIndex-1] {
		days += interval
	}
	return firstDoseDate.AddDays(days), nil
}

// CalculateNextDueDate returns the expected date of the dose after
// dosesReceived, or nil once the course is complete.
func CalculateNextDueDate(s Schedule, firstDoseDate Date, dosesReceived int) (*Date, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if dosesReceived < 0 {
		return nil, &DoseIndexError{VaccineType: s.VaccineType, DoseIndex: dosesReceived + 1, TotalDoses: s.TotalDoses}
	}
	if dosesReceived >= s.TotalDoses {
		return nil, nil
	}
	next, err := CalculateDoseDate(s, firstDoseDate, dosesReceived+1)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Calculate returns the expected date of every dose in the course and the
// next due date. On error no partial result is returned.
func Calculate(s Schedule, firstDoseDate Date, dosesReceived int) (*Result, error) {
	next, err := CalculateNextDueDate(s, firstDoseDate, dosesReceived)
	if err != nil {
		return nil, err
	}
	offsets := s.offsets()
	dates := make([]Date, len(offsets))
	for i, days := range offsets {
		dates[i] = firstDoseDate.AddDays(days)
	}
	return &Result{
		VaccineType:   s.VaccineType,
		FirstDoseDate: firstDoseDate,
		DosesReceived: dosesReceived,
		ExpectedDates: dates,
		NextDueDate:   next,
	}, nil
}
