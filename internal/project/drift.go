package project

// DriftReport summarizes how recent work tracks the charter.
type DriftReport struct {
	Total      int      `json:"total"`
	Aligned    int      `json:"aligned"`
	Review     int      `json:"review"`
	Misaligned int      `json:"misaligned"`
	Results    []Result `json:"results"`
}

// Drifting reports whether the recent history warrants attention:
// any misaligned item, or more unmatched than matched work.
func (r *DriftReport) Drifting() bool {
	if r.Total == 0 {
		return false
	}
	return r.Misaligned > 0 || r.Review > r.Aligned
}

// CheckHistory scores a list of recent commit subjects against the
// charter and aggregates the verdicts.
func (c *Charter) CheckHistory(subjects []string) *DriftReport {
	report := &DriftReport{}
	for _, subject := range subjects {
		res := c.Check(subject)
		report.Results = append(report.Results, res)
		report.Total++
		switch res.Verdict {
		case VerdictAligned:
			report.Aligned++
		case VerdictReview:
			report.Review++
		case VerdictMisaligned:
			report.Misaligned++
		}
	}
	return report
}
