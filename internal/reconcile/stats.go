package reconcile

// MatchStats summarizes a batch of matches. It is always derived from the
// batch and never stored.
type MatchStats struct {
	Total             int `json:"total"`
	Matched           int `json:"matched"`
	Unmatched         int `json:"unmatched"`
	Skipped           int `json:"skipped"`
	AutoMatchEligible int `json:"auto_match_eligible"`
}

// CalculateStats counts matches by status. Matches that are neither
// matched nor skipped are unmatched; those whose top score reaches
// threshold are also auto-match eligible.
func CalculateStats(matches []*EntityMatch, threshold int) MatchStats {
	s := MatchStats{Total: len(matches)}
	for _, m := range matches {
		switch m.Status {
		case StatusMatched:
			s.Matched++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Unmatched++
			if len(m.Candidates) > 0 && m.Candidates[0].Score >= threshold {
				s.AutoMatchEligible++
			}
		}
	}
	return s
}
