package reconcile

// Categorized partitions a batch of matches. Every match lands in exactly
// one bucket.
type Categorized struct {
	Auto    []*EntityMatch
	Review  []*EntityMatch
	NoMatch []*EntityMatch
	Skipped []*EntityMatch
}

// Len returns the total number of matches across all buckets.
func (c Categorized) Len() int {
	return len(c.Auto) + len(c.Review) + len(c.NoMatch) + len(c.Skipped)
}

// Categorize buckets matches by status and top score. Skipped matches are
// checked first, then matches without candidates, then the top score
// against threshold.
func Categorize(matches []*EntityMatch, threshold int) Categorized {
	var c Categorized
	for _, m := range matches {
		switch {
		case m.Status == StatusSkipped:
			c.Skipped = append(c.Skipped, m)
		case len(m.Candidates) == 0:
			c.NoMatch = append(c.NoMatch, m)
		case m.Candidates[0].Score >= threshold:
			c.Auto = append(c.Auto, m)
		default:
			c.Review = append(c.Review, m)
		}
	}
	return c
}
