package reconcile

import (
	"errors"
	"testing"

	"github.com/sydlexius/stashlink/internal/catalog"
)

func scored(id string, status Status, scores ...int) *EntityMatch {
	m := &EntityMatch{Local: catalog.Entity{ID: id, Name: id}, Status: status}
	for _, s := range scores {
		m.Candidates = append(m.Candidates, candidate("s", id, id, s))
	}
	return m
}

func TestCategorizeThreshold(t *testing.T) {
	auto := scored("auto", StatusPending, 96, 10)
	review := scored("review", StatusPending, 80)
	none := scored("none", StatusPending)

	c := Categorize([]*EntityMatch{auto, review, none}, 95)
	if len(c.Auto) != 1 || c.Auto[0] != auto {
		t.Errorf("auto = %v", c.Auto)
	}
	if len(c.Review) != 1 || c.Review[0] != review {
		t.Errorf("review = %v", c.Review)
	}
	if len(c.NoMatch) != 1 || c.NoMatch[0] != none {
		t.Errorf("noMatch = %v", c.NoMatch)
	}
	if len(c.Skipped) != 0 {
		t.Errorf("skipped = %v", c.Skipped)
	}
}

func TestCategorizeBoundary(t *testing.T) {
	c := Categorize([]*EntityMatch{scored("eq", StatusPending, 95), scored("below", StatusPending, 94)}, 95)
	if len(c.Auto) != 1 || c.Auto[0].Local.ID != "eq" {
		t.Errorf("score equal to threshold should be auto: %v", c.Auto)
	}
	if len(c.Review) != 1 || c.Review[0].Local.ID != "below" {
		t.Errorf("review = %v", c.Review)
	}
}

func TestCategorizeOrderOfChecks(t *testing.T) {
	tests := []struct {
		name  string
		match *EntityMatch
		want  string
	}{
		{"skipped with high candidate", scored("a", StatusSkipped, 100), "skipped"},
		{"skipped without candidates", scored("b", StatusSkipped), "skipped"},
		{"error status", &EntityMatch{Local: catalog.Entity{ID: "c"}, Status: StatusError, Err: "boom"}, "noMatch"},
		{"matched keeps bucket by score", scored("d", StatusMatched, 100), "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Categorize([]*EntityMatch{tt.match}, 95)
			got := ""
			switch {
			case len(c.Auto) == 1:
				got = "auto"
			case len(c.Review) == 1:
				got = "review"
			case len(c.NoMatch) == 1:
				got = "noMatch"
			case len(c.Skipped) == 1:
				got = "skipped"
			}
			if got != tt.want {
				t.Errorf("bucket = %s, want %s", got, tt.want)
			}
			if c.Len() != 1 {
				t.Errorf("Len() = %d, want 1", c.Len())
			}
		})
	}
}

func TestCategorizePartitions(t *testing.T) {
	var matches []*EntityMatch
	statuses := []Status{StatusPending, StatusMatched, StatusSkipped, StatusError}
	for i := range 40 {
		var scores []int
		for j := range i % 4 {
			scores = append(scores, 100-(i*7+j*13)%100)
		}
		id := string(rune('A'+i%26)) + string(rune('a'+i/26))
		matches = append(matches, scored(id, statuses[i%len(statuses)], scores...))
	}

	for _, threshold := range []int{0, 50, 95, 100, 101} {
		c := Categorize(matches, threshold)
		if c.Len() != len(matches) {
			t.Errorf("threshold %d: buckets hold %d, want %d", threshold, c.Len(), len(matches))
		}
		seen := make(map[*EntityMatch]bool)
		for _, bucket := range [][]*EntityMatch{c.Auto, c.Review, c.NoMatch, c.Skipped} {
			for _, m := range bucket {
				if seen[m] {
					t.Errorf("threshold %d: %s in two buckets", threshold, m.Local.ID)
				}
				seen[m] = true
			}
		}
	}
}

func TestCalculateStats(t *testing.T) {
	matches := []*EntityMatch{
		scored("matched", StatusMatched, 100),
		scored("skipped", StatusSkipped, 100),
		scored("eligible", StatusPending, 97),
		scored("review", StatusPending, 80),
		scored("none", StatusPending),
		{Local: catalog.Entity{ID: "err"}, Status: StatusError},
	}

	got := CalculateStats(matches, 95)
	want := MatchStats{Total: 6, Matched: 1, Unmatched: 4, Skipped: 1, AutoMatchEligible: 1}
	if got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
	if again := CalculateStats(matches, 95); again != got {
		t.Errorf("recomputed stats differ: %+v vs %+v", again, got)
	}
	if low := CalculateStats(matches, 80); low.AutoMatchEligible != 2 {
		t.Errorf("threshold 80 eligible = %d, want 2", low.AutoMatchEligible)
	}
}

func TestCalculateStatsEmpty(t *testing.T) {
	if got := CalculateStats(nil, 95); got != (MatchStats{}) {
		t.Errorf("stats = %+v, want zero", got)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		do   func(*EntityMatch) error
		want Status
		ok   bool
	}{
		{StatusPending, func(m *EntityMatch) error { return m.MarkMatched(Candidate{}) }, StatusMatched, true},
		{StatusPending, (*EntityMatch).MarkSkipped, StatusSkipped, true},
		{StatusPending, func(m *EntityMatch) error { return m.MarkError("x") }, StatusError, true},
		{StatusMatched, func(m *EntityMatch) error { return m.MarkMatched(Candidate{}) }, StatusMatched, true},
		{StatusSkipped, (*EntityMatch).ClearSkip, StatusPending, true},
		{StatusMatched, (*EntityMatch).MarkSkipped, StatusMatched, false},
		{StatusSkipped, func(m *EntityMatch) error { return m.MarkMatched(Candidate{}) }, StatusSkipped, false},
		{StatusError, (*EntityMatch).ClearSkip, StatusError, false},
		{StatusPending, (*EntityMatch).ClearSkip, StatusPending, false},
		{StatusError, func(m *EntityMatch) error { return m.MarkMatched(Candidate{}) }, StatusError, false},
	}
	for _, tt := range tests {
		m := &EntityMatch{Status: tt.from}
		err := tt.do(m)
		if tt.ok && err != nil {
			t.Errorf("from %s: unexpected error %v", tt.from, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("from %s: err = %v, want ErrInvalidTransition", tt.from, err)
		}
		if m.Status != tt.want {
			t.Errorf("from %s: status = %s, want %s", tt.from, m.Status, tt.want)
		}
	}
}
