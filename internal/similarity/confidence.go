package similarity

// Confidence is the qualitative bucket a score falls into.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Default confidence boundaries.
const (
	DefaultHighThreshold   = 95
	DefaultMediumThreshold = 70
)

// Thresholds holds the inclusive lower bounds of the high and medium buckets.
type Thresholds struct {
	High   int `yaml:"high"`
	Medium int `yaml:"medium"`
}

// DefaultThresholds returns the 95/70 boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighThreshold, Medium: DefaultMediumThreshold}
}

// Level buckets score using t.
func (t Thresholds) Level(score int) Confidence {
	switch {
	case score >= t.High:
		return ConfidenceHigh
	case score >= t.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Level buckets score using the default thresholds.
func Level(score int) Confidence {
	return DefaultThresholds().Level(score)
}
