package domain

import "time"

// Severity bands for the self-assessment tool.
type Severity string

const (
	SeverityExcellent  Severity = "Excellent"
	SeverityGood       Severity = "Good"
	SeverityModerate   Severity = "Moderate"
	SeverityConcerning Severity = "Concerning"
	SeverityCritical   Severity = "Critical"
)

// NeedsFollowUp reports whether the band maps to a crisis escalation.
func (s Severity) NeedsFollowUp() bool {
	return s == SeverityConcerning || s == SeverityCritical
}

// AssessmentBreakdown holds per-category sub-scores of the 20-question
// self-assessment (questions 1-6, 7-12, 13-18, 19-20).
type AssessmentBreakdown struct {
	MentalHealth    int `json:"mental_health"`
	EmotionalHealth int `json:"emotional_health"`
	SocialHealth    int `json:"social_health"`
	NeedsAwareness  int `json:"needs_awareness"`
}

// Assessment is a stored self-assessment submission.
type Assessment struct {
	ID        string
	StudentID string
	Type      string
	Score     int
	MaxScore  int
	Severity  Severity
	Breakdown AssessmentBreakdown
	Notes     string
	CreatedAt time.Time
}
