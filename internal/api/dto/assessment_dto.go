package dto

import (
	"time"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/service"
)

// SubmitAssessmentRequest payload.
type SubmitAssessmentRequest struct {
	Responses []service.QuestionResponse `json:"responses"`
	Notes     string                     `json:"notes"`
}

// AssessmentResponse represents a scored submission.
type AssessmentResponse struct {
	ID        string                     `json:"id"`
	StudentID string                     `json:"student_id"`
	Type      string                     `json:"type"`
	Score     int                        `json:"score"`
	MaxScore  int                        `json:"max_score"`
	Severity  domain.Severity            `json:"severity"`
	Breakdown domain.AssessmentBreakdown `json:"breakdown"`
	Notes     string                     `json:"notes,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

// NewAssessmentResponse maps a domain assessment.
func NewAssessmentResponse(assessment *domain.Assessment) AssessmentResponse {
	return AssessmentResponse{
		ID:        assessment.ID,
		StudentID: assessment.StudentID,
		Type:      assessment.Type,
		Score:     assessment.Score,
		MaxScore:  assessment.MaxScore,
		Severity:  assessment.Severity,
		Breakdown: assessment.Breakdown,
		Notes:     assessment.Notes,
		CreatedAt: assessment.CreatedAt,
	}
}
