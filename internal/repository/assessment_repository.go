package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/counseling-service/internal/domain"
)

// AssessmentRepository stores self-assessment submissions.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *domain.Assessment) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.Assessment, error)
}

type assessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository builds repository.
func NewAssessmentRepository(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepository{pool: pool}
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *domain.Assessment) error {
	breakdown, err := json.Marshal(assessment.Breakdown)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO assessments (student_id, assessment_type, score, max_score, severity_level, breakdown, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		assessment.StudentID,
		assessment.Type,
		assessment.Score,
		assessment.MaxScore,
		assessment.Severity,
		breakdown,
		assessment.Notes,
	).Scan(&assessment.ID, &assessment.CreatedAt)
}

func (r *assessmentRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, student_id, assessment_type, score, max_score, severity_level, breakdown, notes, created_at
        FROM assessments WHERE student_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assessment
	for rows.Next() {
		var assessment domain.Assessment
		var breakdown []byte
		if err := rows.Scan(
			&assessment.ID,
			&assessment.StudentID,
			&assessment.Type,
			&assessment.Score,
			&assessment.MaxScore,
			&assessment.Severity,
			&breakdown,
			&assessment.Notes,
			&assessment.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(breakdown) > 0 {
			if err := json.Unmarshal(breakdown, &assessment.Breakdown); err != nil {
				return nil, err
			}
		}
		result = append(result, assessment)
	}
	return result, rows.Err()
}
