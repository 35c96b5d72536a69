package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// EnrollmentRepository reads student-course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveByCourse returns the active enrollments of a course for a year.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseID string, year int) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, year, status, joined_at FROM enrollments WHERE course_id = $1 AND year = $2 AND status = $3 ORDER BY student_id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, year, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}
