package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// GradeRepository reads partial reports and report cards.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListPartialReports returns every partial report row of a student in a course.
func (r *GradeRepository) ListPartialReports(ctx context.Context, courseID, studentID string) ([]models.PartialReport, error) {
	const query = `SELECT id, course_id, student_id, term, reading, writing, listening, speaking
FROM partial_reports WHERE course_id = $1 AND student_id = $2 ORDER BY term`
	var reports []models.PartialReport
	if err := r.db.SelectContext(ctx, &reports, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("list partial reports: %w", err)
	}
	return reports, nil
}

// FindReportCard returns the report card for a student, course and year, or sql.ErrNoRows.
func (r *GradeRepository) FindReportCard(ctx context.Context, courseID, studentID string, year int) (*models.ReportCard, error) {
	const query = `SELECT id, course_id, student_id, year, exam_written, exam_reading, exam_listening, exam_oral
FROM report_cards WHERE course_id = $1 AND student_id = $2 AND year = $3`
	var card models.ReportCard
	if err := r.db.GetContext(ctx, &card, query, courseID, studentID, year); err != nil {
		return nil, err
	}
	return &card, nil
}
