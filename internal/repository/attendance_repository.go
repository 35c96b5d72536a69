package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// AttendanceRepository reads daily attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListRecent returns up to limit records for a student in a course, newest first.
func (r *AttendanceRepository) ListRecent(ctx context.Context, courseID, studentID string, limit int) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, course_id, student_id, date, status FROM attendance_records
WHERE course_id = $1 AND student_id = $2
ORDER BY date DESC
LIMIT $3`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, courseID, studentID, limit); err != nil {
		return nil, fmt.Errorf("list recent attendance: %w", err)
	}
	return records, nil
}
