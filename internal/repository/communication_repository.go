package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// CommunicationRepository persists messages sent about students.
type CommunicationRepository struct {
	db *sqlx.DB
}

// NewCommunicationRepository constructs the repository.
func NewCommunicationRepository(db *sqlx.DB) *CommunicationRepository {
	return &CommunicationRepository{db: db}
}

// CountSince counts communications of a category for a student in a course created at or after since.
func (r *CommunicationRepository) CountSince(ctx context.Context, courseID, studentID string, category models.CommunicationCategory, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM communications
WHERE course_id = $1 AND student_id = $2 AND category = $3 AND created_at >= $4`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID, studentID, category, since); err != nil {
		return 0, fmt.Errorf("count communications: %w", err)
	}
	return total, nil
}

// Create persists a communication.
func (r *CommunicationRepository) Create(ctx context.Context, msg *models.Communication) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO communications (id, course_id, student_id, recipient_id, category, title, body, created_by, created_at)
VALUES (:id, :course_id, :student_id, :recipient_id, :category, :title, :body, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create communication: %w", err)
	}
	return nil
}
