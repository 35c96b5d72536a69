package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// CourseRepository reads courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course or sql.ErrNoRows.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, year, teacher_id, created_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListByYear returns every course of an academic year.
func (r *CourseRepository) ListByYear(ctx context.Context, year int) ([]models.Course, error) {
	const query = `SELECT id, name, year, teacher_id, created_at FROM courses WHERE year = $1 ORDER BY name, id`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, year); err != nil {
		return nil, fmt.Errorf("list courses for year %d: %w", year, err)
	}
	return courses, nil
}
