package models

import "time"

// Course is a teaching group for one academic year.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Year      int       `db:"year" json:"year"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
