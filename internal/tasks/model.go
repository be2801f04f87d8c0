package tasks

import "time"

// Task is a personal to-do item. Owner and CreatedAt never change after creation.
type Task struct {
	ID          int64     `db:"id"`
	Owner       string    `db:"owner"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// TaskPatch carries the fields of an update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil
}
