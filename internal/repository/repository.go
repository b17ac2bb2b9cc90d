package repository

import (
	"context"

	"github.com/nkiryanov/courseadvisor/internal/models"
)

// Course repository interface
type CourseRepo interface {
	// Create course
	// If course with the id exists already has to return error apperrors.ErrCourseAlreadyExists
	CreateCourse(ctx context.Context, course models.Course) error

	// Return all courses in the order they were imported
	ListCourses(ctx context.Context) ([]models.Course, error)

	// Delete all courses, used to reimport the catalog
	DeleteCourses(ctx context.Context) (int64, error)
}

type Storage interface {
	Course() CourseRepo

	// Run fn in transaction
	// Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
