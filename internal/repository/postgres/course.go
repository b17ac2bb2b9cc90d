package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

type CourseRepo struct {
	DB DBTX
}

const createCourse = `-- name: CreateCourse
INSERT INTO courses (id, title, description, sessions)
VALUES ($1, $2, $3, $4)
`

func (r *CourseRepo) CreateCourse(ctx context.Context, course models.Course) error {
	sessions := course.Sessions
	if sessions == nil {
		sessions = []models.Session{}
	}

	_, err := r.DB.Exec(ctx, createCourse, course.ID, course.Title, course.Description, sessions)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.ErrCourseAlreadyExists
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const listCourses = `-- name: ListCourses
SELECT id, title, description, sessions FROM courses
ORDER BY position
`

func (r *CourseRepo) ListCourses(ctx context.Context) ([]models.Course, error) {
	rows, _ := r.DB.Query(ctx, listCourses)
	courses, err := pgx.CollectRows(rows, rowToCourse)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return courses, nil
}

const deleteCourses = `-- name: DeleteCourses
DELETE FROM courses
`

func (r *CourseRepo) DeleteCourses(ctx context.Context) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteCourses)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToCourse(row pgx.CollectableRow) (models.Course, error) {
	var c models.Course
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Sessions)
	return c, err
}
