// Package catalog is the read-only course dataset.
// It is loaded once at start-up and safe for concurrent reads afterwards.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

// In-memory catalog keeping the insertion order of the source
type Catalog struct {
	courses []models.Course
	index   map[string]int
}

// New builds catalog from courses in their natural order
// Course identifiers have to be unique
func New(courses []models.Course) (*Catalog, error) {
	c := &Catalog{
		courses: make([]models.Course, 0, len(courses)),
		index:   make(map[string]int, len(courses)),
	}

	for _, course := range courses {
		if course.ID == "" {
			return nil, fmt.Errorf("course without id, title=%q", course.Title)
		}
		if _, ok := c.index[course.ID]; ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrCourseAlreadyExists, course.ID)
		}

		c.index[course.ID] = len(c.courses)
		c.courses = append(c.courses, course)
	}

	return c, nil
}

// Len returns number of courses
func (c *Catalog) Len() int {
	return len(c.courses)
}

// Courses returns copy of all courses in catalog order
func (c *Catalog) Courses() []models.Course {
	return append([]models.Course(nil), c.courses...)
}

// Get course by its identifier
func (c *Catalog) Get(id string) (models.Course, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Course{}, false
	}
	return c.courses[i], true
}

// FindByPrefix returns courses which identifier starts with prefix, in catalog order
// Matching is case-sensitive; callers normalize the prefix
func (c *Catalog) FindByPrefix(ctx context.Context, prefix string) ([]models.Course, error) {
	var found []models.Course
	for _, course := range c.courses {
		if strings.HasPrefix(course.ID, prefix) {
			found = append(found, course)
		}
	}
	return found, nil
}

// Unavailable stands in for a catalog that could not be loaded
// Every lookup fails, so only requests touching the dataset fail
type Unavailable struct {
	Err error
}

func (u Unavailable) Len() int {
	return 0
}

func (u Unavailable) FindByPrefix(ctx context.Context, prefix string) ([]models.Course, error) {
	if u.Err == nil {
		return nil, apperrors.ErrDatasetUnavailable
	}
	return nil, fmt.Errorf("%w. Err: %w", apperrors.ErrDatasetUnavailable, u.Err)
}
