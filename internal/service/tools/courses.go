package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/courseadvisor/internal/models"
)

const (
	GetCoursesName = "getCourses"
	MajorArg       = "major"
)

var ErrMajorRequired = errors.New("major is required")

// Course dataset as seen by the tool
type CourseFinder interface {
	FindByPrefix(ctx context.Context, prefix string) ([]models.Course, error)
}

// GetCourses lists courses of a major, major is the course id prefix, e.g. "CS" or "MATH"
type GetCourses struct {
	Courses CourseFinder
}

func (g GetCourses) Name() string {
	return GetCoursesName
}

func (g GetCourses) Description() string {
	return `list courses of a major, args: {"major": "<department code, e.g. CS or MATH>"}`
}

func (g GetCourses) Execute(ctx context.Context, args map[string]string) (string, error) {
	major := strings.ToUpper(strings.TrimSpace(lookupArg(args, MajorArg)))
	if major == "" {
		return "", ErrMajorRequired
	}

	courses, err := g.Courses.FindByPrefix(ctx, major)
	if err != nil {
		return "", err
	}

	return FormatCourses(courses), nil
}

// FormatCourses renders each course as its id and title line followed by description, blocks separated by a blank line
func FormatCourses(courses []models.Course) string {
	blocks := make([]string, 0, len(courses))
	for _, c := range courses {
		blocks = append(blocks, fmt.Sprintf("%s — %s\n%s", c.ID, c.Title, c.Description))
	}
	return strings.Join(blocks, "\n\n")
}

// Arg names are matched case-insensitively, models are not consistent with them
func lookupArg(args map[string]string, name string) string {
	if v, ok := args[name]; ok {
		return v
	}
	for k, v := range args {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
