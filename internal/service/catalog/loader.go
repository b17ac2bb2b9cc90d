package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nkiryanov/courseadvisor/internal/models"
)

// Course record as written by the catalog scraper
// Description lives under "course_descriptors", flat "description" is accepted too
type record struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description" yaml:"description"`
	Descriptors map[string]string `json:"course_descriptors" yaml:"course_descriptors"`
	Sessions    []sessionRecord   `json:"sessions" yaml:"sessions"`
}

type sessionRecord struct {
	Section  string `json:"section" yaml:"section"`
	Schedule string `json:"schedule/time" yaml:"schedule/time"`
}

func (r record) toCourse(key string) models.Course {
	c := models.Course{
		ID:          strings.TrimSpace(r.ID),
		Title:       r.Title,
		Description: r.Description,
	}
	if c.ID == "" {
		c.ID = key
	}
	if c.Description == "" {
		c.Description = r.Descriptors["description"]
	}
	for _, s := range r.Sessions {
		c.Sessions = append(c.Sessions, models.Session{Section: s.Section, Schedule: s.Schedule})
	}
	return c
}

// Options of catalog loading
type Options struct {
	// Keep only courses having a regular scheduled section
	OfferedOnly bool
}

func (o Options) apply(courses []models.Course) []models.Course {
	if !o.OfferedOnly {
		return courses
	}

	filtered := courses[:0]
	for _, c := range courses {
		if c.Offered() {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// Source of courses other than a file, e.g. database
type Source interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
}

// Load catalog from source
func Load(ctx context.Context, source Source, opts Options) (*Catalog, error) {
	courses, err := source.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("error while listing courses. Err: %w", err)
	}

	return New(opts.apply(courses))
}

// LoadFile loads catalog from JSON or YAML file, format is chosen by extension
func LoadFile(path string, opts Options) (*Catalog, error) {
	courses, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	return New(opts.apply(courses))
}

// ReadFile reads courses from JSON or YAML file keeping the file order
func ReadFile(path string) ([]models.Course, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open catalog. Err: %w", err)
	}
	defer f.Close() // nolint:errcheck

	var courses []models.Course
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		courses, err = ParseYAML(f)
	default:
		courses, err = ParseJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("can't parse catalog %s. Err: %w", path, err)
	}

	return courses, nil
}

// ParseJSON reads either an object keyed by course id or an array of courses
// Objects are read token by token: decoding into a map would lose the key order
func ParseJSON(r io.Reader) ([]models.Course, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	var courses []models.Course
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)

			var rec record
			if err := dec.Decode(&rec); err != nil {
				return nil, fmt.Errorf("course %q: %w", key, err)
			}
			courses = append(courses, rec.toCourse(key))
		}
	case json.Delim('['):
		for dec.More() {
			var rec record
			if err := dec.Decode(&rec); err != nil {
				return nil, err
			}
			courses = append(courses, rec.toCourse(""))
		}
	default:
		return nil, errors.New("catalog must be JSON object or array")
	}

	// Consume closing delimiter
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return courses, nil
}

// ParseYAML reads the same layouts as ParseJSON from YAML
func ParseYAML(r io.Reader) ([]models.Course, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty catalog document")
	}

	root := doc.Content[0]
	var courses []models.Course
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i].Value

			var rec record
			if err := root.Content[i+1].Decode(&rec); err != nil {
				return nil, fmt.Errorf("course %q: %w", key, err)
			}
			courses = append(courses, rec.toCourse(key))
		}
	case yaml.SequenceNode:
		for _, node := range root.Content {
			var rec record
			if err := node.Decode(&rec); err != nil {
				return nil, err
			}
			courses = append(courses, rec.toCourse(""))
		}
	default:
		return nil, errors.New("catalog must be YAML mapping or sequence")
	}

	return courses, nil
}
