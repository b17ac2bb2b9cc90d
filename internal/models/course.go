package models

import (
	"strings"
)

// Course record of the catalog
// ID is conventionally a department prefix followed by a number, e.g. "CS105"
type Course struct {
	ID          string
	Title       string
	Description string
	Sessions    []Session
}

// Scheduled class section of a course
type Session struct {
	Section  string `json:"section"`
	Schedule string `json:"schedule"`
}

// Offered reports whether the course has at least one regular scheduled section.
// Sections marked with "D" are discussions and " - " means the schedule is not set.
func (c Course) Offered() bool {
	for _, s := range c.Sessions {
		if !strings.Contains(s.Section, "D") && s.Schedule != " - " && s.Schedule != "" {
			return true
		}
	}
	return false
}
