package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCourse_Offered(t *testing.T) {
	tests := []struct {
		name     string
		sessions []Session
		offered  bool
	}{
		{"no sessions", nil, false},
		{"lecture with schedule", []Session{{Section: "01", Schedule: "MoWe 10:00AM - 11:15AM"}}, true},
		{"discussion only", []Session{{Section: "01D", Schedule: "Fr 9:00AM - 9:50AM"}}, false},
		{"schedule not set", []Session{{Section: "01", Schedule: " - "}}, false},
		{"discussion and lecture", []Session{{Section: "02D", Schedule: "Fr 9:00AM - 9:50AM"}, {Section: "02", Schedule: "TuTh 1:00PM - 2:15PM"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Course{ID: "CS105", Sessions: tt.sessions}

			require.Equal(t, tt.offered, c.Offered())
		})
	}
}
