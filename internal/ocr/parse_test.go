package ocr

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected float64
	}{
		{
			name:     "currency prefix and thousands separator",
			raw:      "C$ 33,000.00",
			expected: 33000.00,
		},
		{
			name:     "plain decimal",
			raw:      "1150.50",
			expected: 1150.50,
		},
		{
			name:     "comma separated total",
			raw:      "1,150.00",
			expected: 1150.00,
		},
		{
			name:     "empty string",
			raw:      "",
			expected: 0,
		},
		{
			name:     "no digits at all",
			raw:      "N/A",
			expected: 0,
		},
		{
			name:     "multiple decimal points degrade to zero",
			raw:      "1.2.3",
			expected: 0,
		},
		{
			name:     "whitespace only",
			raw:      "   ",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAmount(tt.raw))
		})
	}
}

func TestParseAmount_IdempotentOnCleanInput(t *testing.T) {
	inputs := []string{"33000", "1150.00", "0", "99.99", "C$ 33,000.00"}

	for _, raw := range inputs {
		once := ParseAmount(raw)
		twice := ParseAmount(strconv.FormatFloat(once, 'f', -1, 64))
		assert.Equal(t, once, twice, "re-parsing %q changed the value", raw)
	}
}

func TestParseLatinDate(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		ok       bool
	}{
		{
			name:     "slash separated full year",
			raw:      "12/12/2024",
			expected: "2024-12-12",
			ok:       true,
		},
		{
			name:     "dash separated two digit year",
			raw:      "5-1-24",
			expected: "2024-01-05",
			ok:       true,
		},
		{
			name:     "date embedded in surrounding text",
			raw:      "Fecha: 01/03/2024 Managua",
			expected: "2024-03-01",
			ok:       true,
		},
		{
			name: "not a date",
			raw:  "not a date",
			ok:   false,
		},
		{
			name: "empty input",
			raw:  "",
			ok:   false,
		},
		{
			name: "lone number",
			raw:  "20240101",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLatinDate(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestParseLatinDate_NoCalendarValidation(t *testing.T) {
	// Day 31 of a 30-day month passes through untouched. Known gap.
	got, ok := ParseLatinDate("31/4/2024")
	assert.True(t, ok)
	assert.Equal(t, "2024-04-31", got)
}
