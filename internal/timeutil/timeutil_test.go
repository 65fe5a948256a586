package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestParseAcceptedLayouts(t *testing.T) {
	ist := mustLocation(t, "Asia/Kolkata")
	n := NewNormalizer(ist)

	testCases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "bare datetime-local input is interpreted in the canonical zone",
			input: "2025-03-10T14:30",
			want:  time.Date(2025, 3, 10, 14, 30, 0, 0, ist),
		},
		{
			name:  "bare datetime with seconds",
			input: "2025-03-10T14:30:45",
			want:  time.Date(2025, 3, 10, 14, 30, 45, 0, ist),
		},
		{
			name:  "space-separated timestamp",
			input: "2025-03-10 14:30:00",
			want:  time.Date(2025, 3, 10, 14, 30, 0, 0, ist),
		},
		{
			name:  "zoned RFC3339 input is converted, not reinterpreted",
			input: "2025-03-10T09:00:00Z",
			want:  time.Date(2025, 3, 10, 14, 30, 0, 0, ist), // IST is UTC+5:30
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Parse(tc.input)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
			assert.Equal(t, ist.String(), got.Location().String())
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	n := NewNormalizer(mustLocation(t, "Asia/Kolkata"))

	for _, input := range []string{"", "not a time", "2025-13-45T99:99", "10:00"} {
		_, err := n.Parse(input)
		assert.ErrorIs(t, err, ErrInvalidTimeFormat, "input %q", input)
	}
}

func TestNormalizeDisplayRoundTrip(t *testing.T) {
	ist := mustLocation(t, "Asia/Kolkata")
	n := NewNormalizer(ist)

	canonical, err := n.Parse("2025-03-10T14:30")
	require.NoError(t, err)

	// normalize(display(normalize(x), z)) must land on the same instant
	// for any display zone.
	for _, zone := range []string{"UTC", "America/New_York", "Asia/Tokyo", "Australia/Eucla"} {
		target := mustLocation(t, zone)
		displayed := n.Display(canonical, target)
		back := n.Normalize(displayed)
		assert.True(t, canonical.Equal(back), "round trip through %s drifted: %s vs %s", zone, canonical, back)
		assert.Equal(t, ist.String(), back.Location().String())
	}
}

func TestDisplayDefaultsToCanonicalZone(t *testing.T) {
	ist := mustLocation(t, "Asia/Kolkata")
	n := NewNormalizer(ist)

	out := n.Display(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), nil)
	assert.Equal(t, ist.String(), out.Location().String())
	assert.Equal(t, 14, out.Hour())
	assert.Equal(t, 30, out.Minute())
}

func TestNilLocationFallsBackToUTC(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, time.UTC, n.Location())
}
