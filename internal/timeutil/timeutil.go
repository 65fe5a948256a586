package timeutil

import (
	"errors"
	"time"
)

// ErrInvalidTimeFormat is returned when an input cannot be parsed into a
// date and time with any of the accepted layouts.
var ErrInvalidTimeFormat = errors.New("invalid time format")

// acceptedLayouts are tried in order when parsing string input. The first
// two carry an explicit offset; the rest are bare local timestamps that
// are interpreted in the canonical zone.
var acceptedLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339, true},
	{"2006-01-02T15:04:05Z07:00", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
}

// Normalizer converts any accepted time representation into the single
// canonical zone used for all persisted timestamps, and back out to a
// display zone on read. The assumed zone for bare timestamps is always
// the explicit canonical location, never inferred from the input.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a Normalizer pinned to the canonical location.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the canonical location.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Parse converts a timestamp string into a canonical zone-tagged value.
// Zoned inputs are converted; bare inputs are taken to already be in the
// canonical zone.
func (n *Normalizer) Parse(value string) (time.Time, error) {
	for _, candidate := range acceptedLayouts {
		var t time.Time
		var err error
		if candidate.zoned {
			t, err = time.Parse(candidate.layout, value)
		} else {
			t, err = time.ParseInLocation(candidate.layout, value, n.loc)
		}
		if err == nil {
			return t.In(n.loc), nil
		}
	}
	return time.Time{}, ErrInvalidTimeFormat
}

// Normalize converts an already-parsed time into the canonical zone. The
// instant is preserved for zoned values; a value carrying no location
// information cannot occur with time.Time, so no naive branch is needed.
func (n *Normalizer) Normalize(t time.Time) time.Time {
	return t.In(n.loc)
}

// Display converts a canonical time into the target zone for
// presentation. Display then Normalize round-trips to the same instant.
func (n *Normalizer) Display(t time.Time, target *time.Location) time.Time {
	if target == nil {
		target = n.loc
	}
	return t.In(target)
}
