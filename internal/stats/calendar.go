package stats

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrMalformedCalendar reports a submission calendar that is not a JSON object.
var ErrMalformedCalendar = errors.New("malformed submission calendar")

// Calendar holds the activity timestamps of a submission calendar in
// ascending order.
type Calendar []int64

// ParseCalendar decodes the provider's serialized calendar. Only the keys
// matter: keys that are not base-10 epoch seconds are skipped and values are
// never inspected.
func ParseCalendar(raw string) (Calendar, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedCalendar)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCalendar, err)
	}

	cal := make(Calendar, 0, len(entries))
	for key := range entries {
		ts, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			continue
		}
		cal = append(cal, ts)
	}
	sort.Slice(cal, func(i, j int) bool { return cal[i] < cal[j] })
	return cal, nil
}

// Latest returns the most recent timestamp in the calendar.
func (c Calendar) Latest() (int64, bool) {
	if len(c) == 0 {
		return 0, false
	}
	return c[len(c)-1], true
}

// LastActivity reports the most recent activity recorded in a raw calendar.
func LastActivity(calendar *string) (time.Time, bool) {
	if calendar == nil {
		return time.Time{}, false
	}
	cal, err := ParseCalendar(*calendar)
	if err != nil {
		return time.Time{}, false
	}
	latest, ok := cal.Latest()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(latest, 0), true
}
