package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Absolute start time layouts, tried in order.
var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parseStartAt resolves a start_at value against now.
//
// Supported forms:
//   - empty: now
//   - absolute: "2006-01-02 15:04:05", "2006-01-02 15:04" or RFC3339
//   - delay: "in:90s", "in:1h30m"
//   - cron: "cron:0 3 * * *" or a descriptor like "@daily"; the next fire
//     time after now
//
// Times in the past are clamped to now.
func parseStartAt(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now, nil
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "in:"):
		d, err := time.ParseDuration(strings.TrimSpace(s[len("in:"):]))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid delay %q: %w", raw, err)
		}
		if d < 0 {
			return time.Time{}, fmt.Errorf("delay %q must be >= 0", raw)
		}
		return now.Add(d), nil

	case strings.HasPrefix(low, "cron:"), strings.HasPrefix(s, "@"):
		expr := s
		if strings.HasPrefix(low, "cron:") {
			expr = strings.TrimSpace(s[len("cron:"):])
		}
		if expr == "" {
			return time.Time{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron %q: %w", expr, err)
		}
		next := sched.Next(now.In(loc))
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron %q never fires", expr)
		}
		return next, nil
	}

	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if t.Before(now) {
			return now, nil
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf(
		"invalid start_at %q (use '2006-01-02 15:04:05', RFC3339, 'in:10m' or 'cron:0 3 * * *')",
		raw,
	)
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
