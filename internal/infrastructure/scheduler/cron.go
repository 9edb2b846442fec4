package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common schedules used by the worker.
const (
	// MonthlyAtNine runs at 09:00 on the first day of each month.
	MonthlyAtNine = "0 9 1 * *"

	// NightlyAtThree runs at 03:00 every day.
	NightlyAtThree = "0 3 * * *"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Each field accepts *, n, n-m, */s, n-m/s and comma lists of those.
// When both day fields are restricted a day matches if either does.
type CronSchedule struct {
	raw      string
	minutes  fieldSet
	hours    fieldSet
	days     fieldSet
	months   fieldSet
	weekdays fieldSet
	loc      *time.Location
}

var _ Schedule = (*CronSchedule)(nil)

// fieldSet is a bitmask of allowed values (all fields fit in 64 bits).
type fieldSet struct {
	bits uint64
	all  bool
}

func (f fieldSet) has(v int) bool { return f.bits&(1<<uint(v)) != 0 }

// ParseCron parses expr. loc is the zone the fields are read in; nil means
// the zone of the time passed to Next.
func ParseCron(expr string, loc *time.Location) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	specs := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day", 1, 31},
		{"month", 1, 12},
		{"weekday", 0, 6},
	}
	sets := make([]fieldSet, len(fields))
	for i, f := range fields {
		set, err := parseField(f, specs[i].min, specs[i].max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field in %q: %w", specs[i].name, expr, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
		loc:      loc,
	}, nil
}

// MustParseCron is ParseCron that panics. For package-level constants.
func MustParseCron(expr string, loc *time.Location) *CronSchedule {
	s, err := ParseCron(expr, loc)
	if err != nil {
		panic(err)
	}
	return s
}

func parseField(field string, min, max int) (fieldSet, error) {
	if field == "*" {
		return fieldSet{bits: rangeBits(min, max, 1), all: true}, nil
	}

	var set fieldSet
	for _, part := range strings.Split(field, ",") {
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fieldSet{}, fmt.Errorf("invalid step %q", s)
			}
			step = n
			part = base
		}

		lo, hi := min, max
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return fieldSet{}, fmt.Errorf("invalid range start %q", a)
			}
			if hi, err = strconv.Atoi(b); err != nil {
				return fieldSet{}, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return fieldSet{}, fmt.Errorf("invalid value %q", part)
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}
		if lo < min || hi > max || lo > hi {
			return fieldSet{}, fmt.Errorf("value out of range [%d-%d]: %s", min, max, part)
		}
		set.bits |= rangeBits(lo, hi, step)
	}
	return set, nil
}

func rangeBits(lo, hi, step int) uint64 {
	var b uint64
	for i := lo; i <= hi; i += step {
		b |= 1 << uint(i)
	}
	return b
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.raw
}

// Next returns the first matching minute strictly after t, or the zero time
// when nothing matches within five years.
func (c *CronSchedule) Next(t time.Time) time.Time {
	if c.loc != nil {
		t = t.In(c.loc)
	}
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !c.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !c.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !c.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (c *CronSchedule) dayMatches(t time.Time) bool {
	dom := c.days.has(t.Day())
	dow := c.weekdays.has(int(t.Weekday()))
	switch {
	case c.days.all && c.weekdays.all:
		return true
	case c.days.all:
		return dow
	case c.weekdays.all:
		return dom
	default:
		return dom || dow
	}
}
