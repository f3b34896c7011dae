package scheduling

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ParseClock parses "HH:MM". Longer Postgres TIME strings ("09:00:00") are accepted.
func ParseClock(s string) (Clock, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	t, err := time.Parse(clockLayout, s[:5])
	if err != nil {
		return 0, fmt.Errorf("invalid time string %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// WorkingHours is the daily window in which slots may start and end.
type WorkingHours struct {
	Start Clock
	End   Clock
	Days  map[time.Weekday]bool
}

// ParseWorkingHours builds WorkingHours from settings values. days uses
// 0 = Sunday .. 6 = Saturday.
func ParseWorkingHours(start, end string, days []int) (WorkingHours, error) {
	s, err := ParseClock(start)
	if err != nil {
		return WorkingHours{}, fmt.Errorf("start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return WorkingHours{}, fmt.Errorf("end: %w", err)
	}
	if e <= s {
		return WorkingHours{}, fmt.Errorf("end %s must be after start %s", e, s)
	}

	wh := WorkingHours{Start: s, End: e, Days: make(map[time.Weekday]bool, len(days))}
	for _, d := range days {
		if d < 0 || d > 6 {
			return WorkingHours{}, fmt.Errorf("weekday %d out of range 0..6", d)
		}
		wh.Days[time.Weekday(d)] = true
	}
	return wh, nil
}

// OpenOn reports whether the clinic works on the weekday of day.
func (wh WorkingHours) OpenOn(day time.Time) bool {
	return wh.Days[day.Weekday()]
}

// Window returns the working window of day as instants in day's location.
func (wh WorkingHours) Window(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	loc := day.Location()
	start := time.Date(y, m, d, int(wh.Start)/60, int(wh.Start)%60, 0, 0, loc)
	end := time.Date(y, m, d, int(wh.End)/60, int(wh.End)%60, 0, 0, loc)
	return start, end
}

// GenerateSlots lays out the candidate start times for day. The cursor moves
// by interval, not by duration, so starts may be staggered. Only slots whose
// whole duration fits before the end of the window are emitted.
func GenerateSlots(day time.Time, hours WorkingHours, durationMinutes, intervalMinutes int) []TimeSlot {
	if durationMinutes <= 0 || intervalMinutes <= 0 || hours.End <= hours.Start {
		return nil
	}
	if !hours.OpenOn(day) {
		return nil
	}

	duration := time.Duration(durationMinutes) * time.Minute
	interval := time.Duration(intervalMinutes) * time.Minute
	windowStart, windowEnd := hours.Window(day)

	var slots []TimeSlot
	for cursor := windowStart; !cursor.Add(duration).After(windowEnd); cursor = cursor.Add(interval) {
		slots = append(slots, TimeSlot{
			Time:           cursor.Format(clockLayout),
			Date:           cursor.Format(dateLayout),
			Start:          cursor,
			End:            cursor.Add(duration),
			Available:      true,
			ConflictReason: ConflictNone,
		})
	}
	return slots
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// dayBounds returns [midnight, next midnight) of day in its location.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
