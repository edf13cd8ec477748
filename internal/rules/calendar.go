package rules

import (
	"strings"
	"time"

	"github.com/roach88/cartprice/internal/condition"
)

const dateLayout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// dayOfWeek accepts names ("mon", "Monday") or numbers where 0 and 7 are
// both Sunday.
func (f *Factory) dayOfWeek(ctx Context) (condition.Predicate, error) {
	var allowed [7]bool
	for _, v := range ctx.Array("days") {
		if s, ok := v.(string); ok {
			d, known := weekdays[strings.ToLower(strings.TrimSpace(s))]
			if !known {
				return nil, contextError(DayOfWeek, "days", "unknown weekday %q", s)
			}
			allowed[d] = true
			continue
		}
		n, ok := toInt(v)
		if !ok || n < 0 || n > 7 {
			return nil, contextError(DayOfWeek, "days", "weekday %v out of range 0-7", v)
		}
		allowed[n%7] = true
	}
	return func(condition.CartState, condition.ItemState) (bool, error) {
		return allowed[f.now().Weekday()], nil
	}, nil
}

// dateWindow compares calendar dates in the factory's location. Both bounds
// are inclusive; either may be omitted but not both.
func (f *Factory) dateWindow(ctx Context) (condition.Predicate, error) {
	var start, end string
	if ctx.Has("start") {
		t, err := time.Parse(dateLayout, ctx.String("start"))
		if err != nil {
			return nil, contextError(DateWindow, "start", "expected YYYY-MM-DD: %v", err)
		}
		start = t.Format(dateLayout)
	}
	if ctx.Has("end") {
		t, err := time.Parse(dateLayout, ctx.String("end"))
		if err != nil {
			return nil, contextError(DateWindow, "end", "expected YYYY-MM-DD: %v", err)
		}
		end = t.Format(dateLayout)
	}
	if start == "" && end == "" {
		return nil, contextError(DateWindow, "", "start or end is required")
	}
	if start != "" && end != "" && end < start {
		return nil, contextError(DateWindow, "end", "end %s is before start %s", end, start)
	}
	return func(condition.CartState, condition.ItemState) (bool, error) {
		today := f.now().Format(dateLayout)
		if start != "" && today < start {
			return false, nil
		}
		if end != "" && today > end {
			return false, nil
		}
		return true, nil
	}, nil
}

// timeWindow matches start <= now < end. A start after end wraps past
// midnight; equal bounds match the whole day.
func (f *Factory) timeWindow(ctx Context) (condition.Predicate, error) {
	start, err := clockSeconds(ctx.String("start"))
	if err != nil {
		return nil, contextError(TimeWindow, "start", "%v", err)
	}
	end, err := clockSeconds(ctx.String("end"))
	if err != nil {
		return nil, contextError(TimeWindow, "end", "%v", err)
	}
	return func(condition.CartState, condition.ItemState) (bool, error) {
		now := f.now()
		t := now.Hour()*3600 + now.Minute()*60 + now.Second()
		switch {
		case start == end:
			return true, nil
		case start < end:
			return t >= start && t < end, nil
		default:
			return t >= start || t < end, nil
		}
	}, nil
}

func clockSeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}
