package scheduler

import (
	"strings"
	"time"
)

type Period string

const (
	Daily  Period = "daily"
	Weekly Period = "weekly"
)

// DefaultHour is the hour digests go out when none is configured.
const DefaultHour = 18

// Frequency is when digests are sent: every day at Hour, or once a week on
// Day (0 = Sunday) at Hour. Hours and weekdays are read in whatever time
// zone the caller passes to IsDue.
type Frequency struct {
	Period Period       `json:"period"`
	Hour   int          `json:"hour"`
	Day    time.Weekday `json:"day"`
}

// DefaultFrequency is weekly at 18:00 on startOfWeek.
func DefaultFrequency(startOfWeek time.Weekday) Frequency {
	return Frequency{Period: Weekly, Hour: DefaultHour, Day: validDay(startOfWeek, time.Sunday)}
}

// Sanitize coerces f into range. Any period other than daily is weekly; an
// out-of-range hour becomes DefaultHour and an out-of-range day becomes
// startOfWeek.
func Sanitize(f Frequency, startOfWeek time.Weekday) Frequency {
	out := Frequency{Period: Weekly, Hour: f.Hour, Day: f.Day}
	if Period(strings.ToLower(strings.TrimSpace(string(f.Period)))) == Daily {
		out.Period = Daily
	}
	if out.Hour < 0 || out.Hour > 23 {
		out.Hour = DefaultHour
	}
	out.Day = validDay(out.Day, validDay(startOfWeek, time.Sunday))
	return out
}

func validDay(d, def time.Weekday) time.Weekday {
	if d < time.Sunday || d > time.Saturday {
		return def
	}
	return d
}

// IsDue reports whether a digest should go out at now. Daily frequencies
// are due for the whole configured hour, weekly ones for that hour on the
// configured weekday. Calling it twice within the due hour returns true
// twice; callers that tick more often than hourly must dedupe themselves.
func IsDue(f Frequency, now time.Time) bool {
	if now.Hour() != f.Hour {
		return false
	}
	if f.Period == Daily {
		return true
	}
	return now.Weekday() == f.Day
}

// NextDue returns the start of the first due hour strictly after now, in
// now's location.
func NextDue(f Frequency, now time.Time) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	for i := 0; i < 8*24+1; i++ {
		t = t.Add(time.Hour)
		if IsDue(f, t) {
			return t
		}
	}
	return time.Time{}
}
