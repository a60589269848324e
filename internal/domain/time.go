package domain

import "time"

// ValidateTZ resolves tz as an IANA location. An empty tz is UTC.
func ValidateTZ(tz string) (*time.Location, error) {
	return time.LoadLocation(tz)
}

// LocalTimestamp returns the wall clock of now in tz, labelled as UTC.
// Unknown zones fall back to UTC and report ok=false. An empty tz is UTC.
func LocalTimestamp(now time.Time, tz string) (ts time.Time, ok bool) {
	loc, err := ValidateTZ(tz)
	ok = err == nil
	if !ok {
		loc = time.UTC
	}
	lt := now.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), lt.Second(), lt.Nanosecond(), time.UTC), ok
}

// CooldownElapsed reports whether at least d has passed since last. A nil last has always elapsed.
func CooldownElapsed(now time.Time, last *time.Time, d time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= d
}
