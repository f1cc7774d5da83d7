package policy

import "time"

// Remaining projects how much time is left on an attempt, clamped at zero. The second
// result is false for untimed attempts.
func Remaining(startedAt time.Time, timeLimitMinutes *int, now time.Time) (time.Duration, bool) {
	limit, timed := limitDuration(timeLimitMinutes)
	if !timed {
		return 0, false
	}
	left := limit - now.Sub(startedAt)
	if left < 0 {
		left = 0
	}
	return left, true
}

// RemainingSeconds is Remaining rounded up to whole seconds, so it only reads 0 once the
// attempt has actually expired. Untimed attempts report -1.
func RemainingSeconds(startedAt time.Time, timeLimitMinutes *int, now time.Time) int64 {
	left, timed := Remaining(startedAt, timeLimitMinutes, now)
	if !timed {
		return -1
	}
	secs := int64(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Deadline is the instant the attempt expires; false for untimed attempts.
func Deadline(startedAt time.Time, timeLimitMinutes *int) (time.Time, bool) {
	limit, timed := limitDuration(timeLimitMinutes)
	if !timed {
		return time.Time{}, false
	}
	return startedAt.Add(limit), true
}
