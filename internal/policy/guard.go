// Package policy evaluates attempt caps and time limits. Every function is pure; callers
// supply "now".
package policy

import "time"

// CanStartAttempt reports whether another attempt may begin given the number of completed
// attempts. A nil maxAttempts means unlimited.
func CanStartAttempt(completedAttempts int, maxAttempts *int) bool {
	if maxAttempts == nil {
		return true
	}
	return completedAttempts < *maxAttempts
}

// IsExpired reports whether an attempt started at startedAt has used up its time limit.
// Untimed attempts never expire.
func IsExpired(startedAt time.Time, timeLimitMinutes *int, now time.Time) bool {
	limit, timed := limitDuration(timeLimitMinutes)
	if !timed {
		return false
	}
	return now.Sub(startedAt) >= limit
}

func limitDuration(timeLimitMinutes *int) (time.Duration, bool) {
	if timeLimitMinutes == nil {
		return 0, false
	}
	return time.Duration(*timeLimitMinutes) * time.Minute, true
}
