// Package points converts workout time spans into the points currency.
package points

import "time"

// MinutesPerPoint is the size of one scoring bucket: every completed
// 45-minute block of training earns a single point.
const MinutesPerPoint = 45

// ForDurationMinutes returns the points earned for a workout lasting the
// given number of whole minutes. Non-positive durations earn zero points.
func ForDurationMinutes(durationMinutes int64) int64 {
	if durationMinutes <= 0 {
		return 0
	}
	return durationMinutes / MinutesPerPoint
}

// ForInterval returns the points earned for a workout spanning the given
// start and end instants. The span is truncated to whole minutes before
// bucketing, and an end at or before the start earns zero points.
func ForInterval(startedAt, endedAt time.Time) int64 {
	return ForDurationMinutes(int64(endedAt.Sub(startedAt) / time.Minute))
}

// IntervalSeconds returns the workout span in whole seconds, clamped at
// zero. Ranking aggregation sums these per user.
func IntervalSeconds(startedAt, endedAt time.Time) int64 {
	seconds := int64(endedAt.Sub(startedAt) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}
