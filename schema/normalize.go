package schema

// millisecondThreshold is the smallest value treated as unix milliseconds.
// Anything at or above it gets divided down until it reads as seconds, so a
// normalized timestamp is always below the threshold and normalizing twice is
// a no-op.
const millisecondThreshold = 10_000_000_000

// NormalizeUnixSeconds converts a backend timestamp to unix seconds. A value
// whose magnitude is at or above 10^10 is taken to be milliseconds (or finer)
// and floor-divided until it is in seconds. Applied uniformly at every
// boundary where a timestamp crosses from backend-native to unified form.
func NormalizeUnixSeconds(t int64) int64 {
	if t < 0 {
		return 0
	}
	for t >= millisecondThreshold {
		t /= 1000
	}
	return t
}

// NormalizeUnixSecondsPtr normalizes optional timestamps, mapping nil to 0.
func NormalizeUnixSecondsPtr(t *int64) int64 {
	if t == nil {
		return 0
	}
	return NormalizeUnixSeconds(*t)
}
