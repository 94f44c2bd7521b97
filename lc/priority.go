package lc

// Level is the priority bucket of a managed service.
// Lower levels start first and stop last. Levels need not be contiguous.
type Level int64

const (
	Earliest Level = -10000
	Earlier  Level = -5000
	Normal   Level = 0
	Later    Level = 5000
	Latest   Level = 10000
)

// Between returns a Level between lower and upper.
func Between(lower, upper Level) Level {
	if lower == upper {
		return lower
	}
	if lower > upper {
		lower, upper = upper, lower
	}
	return lower + (upper-lower)/2
}
