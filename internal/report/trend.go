package report

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// CalculateTrend compares the mean year of the first and second half of the
// occurrences, in the order given. It measures recency skew, not a slope.
// With an odd count the middle element belongs to the second half.
func CalculateTrend(years []int) Trend {
	if len(years) < 3 {
		return TrendStable
	}
	mid := len(years) / 2
	diff := mean(years[mid:]) - mean(years[:mid])
	switch {
	case diff > 1:
		return TrendIncreasing
	case diff < -1:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(v []int) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}
