package monitoring

// IntervalOverlap returns the minutes shared by a business window and an interval,
// both expressed as minutes of the same calendar day.
func IntervalOverlap(businessStart, businessEnd, intervalStart, intervalEnd int) int {
	start := max(businessStart, intervalStart)
	end := min(businessEnd, intervalEnd)
	if end <= start {
		return 0
	}
	return end - start
}
