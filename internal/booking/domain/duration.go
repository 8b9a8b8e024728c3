package domain

import (
	"regexp"
	"strconv"
)

var pincodePattern = regexp.MustCompile(`^\d{5,6}$`)

// ValidPincode reports whether s is a 5-6 digit location code.
func ValidPincode(s string) bool {
	return pincodePattern.MatchString(s)
}

// EstimateHours derives a deterministic ride duration in hours from a pair of
// pincodes. Codes that fail to parse fall back to 1 hour rather than failing,
// and the result is clamped to [1, 24) hours wrapped at a day — every booking
// occupies at least one hour. Both creation and availability search recompute
// the duration through this function, so the two paths can never disagree.
func EstimateHours(fromPincode, toPincode string) int {
	from, errFrom := strconv.Atoi(fromPincode)
	to, errTo := strconv.Atoi(toPincode)
	if errFrom != nil || errTo != nil {
		return 1
	}
	hours := (to - from) % 24
	if hours < 0 {
		hours = -hours
	}
	if hours == 0 {
		hours = 1
	}
	return hours
}
