package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetlink/internal/booking/domain"
)

func TestEstimateHours(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want int
	}{
		{name: "simple difference", from: "110001", to: "110005", want: 4},
		{name: "wraps at a day", from: "100000", to: "100050", want: 2},
		{name: "identical pincodes occupy one hour", from: "400001", to: "400001", want: 1},
		{name: "difference multiple of 24 occupies one hour", from: "100000", to: "100024", want: 1},
		{name: "unparseable from falls back to one hour", from: "abcde", to: "110001", want: 1},
		{name: "unparseable to falls back to one hour", from: "110001", to: "", want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, domain.EstimateHours(tc.from, tc.to))
		})
	}
}

func TestEstimateHoursIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"110001", "110005"},
		{"500001", "500025"},
		{"600001", "600015"},
		{"99999", "100001"},
	}
	for _, p := range pairs {
		require.Equal(t, domain.EstimateHours(p[0], p[1]), domain.EstimateHours(p[1], p[0]))
	}
}

func TestEstimateHoursRange(t *testing.T) {
	pincodes := []string{"10000", "110001", "110005", "400001", "500025", "999999"}
	for _, from := range pincodes {
		for _, to := range pincodes {
			hours := domain.EstimateHours(from, to)
			require.GreaterOrEqual(t, hours, 1)
			require.LessOrEqual(t, hours, 24)
		}
	}
}

func TestValidPincode(t *testing.T) {
	require.True(t, domain.ValidPincode("11000"))
	require.True(t, domain.ValidPincode("110001"))
	require.False(t, domain.ValidPincode("1100"))
	require.False(t, domain.ValidPincode("1100011"))
	require.False(t, domain.ValidPincode("11a001"))
	require.False(t, domain.ValidPincode(""))
	require.False(t, domain.ValidPincode("-11001"))
}
