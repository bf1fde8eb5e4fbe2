package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeCommissionBasicSplit(t *testing.T) {
	split := ComputeCommission(decimal.NewFromInt(10000), decimal.NewFromInt(37), decimal.NewFromInt(3), 2)

	require.True(t, split.MentorCommission.Equal(decimal.NewFromInt(3700)),
		"mentor commission = %s", split.MentorCommission)
	require.True(t, split.PlatformFee.Equal(decimal.NewFromInt(300)),
		"platform fee = %s", split.PlatformFee)
	require.True(t, split.MentorCommission.Add(split.PlatformFee).LessThanOrEqual(decimal.NewFromInt(10000)))
}

func TestComputeCommissionZeroMentorRate(t *testing.T) {
	split := ComputeCommission(decimal.NewFromInt(10000), decimal.Zero, decimal.NewFromInt(3), 2)

	require.True(t, split.MentorCommission.IsZero())
	require.True(t, split.PlatformFee.Equal(decimal.NewFromInt(300)))
}

func TestComputeCommissionBankersRounding(t *testing.T) {
	// Half-even: exact halves round to the even neighbour, so both
	// 3.335 and 3.345 land on 3.34.
	cases := []struct {
		amount string
		rate   int64
		want   string
	}{
		{"667", 50, "333.5"},    // exact, no rounding at precision 2
		{"66.7", 5, "3.34"},     // 3.335 -> even neighbour 3.34
		{"66.9", 5, "3.34"},     // 3.345 -> even neighbour 3.34
		{"66.8", 5, "3.34"},     // 3.34 exact
		{"100.01", 3, "3.00"},   // 3.0003 -> 3.00
		{"0.01", 37, "0.00"},    // 0.0037 -> 0.00
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		split := ComputeCommission(amount, decimal.NewFromInt(tc.rate), decimal.Zero, 2)
		require.True(t, split.MentorCommission.Equal(decimal.RequireFromString(tc.want)),
			"amount=%s rate=%d got=%s want=%s", tc.amount, tc.rate, split.MentorCommission, tc.want)
	}
}

func TestComputeCommissionLegsAreIndependent(t *testing.T) {
	// Each leg is a percentage of the gross amount, not of what the other
	// leg left over. With rates summing past 100 the legs can exceed the
	// amount; rate validation upstream is what keeps configurations sane.
	split := ComputeCommission(decimal.NewFromInt(100), decimal.NewFromInt(98), decimal.NewFromInt(3), 2)

	require.True(t, split.MentorCommission.Equal(decimal.NewFromInt(98)))
	require.True(t, split.PlatformFee.Equal(decimal.NewFromInt(3)))
	require.True(t, split.MentorCommission.Add(split.PlatformFee).GreaterThan(decimal.NewFromInt(100)))
}

func TestComputeCommissionNegativeInputsClampToZero(t *testing.T) {
	split := ComputeCommission(decimal.NewFromInt(-500), decimal.NewFromInt(37), decimal.NewFromInt(3), 2)
	require.True(t, split.MentorCommission.IsZero())
	require.True(t, split.PlatformFee.IsZero())

	split = ComputeCommission(decimal.NewFromInt(10000), decimal.NewFromInt(-5), decimal.NewFromInt(-1), 2)
	require.True(t, split.MentorCommission.IsZero())
	require.True(t, split.PlatformFee.IsZero())
}
