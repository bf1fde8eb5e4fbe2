package service

import (
	"github.com/shopspring/decimal"

	"github.com/mentora/mentora-pay-api/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ComputeCommission splits a payment amount into mentor commission and
// platform fee. Rates are percentages (37 means 37%). Both legs are rounded
// to the currency's minor-unit precision with banker's rounding so the bias
// does not accumulate across many small payments.
//
// A payment without a mentor assignment settles with a zero mentor rate; the
// platform fee still applies.
func ComputeCommission(amount, mentorRatePercent, platformRatePercent decimal.Decimal, precision int32) models.CommissionSplit {
	return models.CommissionSplit{
		MentorCommission: percentageOf(amount, mentorRatePercent, precision),
		PlatformFee:      percentageOf(amount, platformRatePercent, precision),
	}
}

func percentageOf(amount, ratePercent decimal.Decimal, precision int32) decimal.Decimal {
	if ratePercent.Sign() <= 0 || amount.Sign() <= 0 {
		return decimal.Zero.Round(precision)
	}
	return amount.Mul(ratePercent).Div(hundred).RoundBank(precision)
}
