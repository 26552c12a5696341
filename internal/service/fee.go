package service

import "github.com/shopspring/decimal"

// feeTier 手续费阶梯：fee = Fixed + amount * Rate，适用于 amount <= UpTo
type feeTier struct {
	UpTo  decimal.Decimal // 零值表示无上限
	Fixed decimal.Decimal
	Rate  decimal.Decimal
}

var feeSchedule = []feeTier{
	{UpTo: decimal.NewFromInt(1000), Fixed: decimal.NewFromInt(8), Rate: decimal.RequireFromString("0.03")},
	{UpTo: decimal.NewFromInt(5000), Fixed: decimal.NewFromInt(6), Rate: decimal.RequireFromString("0.025")},
	{UpTo: decimal.NewFromInt(10000), Fixed: decimal.NewFromInt(4), Rate: decimal.RequireFromString("0.02")},
	{Fixed: decimal.NewFromInt(3), Rate: decimal.RequireFromString("0.01")},
}

// CalculateFee 计算转账手续费
// 按金额绝对值落入唯一的阶梯，结果保留两位小数；金额为 0 时不收费
func CalculateFee(amount decimal.Decimal) decimal.Decimal {
	amount = amount.Abs()
	if !amount.IsPositive() {
		return decimal.Zero
	}

	for _, tier := range feeSchedule {
		if tier.UpTo.IsZero() || amount.LessThanOrEqual(tier.UpTo) {
			return tier.Fixed.Add(amount.Mul(tier.Rate)).Round(2)
		}
	}
	return decimal.Zero
}
