// Package tier holds the loyalty ladder. Every function here is pure.
package tier

import (
	"github.com/shopspring/decimal"
)

type Level int

const (
	Iniciante Level = iota
	Bronze
	Prata
	Ouro
	Platina
	Diamante
)

const MaxLevel = Diamante

type Perks struct {
	FreeShipping      bool `json:"free_shipping"`
	PrioritySupport   bool `json:"priority_support"`
	ExclusiveProducts bool `json:"exclusive_products"`
}

type Tier struct {
	Level                   Level           `json:"level"`
	Name                    string          `json:"name"`
	MinReferrals            int             `json:"min_referrals"`
	MinTotalSales           decimal.Decimal `json:"min_total_sales"`
	MinPoints               int64           `json:"min_points"`
	PointsMultiplier        decimal.Decimal `json:"points_multiplier"`
	ReferrerBonusMultiplier decimal.Decimal `json:"referrer_bonus_multiplier"`
	RefereeBonusMultiplier  decimal.Decimal `json:"referee_bonus_multiplier"`
	CashbackMultiplier      decimal.Decimal `json:"cashback_multiplier"`
	UpgradeBonus            int64           `json:"upgrade_bonus"`
	Perks                   Perks           `json:"perks"`
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var ladder = [...]Tier{
	{
		Level: Iniciante, Name: "Iniciante",
		MinTotalSales:           decimal.Zero,
		PointsMultiplier:        d("1.0"),
		ReferrerBonusMultiplier: d("1.0"),
		RefereeBonusMultiplier:  d("1.0"),
		CashbackMultiplier:      d("1.0"),
	},
	{
		Level: Bronze, Name: "Bronze",
		MinReferrals: 3, MinTotalSales: d("150"), MinPoints: 1000,
		PointsMultiplier:        d("1.1"),
		ReferrerBonusMultiplier: d("1.1"),
		RefereeBonusMultiplier:  d("1.0"),
		CashbackMultiplier:      d("1.0"),
		UpgradeBonus:            200,
	},
	{
		Level: Prata, Name: "Prata",
		MinReferrals: 10, MinTotalSales: d("500"), MinPoints: 2500,
		PointsMultiplier:        d("1.2"),
		ReferrerBonusMultiplier: d("1.2"),
		RefereeBonusMultiplier:  d("1.05"),
		CashbackMultiplier:      d("1.1"),
		UpgradeBonus:            500,
	},
	{
		Level: Ouro, Name: "Ouro",
		MinReferrals: 25, MinTotalSales: d("1500"), MinPoints: 7500,
		PointsMultiplier:        d("1.5"),
		ReferrerBonusMultiplier: d("1.3"),
		RefereeBonusMultiplier:  d("1.1"),
		CashbackMultiplier:      d("1.2"),
		UpgradeBonus:            1000,
		Perks:                   Perks{FreeShipping: true},
	},
	{
		Level: Platina, Name: "Platina",
		MinReferrals: 50, MinTotalSales: d("4000"), MinPoints: 15000,
		PointsMultiplier:        d("1.8"),
		ReferrerBonusMultiplier: d("1.5"),
		RefereeBonusMultiplier:  d("1.15"),
		CashbackMultiplier:      d("1.3"),
		UpgradeBonus:            2000,
		Perks:                   Perks{FreeShipping: true, PrioritySupport: true},
	},
	{
		Level: Diamante, Name: "Diamante",
		MinReferrals: 100, MinTotalSales: d("10000"), MinPoints: 30000,
		PointsMultiplier:        d("2.0"),
		ReferrerBonusMultiplier: d("2.0"),
		RefereeBonusMultiplier:  d("1.2"),
		CashbackMultiplier:      d("1.5"),
		UpgradeBonus:            5000,
		Perks:                   Perks{FreeShipping: true, PrioritySupport: true, ExclusiveProducts: true},
	},
}

// Ladder returns a copy of the ordered tier table.
func Ladder() []Tier {
	out := make([]Tier, len(ladder))
	copy(out, ladder[:])
	return out
}

func (l Level) Valid() bool {
	return l >= Iniciante && l <= MaxLevel
}

func (l Level) String() string {
	return Get(l).Name
}

// Get clamps out-of-range levels onto the ladder.
func Get(level Level) Tier {
	if level < Iniciante {
		level = Iniciante
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return ladder[level]
}

// ForReferralStats returns the highest tier whose referral AND sales thresholds are met.
func ForReferralStats(referrals int, totalSales decimal.Decimal) Level {
	result := Iniciante
	for _, t := range ladder {
		if referrals < t.MinReferrals || totalSales.LessThan(t.MinTotalSales) {
			break
		}
		result = t.Level
	}
	return result
}

// ForPoints returns the highest tier whose points threshold is met by progress.
func ForPoints(progress int64) Level {
	result := Iniciante
	for _, t := range ladder {
		if progress < t.MinPoints {
			break
		}
		result = t.Level
	}
	return result
}

// Promote never lowers a tier: demotion is an explicit admin action.
func Promote(current, computed Level) Level {
	if computed > current {
		return computed
	}
	return current
}

// ApplyPoints scales a base amount of points by the tier's points multiplier, rounding down.
func ApplyPoints(level Level, base int64) int64 {
	if base <= 0 {
		return 0
	}
	return decimal.NewFromInt(base).Mul(Get(level).PointsMultiplier).Floor().IntPart()
}

type NextTierInfo struct {
	Current      Tier    `json:"current"`
	NextTier     *Tier   `json:"next_tier,omitempty"`
	PointsNeeded int64   `json:"points_needed"`
	Progress     float64 `json:"progress"`
}

// Next reports how far tierProgress is from the tier after level.
// Progress is a percentage in [0, 100].
func Next(level Level, tierProgress int64) NextTierInfo {
	info := NextTierInfo{Current: Get(level)}
	if level >= MaxLevel {
		info.Progress = 100
		return info
	}

	next := Get(level + 1)
	info.NextTier = &next

	needed := next.MinPoints - tierProgress
	if needed < 0 {
		needed = 0
	}
	info.PointsNeeded = needed

	if next.MinPoints <= 0 {
		info.Progress = 100
		return info
	}
	progress := decimal.NewFromInt(max(tierProgress, 0)).
		Div(decimal.NewFromInt(next.MinPoints)).
		Mul(decimal.NewFromInt(100))
	if progress.GreaterThan(decimal.NewFromInt(100)) {
		progress = decimal.NewFromInt(100)
	}
	info.Progress = progress.Round(2).InexactFloat64()
	return info
}

// ReferralProgress is the fraction in [0, 1] of the way to the tier after level,
// limited by whichever of the referral or sales thresholds is further away.
func ReferralProgress(level Level, referrals int, totalSales decimal.Decimal) float64 {
	if level >= MaxLevel {
		return 1
	}
	next := Get(level + 1)

	byReferrals := decimal.NewFromInt(1)
	if next.MinReferrals > 0 {
		byReferrals = decimal.NewFromInt(int64(referrals)).Div(decimal.NewFromInt(int64(next.MinReferrals)))
	}
	bySales := decimal.NewFromInt(1)
	if next.MinTotalSales.IsPositive() {
		bySales = totalSales.Div(next.MinTotalSales)
	}

	progress := decimal.Min(byReferrals, bySales)
	if progress.IsNegative() {
		progress = decimal.Zero
	}
	if progress.GreaterThan(decimal.NewFromInt(1)) {
		progress = decimal.NewFromInt(1)
	}
	return progress.Round(4).InexactFloat64()
}
