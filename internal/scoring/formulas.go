package scoring

import (
	"math"
	"time"
)

// Composite weights; they sum to 1.
const (
	WeightTransactions = 0.40
	WeightAge          = 0.40
	WeightAssets       = 0.20
)

const (
	txLogFactor       = 23.0
	youngAgeLogFactor = 40.0
	matureAgeBase     = 80.0
	matureAgeFactor   = 20.0
	daysPerYear       = 365.0
	singleAssetScore  = 40
	fewAssetsBase     = 40.0
	fewAssetsFactor   = 12.0
	manyAssetsFactor  = 20.0
	fewAssetsMax      = 5
)

// ClampScore bounds x to [0,100] and rounds half away from zero. Non-finite input is 0.
func ClampScore(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, x))))
}

// TransactionScore grows with the log of the signature count.
func TransactionScore(count int) int {
	if count <= 0 {
		return 0
	}
	return ClampScore(math.Log10(float64(count)) * txLogFactor)
}

// AgeScore rates the wallet by the age of its oldest known transaction.
// blockTime is in seconds since the epoch; nil, zero or a timestamp not in the past scores 0.
func AgeScore(blockTime *int64, now time.Time) int {
	if blockTime == nil || *blockTime <= 0 {
		return 0
	}
	ageMs := now.UnixMilli() - *blockTime*1000
	if ageMs <= 0 {
		return 0
	}
	days := float64(ageMs) / float64(24*time.Hour/time.Millisecond)
	if days < daysPerYear {
		return ClampScore(math.Log10(days+1) * youngAgeLogFactor)
	}
	return ClampScore(matureAgeBase + math.Log10(days/daysPerYear+1)*matureAgeFactor)
}

// AssetScore rewards the first asset heavily, then grows with the square root of the count.
func AssetScore(count int) int {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return singleAssetScore
	case count <= fewAssetsMax:
		return ClampScore(fewAssetsBase + math.Sqrt(float64(count))*fewAssetsFactor)
	default:
		return ClampScore(math.Sqrt(float64(count)) * manyAssetsFactor)
	}
}

// CompositeScore is the weighted sum of the three sub-scores.
func CompositeScore(tnx, age, assets int) int {
	return ClampScore(float64(tnx)*WeightTransactions +
		float64(age)*WeightAge +
		float64(assets)*WeightAssets)
}

// Rating 评分等级
func Rating(final int) string {
	switch {
	case final > 80:
		return "Excellent"
	case final > 60:
		return "Very Good"
	case final > 40:
		return "Good"
	case final > 20:
		return "Fair"
	default:
		return "Poor"
	}
}
