package normalization

import (
	"math/big"

	"morpho-market-indexer/internal/domain"
)

// DefaultMaxChartPoints caps chart series sent to the dashboard.
const DefaultMaxChartPoints = 50

// SeriesPoint is one cumulative market state sample for charting. Values
// are display-scaled floats derived after each activity in order.
type SeriesPoint struct {
	Timestamp   int64   `json:"timestamp"`
	BlockNumber uint64  `json:"blockNumber"`
	NetSupply   float64 `json:"netSupply"`
	NetBorrow   float64 `json:"netBorrow"`
}

// BuildCumulativeSeries folds ordered activities into a running net
// supply / net borrow series, one point per activity. Accumulation stays
// on big.Int; only the emitted points are floats.
func BuildCumulativeSeries(activities []*domain.Activity) []SeriesPoint {
	supply := new(big.Int)
	borrow := new(big.Int)

	points := make([]SeriesPoint, 0, len(activities))
	for _, a := range activities {
		switch a.Kind {
		case domain.KindSupply:
			supply.Add(supply, a.Amount)
		case domain.KindWithdraw:
			supply.Sub(supply, a.Amount)
		case domain.KindBorrow:
			borrow.Add(borrow, a.Amount)
		case domain.KindRepay:
			borrow.Sub(borrow, a.Amount)
		}
		points = append(points, SeriesPoint{
			Timestamp:   a.Timestamp,
			BlockNumber: a.BlockNumber,
			NetSupply:   domain.DisplayFloat(supply, domain.CollateralDecimals),
			NetBorrow:   domain.DisplayFloat(borrow, domain.LoanDecimals),
		})
	}
	return points
}

// Downsample thins a series to at most maxPoints by taking every Nth
// point. The final point always survives so the chart ends at the current
// state; when the stride misses it, it replaces the last sample.
func Downsample(points []SeriesPoint, maxPoints int) []SeriesPoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}

	step := (len(points) + maxPoints - 1) / maxPoints
	out := make([]SeriesPoint, 0, maxPoints)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}

	last := points[len(points)-1]
	if out[len(out)-1] != last {
		out[len(out)-1] = last
	}
	return out
}
