package calc

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SimulationPaths is the fixed number of market paths per estimate.
const SimulationPaths = 1000

// DefaultSeed keeps estimates reproducible across runs unless the caller
// supplies its own seed.
const DefaultSeed int64 = 42

// Annual return assumptions per asset class. Portfolio variance treats the
// classes as independent, which understates correlation in real markets
// and is stated as an assumption on every record.
const (
	stocksMean   = 0.09
	stocksStddev = 0.17
	bondsMean    = 0.04
	bondsStddev  = 0.06
	cashMean     = 0.02
	cashStddev   = 0.01
)

type Allocation struct {
	Stocks float64
	Bonds  float64
	Cash   float64
}

func (a Allocation) mean() float64 {
	return a.Stocks*stocksMean + a.Bonds*bondsMean + a.Cash*cashMean
}

func (a Allocation) stddev() float64 {
	variance := a.Stocks*a.Stocks*stocksStddev*stocksStddev +
		a.Bonds*a.Bonds*bondsStddev*bondsStddev +
		a.Cash*a.Cash*cashStddev*cashStddev
	return math.Sqrt(variance)
}

type PercentileBands struct {
	P10 float64
	P25 float64
	P50 float64
	P75 float64
	P90 float64
}

type SuccessEstimate struct {
	SuccessRate    float64
	Paths          int
	PortfolioMean  float64
	PortfolioStdev float64
	Finals         PercentileBands
}

// RetirementSuccess runs a seeded Monte Carlo simulation of annual portfolio
// returns and reports the share of paths whose final value meets the target.
func RetirementSuccess(current, target float64, years int, annualContribution float64, alloc Allocation, seed int64) (SuccessEstimate, error) {
	if target <= 0 {
		return SuccessEstimate{}, fmt.Errorf("target must be positive, got %.0f", target)
	}
	if years <= 0 {
		return SuccessEstimate{}, fmt.Errorf("horizon must be positive, got %d", years)
	}
	if sum := alloc.Stocks + alloc.Bonds + alloc.Cash; math.Abs(sum-1) > 0.01 {
		return SuccessEstimate{}, fmt.Errorf("allocation weights must sum to 1, got %.2f", sum)
	}

	mean := alloc.mean()
	stddev := alloc.stddev()
	rng := rand.New(rand.NewSource(seed))

	finals := make([]float64, SimulationPaths)
	succeeded := 0
	for path := 0; path < SimulationPaths; path++ {
		value := current
		for year := 0; year < years; year++ {
			annualReturn := mean + stddev*rng.NormFloat64()
			value = value*(1+annualReturn) + annualContribution
			if value < 0 {
				value = 0
			}
		}
		finals[path] = value
		if value >= target {
			succeeded++
		}
	}
	sort.Float64s(finals)

	return SuccessEstimate{
		SuccessRate:    round1(float64(succeeded) / SimulationPaths * 100),
		Paths:          SimulationPaths,
		PortfolioMean:  mean,
		PortfolioStdev: stddev,
		Finals: PercentileBands{
			P10: round2(percentile(finals, 0.10)),
			P25: round2(percentile(finals, 0.25)),
			P50: round2(percentile(finals, 0.50)),
			P75: round2(percentile(finals, 0.75)),
			P90: round2(percentile(finals, 0.90)),
		},
	}, nil
}

// percentile reads from a sorted slice using the nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
