// Package confidence computes calibrated confidence scores and intervals
// for signals. The point estimate is a weighted average of validation
// quality, data completeness, and source reliability; the interval widens
// with missing data and unreliable sources and narrows with sample size.
package confidence

import (
	"math"

	"github.com/omen-systems/omen/internal/domain"
)

// Point estimate weights
const (
	weightBase         = 0.4
	weightCompleteness = 0.3
	weightReliability  = 0.3
)

// Uncertainty model constants
const (
	baseUncertainty = 0.05
	maxUncertainty  = 0.25
)

// zTable maps confidence levels to z-scores
var zTable = map[float64]float64{
	0.90: 1.645,
	0.95: 1.960,
	0.99: 2.576,
}

const defaultZ = 1.960

// Inputs carries the ingredients of a confidence computation
type Inputs struct {
	Base         float64 // Validation score, [0,1]
	Completeness float64 // Filled-field ratio, [0,1]
	Reliability  float64 // Source trust, [0,1]
	SampleSize   int     // Corroborating observations; 0 if unknown
	Level        float64 // Interval level; 0 means 0.95
}

// Calculate produces the point estimate and its confidence interval
func Calculate(in Inputs) domain.ConfidenceInterval {
	point := clamp01(weightBase*in.Base + weightCompleteness*in.Completeness + weightReliability*in.Reliability)

	sigma := baseUncertainty
	sigma += math.Max(0, (1-in.Completeness)*0.10)
	sigma += math.Max(0, (0.9-in.Reliability)*0.10)
	if sigma > maxUncertainty {
		sigma = maxUncertainty
	}
	if in.SampleSize > 0 {
		sigma /= math.Sqrt(float64(in.SampleSize))
	}

	level := in.Level
	if level == 0 {
		level = 0.95
	}
	z, ok := zTable[level]
	if !ok {
		z = defaultZ
	}

	return domain.ConfidenceInterval{
		Point:  point,
		Lower:  clamp01(point - z*sigma),
		Upper:  clamp01(point + z*sigma),
		Level:  level,
		Method: "weighted_bayesian",
	}
}

// Combine merges intervals with inverse-variance weighting. A zero-width
// interval gets a fixed large weight instead of infinity.
func Combine(intervals []domain.ConfidenceInterval) domain.ConfidenceInterval {
	if len(intervals) == 0 {
		return domain.ConfidenceInterval{Method: "inverse_variance"}
	}
	if len(intervals) == 1 {
		return intervals[0]
	}

	var sumWeights, weightedPoint float64
	level := intervals[0].Level
	for _, ci := range intervals {
		width := ci.Upper - ci.Lower
		var w float64
		if width <= 0 {
			w = 100
		} else {
			w = 1 / (width * width)
		}
		sumWeights += w
		weightedPoint += w * ci.Point
	}

	point := clamp01(weightedPoint / sumWeights)
	se := math.Sqrt(1 / sumWeights)
	z, ok := zTable[level]
	if !ok {
		z = defaultZ
	}

	return domain.ConfidenceInterval{
		Point:  point,
		Lower:  clamp01(point - z*se),
		Upper:  clamp01(point + z*se),
		Level:  level,
		Method: "inverse_variance",
	}
}

// ConflictSeverity grades disagreement between sources
type ConflictSeverity string

const (
	ConflictNone   ConflictSeverity = "none"
	ConflictLow    ConflictSeverity = "low"
	ConflictMedium ConflictSeverity = "medium"
	ConflictHigh   ConflictSeverity = "high"
)

var conflictWiden = map[ConflictSeverity]float64{
	ConflictNone:   1.0,
	ConflictLow:    1.1,
	ConflictMedium: 1.3,
	ConflictHigh:   1.5,
}

var conflictShift = map[ConflictSeverity]float64{
	ConflictNone:   0.0,
	ConflictLow:    -0.03,
	ConflictMedium: -0.08,
	ConflictHigh:   -0.15,
}

// AdjustForConflict widens an interval and shifts its point estimate down
// according to the detected conflict severity. The point never drops below
// 0.1: a conflicted signal is still a signal.
func AdjustForConflict(ci domain.ConfidenceInterval, severity ConflictSeverity) domain.ConfidenceInterval {
	widen, ok := conflictWiden[severity]
	if !ok {
		widen = 1.0
	}
	shift := conflictShift[severity]

	point := ci.Point + shift
	if point < 0.1 {
		point = 0.1
	}
	if point > 1.0 {
		point = 1.0
	}

	halfWidth := (ci.Upper - ci.Lower) / 2 * widen

	adjusted := ci
	adjusted.Point = point
	adjusted.Lower = clamp01(point - halfWidth)
	adjusted.Upper = clamp01(point + halfWidth)
	return adjusted
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
