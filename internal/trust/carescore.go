// Package trust computes the care score and trust tier for a bond from raw
// interaction counters. Everything here is pure; when to recalculate is the
// caller's scheduling decision.
package trust

import (
	"math"

	"bond-mesh/go-node/pkg/models"
)

const (
	weightFrequency      = 0.3
	weightReciprocity    = 0.3
	weightConsistency    = 0.2
	weightResponsiveness = 0.2

	// frequencyNorm normalizes against roughly 20 interactions per day
	// over a 7 day window.
	frequencyNorm = 140.0

	reciprocityMinSamples = 3

	targetResponseMinutes = 60.0

	// DefaultHalfLifeDays controls exponential decay of an idle bond.
	DefaultHalfLifeDays = 14.0

	hysteresis = 0.02

	thresholdStrut    = 0.2
	thresholdCoherent = 0.5
	thresholdResonant = 0.8
)

// Components derives the four [0,1] score components from counters.
func Components(c *Counters) models.CareScoreComponents {
	return models.CareScoreComponents{
		Frequency:      frequency(c),
		Reciprocity:    reciprocity(c),
		Consistency:    consistency(c),
		Responsiveness: responsiveness(c),
	}
}

// Score folds the components into the composite care score.
func Score(comp models.CareScoreComponents) float64 {
	s := weightFrequency*comp.Frequency +
		weightReciprocity*comp.Reciprocity +
		weightConsistency*comp.Consistency +
		weightResponsiveness*comp.Responsiveness
	return clamp01(s)
}

// Decay applies exponential decay for the given idle period:
// score·e^(−λt) with λ = ln 2 / halfLifeDays.
func Decay(score, elapsedDays, halfLifeDays float64) float64 {
	if elapsedDays <= 0 {
		return clamp01(score)
	}
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	lambda := math.Ln2 / halfLifeDays
	return clamp01(score * math.Exp(-lambda*elapsedDays))
}

// TierFor maps a score to a trust tier with hysteresis around each boundary.
// A node only leaves its current tier when the score crosses the boundary by
// the margin, which prevents oscillation for scores sitting on a threshold.
func TierFor(score float64, current models.TrustTier) models.TrustTier {
	candidates := []struct {
		tier      models.TrustTier
		threshold float64
	}{
		{models.TierResonant, thresholdResonant},
		{models.TierCoherent, thresholdCoherent},
		{models.TierStrut, thresholdStrut},
	}
	for _, cand := range candidates {
		switch {
		case cand.tier > current:
			if score > cand.threshold+hysteresis {
				return cand.tier
			}
		default:
			if score >= cand.threshold-hysteresis {
				return cand.tier
			}
		}
	}
	return models.TierGhost
}

func frequency(c *Counters) float64 {
	return clamp01(float64(c.Sent+c.Received) / frequencyNorm)
}

func reciprocity(c *Counters) float64 {
	total := c.Sent + c.Received
	if total < reciprocityMinSamples {
		return 0.5
	}
	lo, hi := c.Sent, c.Received
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		hi = 1
	}
	return clamp01(float64(lo) / float64(hi))
}

func consistency(c *Counters) float64 {
	buckets := c.dailyValues()
	if len(buckets) < 2 {
		return 1.0
	}
	mean, stddev := meanStddev(buckets)
	return 1.0 / (1.0 + stddev/(mean+0.1))
}

func responsiveness(c *Counters) float64 {
	meanMinutes := 0.0
	if len(c.latencies) > 0 {
		var total float64
		for _, d := range c.latencies {
			total += d.Minutes()
		}
		meanMinutes = total / float64(len(c.latencies))
	}
	return clamp01((targetResponseMinutes - meanMinutes) / targetResponseMinutes)
}

func meanStddev(values []float64) (mean, stddev float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
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
