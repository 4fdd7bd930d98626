package domain

import (
	"math"
	"time"
)

// minAlignedSamples is the fewest (counts, dose) pairs a candidate offset may
// rest on. Anything smaller is an implausible flight window.
const minAlignedSamples = 5

// AlignConfig controls the offset search and the scaling fit.
type AlignConfig struct {
	Window      time.Duration // candidate offsets span ±Window
	Step        time.Duration // offset search resolution
	MinFitR2    float64       // confidence threshold; below it the flight is unresolved
	ForceOrigin bool          // force the counts->dose fit through the origin
}

// Align determines how the detector's clock is offset from the simulation
// clock, and the linear conversion from raw counts to dose rate. Input rows
// come from Normalize: counts and simulated total dose on the same grid.
//
// For each candidate offset o the counts at detector time t are paired with
// the dose interpolated at t+o; pairs whose shifted time leaves the dose
// coverage are dropped. The offset with the highest squared Pearson
// correlation wins, ties going to the offset closest to zero. The scaling
// coefficient is then fit at the winning offset.
//
// Deterministic: identical rows and config always yield the same result.
func Align(rows []Row, cfg AlignConfig) (AlignmentResult, error) {
	times := make([]float64, len(rows))
	counts := make([]float64, len(rows))
	dose := make([]float64, len(rows))
	if len(rows) > 0 {
		base := rows[0].Timestamp
		for i, r := range rows {
			times[i] = r.Timestamp.Sub(base).Seconds()
			counts[i] = float64(r.Count5s)
			dose[i] = r.DoseTotal
		}
	}

	if len(rows) < minAlignedSamples {
		return AlignmentResult{}, &AlignmentFailedError{Reason: "too few samples to align"}
	}
	if variance(counts) == 0 {
		return AlignmentResult{}, &AlignmentFailedError{Reason: "detector counts have zero variance"}
	}
	if variance(dose) == 0 {
		return AlignmentResult{}, &AlignmentFailedError{Reason: "simulated dose rate has zero variance"}
	}

	step := int(cfg.Step.Seconds())
	if step < 1 {
		step = 1
	}
	window := int(cfg.Window.Seconds())
	if window < 0 {
		window = -window
	}

	var (
		found      bool
		bestOffset int
		bestR2     float64
	)
	c := make([]float64, 0, len(rows))
	d := make([]float64, 0, len(rows))
	for o := -window; o <= window; o += step {
		c, d = shiftedPairs(times, counts, dose, float64(o), c[:0], d[:0])
		if len(c) < minAlignedSamples {
			continue
		}
		r2, ok := pearsonR2(c, d)
		if !ok {
			continue
		}
		if !found || r2 > bestR2 || (r2 == bestR2 && abs(o) < abs(bestOffset)) {
			found = true
			bestOffset = o
			bestR2 = r2
		}
	}

	if !found {
		return AlignmentResult{}, &AlignmentFailedError{Reason: "no candidate offset kept enough overlapping samples"}
	}
	if bestR2 < cfg.MinFitR2 {
		return AlignmentResult{}, &AlignmentFailedError{
			Reason:    "fit confidence below threshold",
			FitR2:     bestR2,
			Threshold: cfg.MinFitR2,
		}
	}

	c, d = shiftedPairs(times, counts, dose, float64(bestOffset), c[:0], d[:0])
	beta := fitBeta(c, d, cfg.ForceOrigin)
	if beta <= 0 {
		return AlignmentResult{}, &AlignmentFailedError{
			Reason: "scaling coefficient is not positive",
			FitR2:  bestR2,
		}
	}

	return AlignmentResult{
		OffsetSeconds: bestOffset,
		ScalingBeta:   beta,
		FitR2:         bestR2,
	}, nil
}

// shiftedPairs pairs counts at detector time t with dose interpolated at
// t+offset, dropping pairs that fall off the dose coverage.
func shiftedPairs(times, counts, dose []float64, offset float64, c, d []float64) ([]float64, []float64) {
	for i := range times {
		v, ok := interpAt(times, dose, times[i]+offset)
		if !ok {
			continue
		}
		c = append(c, counts[i])
		d = append(d, v)
	}
	return c, d
}

// fitBeta fits the counts->dose scaling coefficient by ordinary least
// squares. With forceOrigin the intercept is bound to zero, giving
// beta = sum(c*d)/sum(c^2); otherwise a full slope/intercept fit is
// performed and only the slope is kept.
func fitBeta(counts, dose []float64, forceOrigin bool) float64 {
	if forceOrigin {
		var num, den float64
		for i := range counts {
			num += counts[i] * dose[i]
			den += counts[i] * counts[i]
		}
		if den == 0 {
			return 0
		}
		return num / den
	}

	cMean := mean(counts)
	dMean := mean(dose)
	var num, den float64
	for i := range counts {
		num += (counts[i] - cMean) * (dose[i] - dMean)
		den += (counts[i] - cMean) * (counts[i] - cMean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// pearsonR2 returns the squared Pearson correlation coefficient of the two
// series. The second return is false when either series is constant.
func pearsonR2(a, b []float64) (float64, bool) {
	aMean := mean(a)
	bMean := mean(b)
	var cov, aVar, bVar float64
	for i := range a {
		da := a[i] - aMean
		db := b[i] - bMean
		cov += da * db
		aVar += da * da
		bVar += db * db
	}
	if aVar == 0 || bVar == 0 {
		return 0, false
	}
	r := cov / math.Sqrt(aVar*bVar)
	return r * r, true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return sum
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
