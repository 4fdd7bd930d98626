package domain

import (
	"math"
	"sort"
	"time"
)

// secondsSince converts timestamps to seconds relative to base.
func secondsSince(base time.Time, ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t.Sub(base).Seconds()
	}
	return out
}

// interpAt linearly interpolates the series (xs, ys) at x. xs must be
// strictly increasing. Returns false when x falls outside [xs[0], xs[n-1]]:
// values are never extrapolated.
func interpAt(xs, ys []float64, x float64) (float64, bool) {
	n := len(xs)
	if n == 0 || x < xs[0] || x > xs[n-1] {
		return 0, false
	}
	i := sort.SearchFloat64s(xs, x)
	if i < n && xs[i] == x {
		return ys[i], true
	}
	// xs[i-1] < x < xs[i]
	t := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + t*(ys[i]-ys[i-1]), true
}

// unwrapLon removes the ±360° jumps a trajectory picks up when it crosses
// the 180° meridian, so longitude interpolates as a continuous series.
func unwrapLon(lon []float64) []float64 {
	out := make([]float64, len(lon))
	if len(lon) == 0 {
		return out
	}
	out[0] = lon[0]
	offset := 0.0
	for i := 1; i < len(lon); i++ {
		d := lon[i] - lon[i-1]
		if d > 180 {
			offset -= 360
		} else if d < -180 {
			offset += 360
		}
		out[i] = lon[i] + offset
	}
	return out
}

// wrapLon folds an unwrapped longitude back into [-180, 180).
func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
