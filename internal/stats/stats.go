// Package stats derives behavior metrics from buffer snapshots. Every function
// is pure: equal inputs give bit-identical outputs.
package stats

import (
	"math"
	"sort"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
)

const (
	// bucketScale quantizes values to one decimal place.
	bucketScale = 10.0
	// KeyboardRhythmScale normalizes inter-key interval variance (ms²).
	KeyboardRhythmScale = 10000.0
)

// Snapshot is the subset of channel buffers the metrics read.
type Snapshot struct {
	Movements  []event.MovementSample
	Keystrokes []event.KeystrokeSample
	Scrolls    []event.ScrollSample
}

// Entropy returns the Shannon entropy (bits) of series quantized into
// 0.1-wide buckets. Empty input yields 0.
func Entropy(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	// Buckets stay float64 so magnitudes beyond the int64 range stay distinct.
	hist := make(map[float64]int, len(series))
	for _, v := range series {
		hist[math.Round(finite(v)*bucketScale)]++
	}
	keys := make([]float64, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	counts := make([]int, len(keys))
	for i, k := range keys {
		counts[i] = hist[k]
	}
	return ShannonCounts(counts, len(series))
}

// ShannonCounts computes -Σ p·log2(p) over a histogram with the given total.
// Zero counts are skipped.
func ShannonCounts(counts []int, total int) float64 {
	if total <= 0 {
		return 0
	}
	h := 0.0
	n := float64(total)
	for _, c := range counts {
		if c > 0 {
			p := float64(c) / n
			h -= p * math.Log2(p)
		}
	}
	return h
}

// Variance is the population variance Σ(x-μ)²/n. Empty input yields 0.
func Variance(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	n := float64(len(series))
	mean := 0.0
	for _, v := range series {
		mean += finite(v)
	}
	mean /= n
	sum := 0.0
	for _, v := range series {
		d := finite(v) - mean
		sum += d * d
	}
	return sum / n
}

// KeyboardRhythm is the variance of inter-keydown intervals normalized into [0,1].
func KeyboardRhythm(keys []event.KeystrokeSample) float64 {
	var intervals []float64
	var prev int64
	seen := false
	for _, k := range keys {
		if k.Type != event.KeyDown {
			continue
		}
		if seen {
			intervals = append(intervals, float64(k.Timestamp-prev))
		}
		prev, seen = k.Timestamp, true
	}
	return Clamp01(Variance(intervals) / KeyboardRhythmScale)
}

// ScrollConsistency is 1 - variance(v)/max(v), floored at 0. High values mean
// uniform scrolling. Without a positive peak velocity the result is 0.
func ScrollConsistency(scrolls []event.ScrollSample) float64 {
	if len(scrolls) == 0 {
		return 0
	}
	v := make([]float64, len(scrolls))
	peak := 0.0
	for i, s := range scrolls {
		v[i] = finite(s.Velocity)
		if v[i] > peak {
			peak = v[i]
		}
	}
	if peak <= 0 {
		return 0
	}
	return math.Max(0, 1-Variance(v)/peak)
}

// MouseEntropy sums velocity and acceleration entropies.
func MouseEntropy(moves []event.MovementSample) float64 {
	if len(moves) == 0 {
		return 0
	}
	vel := make([]float64, len(moves))
	acc := make([]float64, len(moves))
	for i, m := range moves {
		vel[i] = m.Velocity
		acc[i] = m.Acceleration
	}
	return Entropy(vel) + Entropy(acc)
}

// Compute derives all behavior metrics. HumanLikelihood is the unweighted
// mean of the three channel scores, each clamped into [0,1]. It is a local
// pre-score only.
func Compute(s Snapshot) event.BehaviorMetrics {
	m := event.BehaviorMetrics{
		MouseEntropy:      MouseEntropy(s.Movements),
		KeyboardRhythm:    KeyboardRhythm(s.Keystrokes),
		ScrollConsistency: ScrollConsistency(s.Scrolls),
	}
	m.HumanLikelihood = (Clamp01(m.MouseEntropy) + Clamp01(m.KeyboardRhythm) + Clamp01(m.ScrollConsistency)) / 3
	return m
}

// Clamp01 clamps v into [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
