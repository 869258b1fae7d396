package signal

import "math"

// epsVariance is the variance floor below which a window is treated as flat.
const epsVariance = 1e-10

// rollingStats maintains mean and sample variance of a sliding window with
// O(1) updates. Values are held in a circular buffer so the evicted element
// can be subtracted from the running sums instead of re-scanning the window.
type rollingStats struct {
	size  int
	buf   []float64
	head  int
	count int
	sum   float64
	sumSq float64
}

func newRollingStats(size int) *rollingStats {
	if size < 2 {
		panic("signal: rolling window must be at least 2")
	}
	return &rollingStats{size: size, buf: make([]float64, size)}
}

func (r *rollingStats) Push(v float64) {
	if r.count == r.size {
		old := r.buf[r.head]
		r.sum -= old
		r.sumSq -= old * old
	} else {
		r.count++
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.size
	r.sum += v
	r.sumSq += v * v
}

func (r *rollingStats) Ready() bool { return r.count == r.size }

func (r *rollingStats) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// Std returns the sample standard deviation (n-1 denominator), matching the
// convention of the research notebooks this engine was validated against.
func (r *rollingStats) Std() float64 {
	if r.count < 2 {
		return 0
	}
	n := float64(r.count)
	variance := (r.sumSq - r.sum*r.sum/n) / (n - 1)
	if variance < 0 {
		// float cancellation on near-constant windows
		variance = 0
	}
	return math.Sqrt(variance)
}
