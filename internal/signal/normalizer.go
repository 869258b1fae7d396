package signal

// SpreadNormalizer turns raw spread values into rolling z-scores. The window
// includes the current observation, matching a rolling mean/std computed over
// a dataframe column.
type SpreadNormalizer struct {
	stats *rollingStats
}

// NewSpreadNormalizer constructs a normalizer over the given window size.
func NewSpreadNormalizer(window int) *SpreadNormalizer {
	return &SpreadNormalizer{stats: newRollingStats(window)}
}

// Window returns the configured window length.
func (n *SpreadNormalizer) Window() int { return n.stats.size }

// Push slides the window forward and returns the z-score of the pushed
// spread. ok is false during warmup and when the window std collapses below
// the degenerate floor.
func (n *SpreadNormalizer) Push(spread float64) (z, mean, std float64, ok bool) {
	n.stats.Push(spread)
	if !n.stats.Ready() {
		return 0, 0, 0, false
	}
	mean = n.stats.Mean()
	std = n.stats.Std()
	if std <= epsStd {
		return 0, mean, std, false
	}
	return (spread - mean) / std, mean, std, true
}

// epsStd is the std floor below which a z-score is meaningless.
const epsStd = 1e-10
