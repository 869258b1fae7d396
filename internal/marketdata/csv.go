package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stat-arb-signals/internal/market"
)

var csvHeader = []string{"ts", "open", "high", "low", "close", "volume"}

// CSV serves candles from per-symbol cache files, the layout the update
// command writes: <dir>/<SYMBOL>_<interval>.csv with slashes mapped to
// dashes. Timestamps read back as RFC3339 or unix milliseconds.
type CSV struct {
	dir    string
	logger zerolog.Logger
}

// NewCSV constructs a file-backed provider rooted at dir.
func NewCSV(dir string, logger zerolog.Logger) *CSV {
	return &CSV{
		dir:    dir,
		logger: logger.With().Str("component", "csv_provider").Logger(),
	}
}

// Path returns the cache file backing one symbol and interval.
func (c *CSV) Path(symbol, interval string) string {
	safe := strings.NewReplacer("/", "-", ":", "-").Replace(strings.ToUpper(strings.TrimSpace(symbol)))
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.csv", safe, interval))
}

// Candles reads the cached history, oldest first, keeping the last limit rows.
func (c *CSV) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := c.Path(symbol, interval)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = len(csvHeader)
	rows, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	bars := make([]market.Bar, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "ts") {
			continue
		}
		bar, err := parseRow(row)
		if err != nil {
			c.logger.Warn().Str("file", path).Int("line", i+1).Err(err).Msg("skipping unreadable candle row")
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: %w in %s", ErrNoData, path)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func parseRow(row []string) (market.Bar, error) {
	ts, err := parseTs(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Bar{}, err
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("column %s: %w", csvHeader[i+1], err)
		}
		vals[i] = v
	}

	return market.Bar{
		Ts:     ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseTs(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// WriteCSV atomically replaces the cache file at path with the given candles.
func WriteCSV(path string, bars []market.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	rows := [][]string{csvHeader}
	for _, b := range bars {
		rows = append(rows, []string{
			b.Ts.UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ CandleProvider = (*CSV)(nil)
