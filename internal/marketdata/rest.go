package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"stat-arb-signals/internal/market"
)

const (
	klinesPath   = "/api/v3/klines"
	maxPageLimit = 1000
)

// RESTOptions parameterise the exchange candle fetcher.
type RESTOptions struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	RequestsPerSec float64
	Burst          int
}

// REST fetches OHLCV candles from a Binance-compatible klines endpoint,
// paginating backwards when the request exceeds the venue's page size.
type REST struct {
	opts    RESTOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	now     func() time.Time
}

// NewREST constructs a candle fetcher.
func NewREST(opts RESTOptions, logger zerolog.Logger) *REST {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 20
	}

	return &REST{
		opts:    opts,
		logger:  logger.With().Str("component", "candle_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		baseURL: baseURL,
		now:     time.Now,
	}
}

// NormalizeSymbol maps the config form "ETH/USDT" to the venue's "ETHUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "")
	return strings.ReplaceAll(s, "-", "")
}

// Candles fetches the most recent limit closed candles, oldest first. The
// still-forming candle at the head of the book is dropped so a scan never
// acts on a partial bar.
func (r *REST) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("marketdata: limit must be positive, got %d", limit)
	}

	venueSymbol := NormalizeSymbol(symbol)

	var bars []market.Bar
	endTime := int64(0)
	for len(bars) < limit {
		page := limit - len(bars)
		if page > maxPageLimit {
			page = maxPageLimit
		}

		chunk, err := r.fetchPage(ctx, venueSymbol, interval, page, endTime)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}

		bars = append(chunk, bars...)
		endTime = chunk[0].Ts.UnixMilli() - 1
		if len(chunk) < page {
			break
		}
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: %w for %s", ErrNoData, symbol)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	r.logger.Debug().Str("symbol", symbol).Str("interval", interval).Int("bars", len(bars)).Msg("candles fetched")
	return bars, nil
}

func (r *REST) fetchPage(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]market.Bar, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if endTime > 0 {
		params.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	endpoint := fmt.Sprintf("%s%s?%s", r.baseURL, klinesPath, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "statarb/1.0")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, payload)
	}

	var raw [][]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	nowMs := r.now().UTC().UnixMilli()
	bars := make([]market.Bar, 0, len(raw))
	for _, row := range raw {
		// openTime, O, H, L, C, volume, closeTime, ... 12 fields per row
		if len(row) < 7 {
			continue
		}
		if toInt64(row[6]) >= nowMs {
			continue // still forming
		}
		bars = append(bars, market.Bar{
			Ts:     time.UnixMilli(toInt64(row[0])).UTC(),
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: toFloat(row[5]),
		})
	}
	return bars, nil
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseAPIError(status int, payload []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		return fmt.Errorf("klines api error (%d): %s", status, apiErr.Msg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("klines api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("klines api error (%d)", status)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}

var _ CandleProvider = (*REST)(nil)
