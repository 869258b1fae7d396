package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stat-arb-signals/internal/market"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func klineRow(openMs int64, o, h, l, c, v float64) []any {
	return []any{
		openMs,
		strconv.FormatFloat(o, 'f', -1, 64),
		strconv.FormatFloat(h, 'f', -1, 64),
		strconv.FormatFloat(l, 'f', -1, 64),
		strconv.FormatFloat(c, 'f', -1, 64),
		strconv.FormatFloat(v, 'f', -1, 64),
		openMs + 3599999,
		"0", 0, "0", "0", "0",
	}
}

func TestRESTCandlesSuccess(t *testing.T) {
	base := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "ETHUSDT" {
			t.Fatalf("symbol 应为 ETHUSDT, 实际 %s", got)
		}
		if got := r.URL.Query().Get("interval"); got != "1h" {
			t.Fatalf("interval 应为 1h, 实际 %s", got)
		}
		rows := [][]any{
			klineRow(base, 100, 110, 90, 105, 5000),
			klineRow(base+3600000, 105, 115, 95, 108, 6000),
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	r := NewREST(RESTOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	bars, err := r.Candles(context.Background(), "ETH/USDT", "1h", 2)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("期望 2 根K线, 实际 %d", len(bars))
	}
	if bars[0].Close != 105 || bars[1].Close != 108 {
		t.Fatalf("收盘价解析错误: %+v", bars)
	}
	if !bars[0].Ts.Equal(time.UnixMilli(base).UTC()) {
		t.Fatalf("时间戳解析错误: %v", bars[0].Ts)
	}
}

func TestRESTCandlesDropsFormingCandle(t *testing.T) {
	closed := time.Now().Add(-2 * time.Hour).Truncate(time.Hour).UnixMilli()
	forming := time.Now().Truncate(time.Hour).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := [][]any{
			klineRow(closed, 100, 110, 90, 105, 5000),
			klineRow(forming, 105, 115, 95, 108, 6000),
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	r := NewREST(RESTOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	bars, err := r.Candles(context.Background(), "ETHUSDT", "1h", 5)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("未收盘的K线应被丢弃, 实际返回 %d 根", len(bars))
	}
	if !bars[0].Ts.Equal(time.UnixMilli(closed).UTC()) {
		t.Fatalf("保留的应是已收盘K线: %v", bars[0].Ts)
	}
}

func TestRESTCandlesPaginatesBackwards(t *testing.T) {
	const total = 1500
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	openAt := func(i int) int64 { return base + int64(i)*3600000 }

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		endTime := int64(0)
		if v := r.URL.Query().Get("endTime"); v != "" {
			endTime, _ = strconv.ParseInt(v, 10, 64)
		}

		last := total - 1
		if endTime > 0 {
			for last >= 0 && openAt(last) > endTime {
				last--
			}
		}
		first := last - limit + 1
		if first < 0 {
			first = 0
		}

		rows := make([][]any, 0, limit)
		for i := first; i <= last; i++ {
			px := 100 + float64(i)*0.1
			rows = append(rows, klineRow(openAt(i), px, px, px, px, 1000))
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	r := NewREST(RESTOptions{BaseURL: srv.URL, Timeout: time.Second, RequestsPerSec: 1000, Burst: 10}, noopLogger())
	bars, err := r.Candles(context.Background(), "BTCUSDT", "1h", total)
	if err != nil {
		t.Fatalf("分页抓取不应报错: %v", err)
	}
	if len(bars) != total {
		t.Fatalf("期望 %d 根K线, 实际 %d", total, len(bars))
	}
	if calls != 2 {
		t.Fatalf("1500 根应分两页, 实际请求 %d 次", calls)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Ts.After(bars[i-1].Ts) {
			t.Fatalf("时间戳应严格递增, 位置 %d", i)
		}
	}
	if !bars[0].Ts.Equal(time.UnixMilli(base).UTC()) {
		t.Fatalf("最早一根应为起始K线: %v", bars[0].Ts)
	}
}

func TestRESTCandlesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1121, "msg": "Invalid symbol."})
	}))
	defer srv.Close()

	r := NewREST(RESTOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := r.Candles(context.Background(), "NOPEUSDT", "1h", 10); err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
}

func TestRESTCandlesEmptyBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]any{})
	}))
	defer srv.Close()

	r := NewREST(RESTOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := r.Candles(context.Background(), "ETHUSDT", "1h", 10)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("空响应应返回 ErrNoData, 实际 %v", err)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"eth/usdt": "ETHUSDT",
		"BTC-USDT": "BTCUSDT",
		" SOLUSDT": "SOLUSDT",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Fatalf("NormalizeSymbol(%q) = %q, 期望 %q", in, got, want)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewCSV(dir, noopLogger())

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []market.Bar{
		{Ts: base, Open: 100, High: 110, Low: 90, Close: 105, Volume: 5000},
		{Ts: base.Add(time.Hour), Open: 105, High: 112, Low: 101, Close: 108, Volume: 4500},
		{Ts: base.Add(2 * time.Hour), Open: 108, High: 120, Low: 107, Close: 118, Volume: 6200},
	}
	if err := WriteCSV(c.Path("ETH/USDT", "1h"), bars); err != nil {
		t.Fatalf("写入缓存失败: %v", err)
	}

	got, err := c.Candles(context.Background(), "ETH/USDT", "1h", 0)
	if err != nil {
		t.Fatalf("读取缓存失败: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 根K线, 实际 %d", len(got))
	}
	if !got[0].Ts.Equal(base) || got[2].Close != 118 {
		t.Fatalf("读回数据不一致: %+v", got)
	}

	trimmed, err := c.Candles(context.Background(), "ETH/USDT", "1h", 2)
	if err != nil {
		t.Fatalf("限量读取失败: %v", err)
	}
	if len(trimmed) != 2 || !trimmed[0].Ts.Equal(base.Add(time.Hour)) {
		t.Fatalf("limit 应保留最新两根: %+v", trimmed)
	}
}

func TestCSVSkipsUnreadableRows(t *testing.T) {
	dir := t.TempDir()
	c := NewCSV(dir, noopLogger())
	path := c.Path("BTC/USDT", "1h")

	content := "ts,open,high,low,close,volume\n" +
		"2024-03-01T00:00:00Z,100,110,90,105,5000\n" +
		"not-a-time,1,2,3,4,5\n" +
		"1709258400000,105,112,101,108,4500\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	bars, err := c.Candles(context.Background(), "BTC/USDT", "1h", 0)
	if err != nil {
		t.Fatalf("坏行应被跳过而非报错: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("期望 2 根有效K线, 实际 %d", len(bars))
	}
}

func TestCSVMissingFile(t *testing.T) {
	c := NewCSV(filepath.Join(t.TempDir(), "nowhere"), noopLogger())
	if _, err := c.Candles(context.Background(), "ETH/USDT", "1h", 0); err == nil {
		t.Fatal("缺失文件应报错")
	}
}
