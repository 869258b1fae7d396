package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testNote() Notification {
	return Notification{
		Pair:         "ETH-BTC",
		YSym:         "ETH/USDT",
		XSym:         "BTC/USDT",
		Ts:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Action:       "ENTER_SHORT",
		FromPosition: "NEUTRAL",
		ToPosition:   "SHORT_SPREAD",
		Z:            decimal.RequireFromString("2.31"),
		Beta:         decimal.RequireFromString("0.91"),
		Spread:       decimal.RequireFromString("0.012"),
		Reason:       "cross",
		LegYNotional: decimal.RequireFromString("8000"),
		LegXNotional: decimal.RequireFromString("7280"),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "SHORT SPREAD") {
		t.Fatalf("text 应包含动作: %s", received["text"])
	}
	if !strings.Contains(received["text"], "2.310") {
		t.Fatalf("text 应包含 z-score: %s", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestSlackNotifierPayload(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("Slack Notify 应成功: %v", err)
	}

	if received["username"] != "Trading Bot" {
		t.Fatalf("username 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "ETH-BTC") {
		t.Fatalf("text 应包含交易对: %s", received["text"])
	}
}

func TestDiscordNotifierPrefersTicket(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	note := testNote()
	note.Ticket = "FULL TRADE TICKET"

	notifier := NewDiscordNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Discord Notify 应成功 (204): %v", err)
	}
	if received["content"] != "FULL TRADE TICKET" {
		t.Fatalf("Discord 应优先发送完整 ticket: %s", received["content"])
	}
}

func TestDebouncedNotifierSuppressesRepeats(t *testing.T) {
	var calls int
	inner := &countingNotifier{calls: &calls}

	d := NewDebouncedNotifier(inner, 5*time.Minute, testLogger())
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	ctx := context.Background()
	note := testNote()

	if err := d.Notify(ctx, note); err != nil {
		t.Fatalf("首次告警应放行: %v", err)
	}
	if err := d.Notify(ctx, note); err != nil {
		t.Fatalf("重复告警应静默: %v", err)
	}
	if calls != 1 {
		t.Fatalf("时间窗内重复告警应被抑制, 实际发送 %d 次", calls)
	}

	// a different action on the same pair is not a repeat
	exit := note
	exit.Action = "EXIT"
	if err := d.Notify(ctx, exit); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("不同 action 不应被抑制, 实际发送 %d 次", calls)
	}

	now = base.Add(6 * time.Minute)
	if err := d.Notify(ctx, note); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("时间窗过后应重新放行, 实际发送 %d 次", calls)
	}
}

func TestDebouncedNotifierRetriesAfterFailure(t *testing.T) {
	inner := &failingNotifier{failures: 1}
	d := NewDebouncedNotifier(inner, 5*time.Minute, testLogger())

	ctx := context.Background()
	note := testNote()

	if err := d.Notify(ctx, note); err == nil {
		t.Fatal("内层失败应向上返回错误")
	}
	// the failed send must not consume the debounce slot
	if err := d.Notify(ctx, note); err != nil {
		t.Fatalf("失败后的重试应放行: %v", err)
	}
	if inner.sent != 1 {
		t.Fatalf("重试应真正送达, 实际 %d", inner.sent)
	}
}

func TestMultiNotifierContinuesPastFailure(t *testing.T) {
	var calls int
	ok := &countingNotifier{calls: &calls}
	bad := &failingNotifier{failures: -1}

	m := NewMultiNotifier(bad, ok)
	err := m.Notify(context.Background(), testNote())
	if err == nil {
		t.Fatal("应汇报失败渠道的错误")
	}
	if calls != 1 {
		t.Fatalf("失败渠道不应阻断其余渠道, 实际 %d", calls)
	}
}

type countingNotifier struct {
	calls *int
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	*c.calls++
	return nil
}

func (c *countingNotifier) NotifyError(context.Context, string, error) error { return nil }

// failingNotifier fails the first N sends, or every send when failures < 0.
type failingNotifier struct {
	failures int
	sent     int
}

func (f *failingNotifier) Notify(context.Context, Notification) error {
	if f.failures < 0 {
		return errors.New("channel down")
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("channel down")
	}
	f.sent++
	return nil
}

func (f *failingNotifier) NotifyError(context.Context, string, error) error { return nil }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
