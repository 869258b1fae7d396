package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装一次交易信号的告警上下文。
type Notification struct {
	Pair         string
	YSym         string
	XSym         string
	Ts           time.Time
	Action       string
	FromPosition string
	ToPosition   string
	Z            decimal.Decimal
	Beta         decimal.Decimal
	Spread       decimal.Decimal
	Reason       string
	LegYNotional decimal.Decimal
	LegXNotional decimal.Decimal
	Skipped      bool
	SkipReason   string
	Ticket       string // preformatted trade ticket for channels that take long text
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
	NotifyError(ctx context.Context, subject string, cause error) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if err := n.send(ctx, RenderMessage(note)); err != nil {
		return err
	}

	n.logger.Info().Str("pair", note.Pair).
		Str("action", note.Action).
		Time("ts", note.Ts).
		Msg("告警已发送 (Telegram)")
	return nil
}

// NotifyError 推送系统级错误。
func (n *TelegramNotifier) NotifyError(ctx context.Context, subject string, cause error) error {
	return n.send(ctx, RenderError(subject, cause))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}

// RenderMessage formats the signal for chat channels.
func RenderMessage(note Notification) string {
	emoji, action := actionLabel(note.Action)

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s *%s Stat Arb Signal*\n", emoji, note.Pair))
	builder.WriteString(fmt.Sprintf("*Action:* %s\n", action))
	builder.WriteString(fmt.Sprintf("*Z-score:* %s\n", note.Z.StringFixed(3)))
	builder.WriteString(fmt.Sprintf("*Beta:* %s\n", note.Beta.StringFixed(3)))
	builder.WriteString("\n*Positions:*\n")
	builder.WriteString(fmt.Sprintf("• %s: $%s\n", legName(note.YSym, "Y"), note.LegYNotional.StringFixed(0)))
	builder.WriteString(fmt.Sprintf("• %s: $%s\n", legName(note.XSym, "X"), note.LegXNotional.StringFixed(0)))
	if note.Skipped {
		builder.WriteString(fmt.Sprintf("\n*Skipped:* %s\n", note.SkipReason))
	}
	builder.WriteString(fmt.Sprintf("\n*Reason:* %s\n", note.Reason))
	builder.WriteString(fmt.Sprintf("*Time:* %s", note.Ts.UTC().Format("2006-01-02 15:04 UTC")))
	return builder.String()
}

// RenderError formats a system error for chat channels.
func RenderError(subject string, cause error) string {
	return fmt.Sprintf("⚠️ *Trading System Error*\n\n%s: %v\n\n_Time: %s_",
		subject, cause, time.Now().UTC().Format("2006-01-02 15:04 UTC"))
}

func actionLabel(action string) (string, string) {
	switch action {
	case "ENTER_LONG":
		return "📈", "LONG SPREAD"
	case "ENTER_SHORT":
		return "📉", "SHORT SPREAD"
	case "EXIT":
		return "✅", "EXIT POSITION"
	case "STOP_LOSS":
		return "🛑", "STOP LOSS"
	default:
		return "ℹ️", "INFO"
	}
}

func legName(sym, fallback string) string {
	if sym == "" {
		return fallback
	}
	if base, _, found := strings.Cut(sym, "/"); found {
		return base
	}
	return sym
}

var _ Notifier = (*TelegramNotifier)(nil)
