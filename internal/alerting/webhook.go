package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// SlackNotifier 通过 incoming webhook 推送消息。
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewSlackNotifier 构造 Slack 告警器。
func NewSlackNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_slack").Logger(),
	}
}

func (n *SlackNotifier) Notify(ctx context.Context, note Notification) error {
	if err := n.send(ctx, RenderMessage(note)); err != nil {
		return err
	}
	n.logger.Info().Str("pair", note.Pair).Str("action", note.Action).Msg("告警已发送 (Slack)")
	return nil
}

func (n *SlackNotifier) NotifyError(ctx context.Context, subject string, cause error) error {
	return n.send(ctx, RenderError(subject, cause))
}

func (n *SlackNotifier) send(ctx context.Context, text string) error {
	payload := map[string]string{
		"text":       text,
		"username":   "Trading Bot",
		"icon_emoji": ":chart_with_upwards_trend:",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack 响应码异常: %d", resp.StatusCode)
	}
	return nil
}

// DiscordNotifier 通过 webhook 推送消息。完整的 trade ticket 优先于摘要。
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier 构造 Discord 告警器。
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

func (n *DiscordNotifier) Notify(ctx context.Context, note Notification) error {
	content := note.Ticket
	if content == "" {
		content = RenderMessage(note)
	}
	if err := n.send(ctx, content); err != nil {
		return err
	}
	n.logger.Info().Str("pair", note.Pair).Str("action", note.Action).Msg("告警已发送 (Discord)")
	return nil
}

func (n *DiscordNotifier) NotifyError(ctx context.Context, subject string, cause error) error {
	return n.send(ctx, RenderError(subject, cause))
}

func (n *DiscordNotifier) send(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord 响应码异常: %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier = (*SlackNotifier)(nil)
	_ Notifier = (*DiscordNotifier)(nil)
)
