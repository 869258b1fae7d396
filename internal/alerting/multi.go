package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NopNotifier 丢弃所有告警, 用于关闭通知的场景。
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error       { return nil }
func (NopNotifier) NotifyError(context.Context, string, error) error { return nil }

// MultiNotifier 将告警扇出到全部渠道, 单渠道失败不阻断其余渠道。
type MultiNotifier struct {
	channels []Notifier
}

// NewMultiNotifier 组合多个告警渠道。
func NewMultiNotifier(channels ...Notifier) *MultiNotifier {
	return &MultiNotifier{channels: channels}
}

func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiNotifier) NotifyError(ctx context.Context, subject string, cause error) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.NotifyError(ctx, subject, cause); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DebouncedNotifier 抑制同一 pair+action 在时间窗内的重复告警。
// A redelivered bar or a scan retry must not page twice.
type DebouncedNotifier struct {
	inner  Notifier
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewDebouncedNotifier 包装 inner, 默认时间窗 5 分钟。
func NewDebouncedNotifier(inner Notifier, window time.Duration, logger zerolog.Logger) *DebouncedNotifier {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &DebouncedNotifier{
		inner:  inner,
		window: window,
		logger: logger.With().Str("component", "alert_debounce").Logger(),
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

func (d *DebouncedNotifier) Notify(ctx context.Context, note Notification) error {
	key := fmt.Sprintf("%s|%s", note.Pair, note.Action)

	d.mu.Lock()
	now := d.now()
	if sent, ok := d.last[key]; ok && now.Sub(sent) < d.window {
		d.mu.Unlock()
		d.logger.Info().Str("pair", note.Pair).Str("action", note.Action).Msg("告警被抑制 (debounce)")
		return nil
	}
	d.last[key] = now
	d.mu.Unlock()

	if err := d.inner.Notify(ctx, note); err != nil {
		// failed sends should not eat the next attempt
		d.mu.Lock()
		delete(d.last, key)
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *DebouncedNotifier) NotifyError(ctx context.Context, subject string, cause error) error {
	return d.inner.NotifyError(ctx, subject, cause)
}

var (
	_ Notifier = NopNotifier{}
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = (*DebouncedNotifier)(nil)
)
