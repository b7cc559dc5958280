// Package alerting renders escalation events into messages and delivers them
// to notification channels.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wemix/headwatch/pkg/logger"
)

// ChannelConfig represents notification channel configuration. Channels are
// on unless Disabled is set, so a config entry without the flag still alerts.
type ChannelConfig struct {
	Type     string                 `mapstructure:"type" toml:"type" yaml:"type" json:"type"`
	Name     string                 `mapstructure:"name" toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Disabled bool                   `mapstructure:"disabled" toml:"disabled,omitempty" yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Config   map[string]interface{} `mapstructure:"config" toml:"config,omitempty" yaml:"config,omitempty" json:"config,omitempty"`
}

// Notifier fans a message out to every enabled channel
type Notifier struct {
	mu       sync.RWMutex
	channels []NotificationChannel
	logger   *logger.Logger
}

// NewNotifier creates a notifier with the given channels
func NewNotifier(log *logger.Logger, channels ...NotificationChannel) *Notifier {
	return &Notifier{
		channels: channels,
		logger:   log,
	}
}

// NewNotifierFromConfig builds every enabled channel. A channel that cannot
// be built fails the whole call so a typo does not silently drop alerts.
func NewNotifierFromConfig(configs []ChannelConfig, log *logger.Logger) (*Notifier, error) {
	channels, err := BuildChannels(configs, log)
	if err != nil {
		return nil, err
	}
	return NewNotifier(log, channels...), nil
}

// BuildChannels creates the enabled channels described by configs
func BuildChannels(configs []ChannelConfig, log *logger.Logger) ([]NotificationChannel, error) {
	channels := make([]NotificationChannel, 0, len(configs))
	seen := make(map[string]struct{}, len(configs))

	for i, cfg := range configs {
		name := cfg.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", cfg.Type, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate channel name: %s", name)
		}
		seen[name] = struct{}{}

		if cfg.Disabled {
			continue
		}

		ch, err := NewChannel(cfg.Type, name, cfg.Config, log)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		channels = append(channels, ch)
	}

	return channels, nil
}

// SetChannels replaces the channel list
func (n *Notifier) SetChannels(channels []NotificationChannel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = channels
}

// Channels returns a copy of the channel list
func (n *Notifier) Channels() []NotificationChannel {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]NotificationChannel, len(n.channels))
	copy(out, n.channels)
	return out
}

// Notify delivers msg to every enabled channel in order. A failing channel
// does not stop the others; all failures are returned joined.
func (n *Notifier) Notify(ctx context.Context, msg *Message) error {
	channels := n.Channels()
	if len(channels) == 0 {
		n.logger.Warn("no notification channels configured, message dropped",
			zap.String("event", msg.Event),
			zap.String("text", msg.Text))
		return nil
	}

	var errs []error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}

		if err := n.send(ctx, ch, msg); err != nil {
			n.logger.Error("Failed to send notification",
				append(channelFields(ch), zap.String("event", msg.Event), zap.Error(err))...)
			errs = append(errs, fmt.Errorf("%s: %w", ch.GetName(), err))
			continue
		}

		n.logger.Info("Notification sent",
			append(channelFields(ch), zap.String("event", msg.Event))...)
	}

	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, ch NotificationChannel, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v", r)
		}
	}()
	return ch.Send(ctx, msg)
}
