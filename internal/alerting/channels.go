package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/pkg/logger"
)

// Channel types
const (
	ChannelTelegram = "telegram"
	ChannelSlack    = "slack"
	ChannelDiscord  = "discord"
	ChannelWebhook  = "webhook"
	ChannelEmail    = "email"
	ChannelLog      = "log"
)

// DefaultTelegramAPIURL is the Bot API endpoint
const DefaultTelegramAPIURL = "https://api.telegram.org"

const defaultHTTPTimeout = 10 * time.Second

// NotificationChannel delivers messages to one destination
type NotificationChannel interface {
	Send(ctx context.Context, msg *Message) error
	GetType() string
	GetName() string
	IsEnabled() bool
}

// NewChannel creates a channel of the given type
func NewChannel(channelType, name string, config map[string]interface{}, log *logger.Logger) (NotificationChannel, error) {
	if config == nil {
		config = map[string]interface{}{}
	}
	switch channelType {
	case ChannelTelegram:
		return NewTelegramChannel(name, config, log)
	case ChannelSlack:
		return NewSlackChannel(name, config, log)
	case ChannelDiscord:
		return NewDiscordChannel(name, config, log)
	case ChannelWebhook:
		return NewWebhookChannel(name, config, log)
	case ChannelEmail:
		return NewEmailChannel(name, config, log)
	case ChannelLog:
		return NewLogChannel(name, log), nil
	default:
		return nil, fmt.Errorf("unknown channel type: %s", channelType)
	}
}

func newHTTPClient(config map[string]interface{}) (*http.Client, error) {
	timeout, err := optDuration(config, "timeout")
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}, nil
}

// postJSON sends payload and returns the status code and a bounded body
func postJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, respBody, nil
}

// TelegramChannel posts messages through the Bot API
type TelegramChannel struct {
	name      string
	enabled   bool
	apiURL    string
	botToken  string
	chatID    string
	parseMode string
	client    *http.Client
	logger    *logger.Logger
}

// NewTelegramChannel creates a new Telegram notification channel
func NewTelegramChannel(name string, config map[string]interface{}, log *logger.Logger) (*TelegramChannel, error) {
	ch := &TelegramChannel{
		name:      name,
		enabled:   true,
		apiURL:    DefaultTelegramAPIURL,
		parseMode: "Markdown",
		logger:    log,
	}

	var ok bool
	if ch.botToken, ok = optString(config, "bot_token"); !ok {
		return nil, fmt.Errorf("bot_token is required for Telegram channel")
	}
	if ch.chatID, ok = optChatID(config, "chat_id"); !ok {
		return nil, fmt.Errorf("chat_id is required for Telegram channel")
	}
	if url, ok := optString(config, "api_url"); ok {
		ch.apiURL = strings.TrimRight(url, "/")
	}
	if mode, ok := config["parse_mode"].(string); ok {
		ch.parseMode = mode
	}

	client, err := newHTTPClient(config)
	if err != nil {
		return nil, err
	}
	ch.client = client

	return ch, nil
}

// Message texts are plain; escape what the selected parse mode treats as markup.
var (
	telegramMarkdownEscaper = strings.NewReplacer(
		"_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
	telegramMarkdownV2Escaper = strings.NewReplacer(
		`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
		"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
		"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`)
)

func (t *TelegramChannel) escape(text string) string {
	switch t.parseMode {
	case "Markdown":
		return telegramMarkdownEscaper.Replace(text)
	case "MarkdownV2":
		return telegramMarkdownV2Escaper.Replace(text)
	case "HTML":
		return html.EscapeString(text)
	default:
		return text
	}
}

// Send sends the message text to the configured chat
func (t *TelegramChannel) Send(ctx context.Context, msg *Message) error {
	payload := map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     t.escape(msg.Text),
		"disable_web_page_preview": true,
	}
	if t.parseMode != "" {
		payload["parse_mode"] = t.parseMode
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	status, body, err := postJSON(ctx, t.client, http.MethodPost, url, nil, payload)
	if err != nil {
		// the request URL embeds the token
		return fmt.Errorf("failed to send Telegram notification: %s", strings.ReplaceAll(err.Error(), t.botToken, "***"))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if jsonErr := json.Unmarshal(body, &result); jsonErr != nil || status != http.StatusOK || !result.OK {
		if result.Description != "" {
			return fmt.Errorf("Telegram API returned status %d: %s", status, result.Description)
		}
		return fmt.Errorf("Telegram API returned status %d", status)
	}

	return nil
}

// GetType returns the channel type
func (t *TelegramChannel) GetType() string {
	return ChannelTelegram
}

// GetName returns the channel name
func (t *TelegramChannel) GetName() string {
	return t.name
}

// IsEnabled returns whether the channel is enabled
func (t *TelegramChannel) IsEnabled() bool {
	return t.enabled
}

// EmailChannel sends notifications via email
type EmailChannel struct {
	name     string
	enabled  bool
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger   *logger.Logger
}

// NewEmailChannel creates a new email notification channel
func NewEmailChannel(name string, config map[string]interface{}, log *logger.Logger) (*EmailChannel, error) {
	ch := &EmailChannel{
		name:     name,
		enabled:  true,
		smtpPort: 587,
		sendMail: smtp.SendMail,
		logger:   log,
	}

	var ok bool
	if ch.smtpHost, ok = optString(config, "smtp_host"); !ok {
		return nil, fmt.Errorf("smtp_host is required for email channel")
	}
	if port, ok := optInt(config, "smtp_port"); ok {
		ch.smtpPort = port
	}
	ch.username, _ = optString(config, "username")
	ch.password, _ = optString(config, "password")
	if ch.from, ok = optString(config, "from"); !ok {
		return nil, fmt.Errorf("from is required for email channel")
	}
	ch.to = optStrings(config, "to")
	if len(ch.to) == 0 {
		return nil, fmt.Errorf("at least one recipient is required for email channel")
	}

	return ch, nil
}

// Send sends an email notification. net/smtp has no context support, so
// ctx is only checked before dialing.
func (e *EmailChannel) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(msg.Severity)), msg.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", msg.Timestamp.Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n\r\n")
	fmt.Fprintf(&b, "Event: %s\r\nTime: %s\r\n", msg.Event, msg.Timestamp.Format(time.RFC3339))

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	if err := e.sendMail(addr, auth, e.from, e.to, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// GetType returns the channel type
func (e *EmailChannel) GetType() string {
	return ChannelEmail
}

// GetName returns the channel name
func (e *EmailChannel) GetName() string {
	return e.name
}

// IsEnabled returns whether the channel is enabled
func (e *EmailChannel) IsEnabled() bool {
	return e.enabled
}

// severityColor maps a severity to an RGB color
func severityColor(s escalation.Severity) int {
	switch s {
	case escalation.SeverityWarning:
		return 0xFFA500 // orange
	case escalation.SeverityError:
		return 0xFF0000 // red
	case escalation.SeverityCritical:
		return 0x8B0000 // dark red
	case escalation.SeverityInfo:
		return 0x2EB886 // green
	default:
		return 0x808080 // gray
	}
}

// SlackChannel sends notifications to Slack
type SlackChannel struct {
	name       string
	enabled    bool
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	logger     *logger.Logger
}

// NewSlackChannel creates a new Slack notification channel
func NewSlackChannel(name string, config map[string]interface{}, log *logger.Logger) (*SlackChannel, error) {
	ch := &SlackChannel{
		name:      name,
		enabled:   true,
		username:  "headwatch",
		iconEmoji: ":satellite:",
		logger:    log,
	}

	var ok bool
	if ch.webhookURL, ok = optString(config, "webhook_url"); !ok {
		return nil, fmt.Errorf("webhook_url is required for Slack channel")
	}
	ch.channel, _ = optString(config, "channel")
	if username, ok := optString(config, "username"); ok {
		ch.username = username
	}
	if icon, ok := optString(config, "icon_emoji"); ok {
		ch.iconEmoji = icon
	}

	client, err := newHTTPClient(config)
	if err != nil {
		return nil, err
	}
	ch.client = client

	return ch, nil
}

// Send sends a Slack notification
func (s *SlackChannel) Send(ctx context.Context, msg *Message) error {
	payload := map[string]interface{}{
		"username":   s.username,
		"icon_emoji": s.iconEmoji,
		"attachments": []map[string]interface{}{
			{
				"color":    fmt.Sprintf("#%06X", severityColor(msg.Severity)),
				"title":    msg.Title,
				"text":     msg.Text,
				"fallback": msg.Text,
				"fields": []map[string]interface{}{
					{"title": "Severity", "value": string(msg.Severity), "short": true},
					{"title": "Event", "value": msg.Event, "short": true},
				},
				"footer": "headwatch",
				"ts":     msg.Timestamp.Unix(),
			},
		},
	}
	if s.channel != "" {
		payload["channel"] = s.channel
	}

	status, _, err := postJSON(ctx, s.client, http.MethodPost, s.webhookURL, nil, payload)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("Slack webhook returned status %d", status)
	}

	return nil
}

// GetType returns the channel type
func (s *SlackChannel) GetType() string {
	return ChannelSlack
}

// GetName returns the channel name
func (s *SlackChannel) GetName() string {
	return s.name
}

// IsEnabled returns whether the channel is enabled
func (s *SlackChannel) IsEnabled() bool {
	return s.enabled
}

// WebhookChannel sends notifications to a generic webhook
type WebhookChannel struct {
	name    string
	enabled bool
	url     string
	method  string
	headers map[string]string
	client  *http.Client
	logger  *logger.Logger
}

// NewWebhookChannel creates a new webhook notification channel
func NewWebhookChannel(name string, config map[string]interface{}, log *logger.Logger) (*WebhookChannel, error) {
	ch := &WebhookChannel{
		name:    name,
		enabled: true,
		method:  http.MethodPost,
		logger:  log,
	}

	var ok bool
	if ch.url, ok = optString(config, "url"); !ok {
		return nil, fmt.Errorf("url is required for webhook channel")
	}
	if method, ok := optString(config, "method"); ok {
		ch.method = strings.ToUpper(method)
	}
	ch.headers = optStringMap(config, "headers")

	client, err := newHTTPClient(config)
	if err != nil {
		return nil, err
	}
	ch.client = client

	return ch, nil
}

// Send posts the message as JSON
func (w *WebhookChannel) Send(ctx context.Context, msg *Message) error {
	payload := map[string]interface{}{
		"message": msg,
		"source":  "headwatch",
	}

	status, _, err := postJSON(ctx, w.client, w.method, w.url, w.headers, payload)
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("webhook returned status %d", status)
	}

	return nil
}

// GetType returns the channel type
func (w *WebhookChannel) GetType() string {
	return ChannelWebhook
}

// GetName returns the channel name
func (w *WebhookChannel) GetName() string {
	return w.name
}

// IsEnabled returns whether the channel is enabled
func (w *WebhookChannel) IsEnabled() bool {
	return w.enabled
}

// DiscordChannel sends notifications to Discord
type DiscordChannel struct {
	name       string
	enabled    bool
	webhookURL string
	username   string
	avatarURL  string
	client     *http.Client
	logger     *logger.Logger
}

// NewDiscordChannel creates a new Discord notification channel
func NewDiscordChannel(name string, config map[string]interface{}, log *logger.Logger) (*DiscordChannel, error) {
	ch := &DiscordChannel{
		name:     name,
		enabled:  true,
		username: "headwatch",
		logger:   log,
	}

	var ok bool
	if ch.webhookURL, ok = optString(config, "webhook_url"); !ok {
		return nil, fmt.Errorf("webhook_url is required for Discord channel")
	}
	if username, ok := optString(config, "username"); ok {
		ch.username = username
	}
	ch.avatarURL, _ = optString(config, "avatar_url")

	client, err := newHTTPClient(config)
	if err != nil {
		return nil, err
	}
	ch.client = client

	return ch, nil
}

// Send sends a Discord notification
func (d *DiscordChannel) Send(ctx context.Context, msg *Message) error {
	embed := map[string]interface{}{
		"title":       msg.Title,
		"description": msg.Text,
		"color":       severityColor(msg.Severity),
		"footer":      map[string]interface{}{"text": "headwatch"},
		"timestamp":   msg.Timestamp.Format(time.RFC3339),
	}

	payload := map[string]interface{}{
		"username": d.username,
		"embeds":   []interface{}{embed},
	}
	if d.avatarURL != "" {
		payload["avatar_url"] = d.avatarURL
	}

	status, _, err := postJSON(ctx, d.client, http.MethodPost, d.webhookURL, nil, payload)
	if err != nil {
		return fmt.Errorf("failed to send Discord notification: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("Discord webhook returned status %d", status)
	}

	return nil
}

// GetType returns the channel type
func (d *DiscordChannel) GetType() string {
	return ChannelDiscord
}

// GetName returns the channel name
func (d *DiscordChannel) GetName() string {
	return d.name
}

// IsEnabled returns whether the channel is enabled
func (d *DiscordChannel) IsEnabled() bool {
	return d.enabled
}

// LogChannel writes messages to the logger instead of delivering them.
// Used for dry runs and local testing.
type LogChannel struct {
	name   string
	logger *logger.Logger
}

// NewLogChannel creates a channel that logs every message
func NewLogChannel(name string, log *logger.Logger) *LogChannel {
	return &LogChannel{name: name, logger: log}
}

// Send logs the message
func (l *LogChannel) Send(ctx context.Context, msg *Message) error {
	l.logger.Info("notification",
		zap.String("channel", l.name),
		zap.String("event", msg.Event),
		zap.String("severity", string(msg.Severity)),
		zap.String("text", msg.Text))
	return nil
}

// GetType returns the channel type
func (l *LogChannel) GetType() string {
	return ChannelLog
}

// GetName returns the channel name
func (l *LogChannel) GetName() string {
	return l.name
}

// IsEnabled returns whether the channel is enabled
func (l *LogChannel) IsEnabled() bool {
	return true
}

func channelFields(ch NotificationChannel) []zap.Field {
	return []zap.Field{zap.String("channel", ch.GetName()), zap.String("type", ch.GetType())}
}
