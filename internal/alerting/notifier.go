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

	"opswatch/internal/decisionlog"
)

// Notifier delivers one accepted decision log entry.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, entry decisionlog.Entry) error
}

// TelegramNotifier pushes entries through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
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

// Name implements Notifier.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify calls sendMessage with the rendered entry.
func (n *TelegramNotifier) Notify(ctx context.Context, entry decisionlog.Entry) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(entry),
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
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("entry", entry.ID).
		Str("severity", string(entry.Severity)).
		Str("source", string(entry.Source)).
		Msg("alert sent")
	return nil
}

func renderMessage(entry decisionlog.Entry) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[opswatch %s] %s\n", strings.ToUpper(string(entry.Severity)), entry.Title))
	builder.WriteString(fmt.Sprintf("Type: %s\n", entry.Type))
	builder.WriteString(fmt.Sprintf("Source: %s\n", entry.Source))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", entry.CreatedAt.UTC().Format(time.RFC3339)))
	if entry.Detail != "" {
		builder.WriteString(entry.Detail)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
