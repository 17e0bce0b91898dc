package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TelegramNotifier sends alerts to a chat via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {renderAlert(alert)},
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}

// renderAlert formats an alert as plain text. Plain text avoids the
// MarkdownV2 escaping rules, which reject raw symbol/price strings.
func renderAlert(alert Alert) string {
	marker := "[INFO]"
	switch alert.Level {
	case AlertWarning:
		marker = "[WARN]"
	case AlertCritical:
		marker = "[CRITICAL]"
	}
	return fmt.Sprintf("%s %s\n%s", marker, alert.Title, alert.Message)
}
