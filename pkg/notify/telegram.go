// Package notify delivers run-level alerts to a Telegram chat. Alerts are
// best-effort: notification failures are logged and never fail a sync.
package notify

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Telegram sends messages through the bot API. The zero value is a
// disabled notifier that drops every message silently, so callers never
// need to special-case an unconfigured deployment.
type Telegram struct {
	HTTP     *http.Client
	BaseURL  string
	BotToken string
	ChatID   string
}

// NewTelegram returns a notifier for the given bot and chat. Either value
// being empty yields a disabled notifier.
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		BaseURL:  "https://api.telegram.org",
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func (t *Telegram) enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Notify sends one message, fire-and-forget.
func (t *Telegram) Notify(title, message string) {
	if !t.enabled() {
		return
	}
	text := title
	if message != "" {
		text = title + "\n\n" + message
	}
	form := url.Values{
		"chat_id": {t.ChatID},
		"text":    {text},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	resp, err := t.HTTP.Post(endpoint, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("[notify] telegram send failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("[notify] telegram send failed: %s", resp.Status)
	}
}
