// Package channel adapts messaging platforms to the channel-agnostic inbound
// message the orchestrator consumes, and carries replies back out. Telegram
// is the only wired platform; the types are shaped so a WhatsApp adapter
// slots in beside it.
package channel

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// NonTextReply is sent for voice, sticker and image messages, which are
// never forwarded to the generation model.
const NonTextReply = "Я понимаю только текстовые сообщения 😊"

// telegramMessageLimit is the Bot API per-message text cap.
const telegramMessageLimit = 4096

// Sender delivers outbound replies on a channel.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendTyping(ctx context.Context, chatID string)
}

// telegramUpdate mirrors the subset of the Bot API update payload we read.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date    int64           `json:"date"`
		Text    string          `json:"text"`
		Voice   json.RawMessage `json:"voice"`
		Sticker json.RawMessage `json:"sticker"`
		Photo   json.RawMessage `json:"photo"`
	} `json:"message"`
}

// Telegram talks to the Bot API over HTTPS.
type Telegram struct {
	baseURL     string
	token       string
	secretToken string
	adminChatID string
	httpClient  *http.Client
	logger      zerolog.Logger
}

// TelegramOption customizes the adapter, mainly for tests.
type TelegramOption func(*Telegram)

// WithBaseURL overrides the Bot API endpoint.
func WithBaseURL(url string) TelegramOption {
	return func(t *Telegram) { t.baseURL = url }
}

// WithTelegramHTTPClient overrides the HTTP client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.httpClient = c }
}

// NewTelegram returns a Telegram adapter. adminChatID receives operational
// alerts; empty disables them.
func NewTelegram(token, secretToken, adminChatID string, logger zerolog.Logger, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		baseURL:     "https://api.telegram.org",
		token:       token,
		secretToken: secretToken,
		adminChatID: adminChatID,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With().Str("component", "telegram").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// VerifySecret checks the X-Telegram-Bot-Api-Secret-Token header value in
// constant time. An unset header never verifies.
func (t *Telegram) VerifySecret(header string) bool {
	if header == "" || t.secretToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(t.secretToken)) == 1
}

// ParseUpdate converts a raw webhook body into an InboundMessage. Updates
// without a message (edits, callbacks) are rejected.
func (t *Telegram) ParseUpdate(body []byte) (domain.InboundMessage, error) {
	var upd telegramUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		return domain.InboundMessage{}, fmt.Errorf("decode telegram update: %w", err)
	}
	if upd.Message == nil {
		return domain.InboundMessage{}, fmt.Errorf("telegram update %d carries no message", upd.UpdateID)
	}
	msg := upd.Message

	msgType := domain.MessageText
	switch {
	case len(msg.Voice) > 0:
		msgType = domain.MessageVoice
	case len(msg.Sticker) > 0:
		msgType = domain.MessageSticker
	case len(msg.Photo) > 0:
		msgType = domain.MessageImage
	}

	var senderName string
	if msg.From != nil {
		senderName = msg.From.FirstName
		if msg.From.LastName != "" {
			senderName = msg.From.FirstName + " " + msg.From.LastName
		}
	}

	return domain.InboundMessage{
		Channel:     domain.ChannelTelegram,
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:   strconv.FormatInt(msg.MessageID, 10),
		Timestamp:   time.Unix(msg.Date, 0).UTC(),
		Text:        msg.Text,
		MessageType: msgType,
		SenderName:  senderName,
		TraceID:     domain.NewTraceID(),
	}, nil
}

// SendMessage delivers text to a chat, truncating to the Bot API limit.
// The cut counts runes, not bytes: Cyrillic text is two bytes per rune and a
// byte slice could split one, which the Bot API rejects as invalid UTF-8.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string) error {
	if utf8.RuneCountInString(text) > telegramMessageLimit {
		r := []rune(text)
		text = string(r[:telegramMessageLimit-1]) + "…"
	}
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendTyping shows the typing indicator. Failures are ignored.
func (t *Telegram) SendTyping(ctx context.Context, chatID string) {
	if err := t.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	}); err != nil {
		t.logger.Debug().Err(err).Str("chat_id", chatID).Msg("typing indicator failed")
	}
}

// Notify sends an operational alert to the admin chat. Satisfies the CRM
// fallback queue's notifier.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if t.adminChatID == "" {
		return nil
	}
	return t.SendMessage(ctx, t.adminChatID, text)
}

func (t *Telegram) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, data)
	}
	return nil
}
