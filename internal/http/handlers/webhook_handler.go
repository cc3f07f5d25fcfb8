package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/budget"
	"github.com/tbourn/go-booking-backend/internal/channel"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/http/middleware"
)

// secretHeader is the header Telegram echoes back on every webhook delivery
// when the webhook was registered with a secret token.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// busyReply is sent instead of a generated answer when the budget guard
// rejects the message. The user never sees the breach reason.
const busyReply = "Сейчас слишком много запросов 🙏 Попробуйте написать через пару минут."

// Channel is the messaging side of the webhook: verification, parsing and
// outbound sends. Implemented by channel.Telegram.
type Channel interface {
	VerifySecret(header string) bool
	ParseUpdate(body []byte) (domain.InboundMessage, error)
	SendMessage(ctx context.Context, chatID, text string) error
	SendTyping(ctx context.Context, chatID string)
}

// Deduper drops repeated deliveries of the same message.
type Deduper interface {
	IsDuplicate(ctx context.Context, msg domain.InboundMessage) bool
}

// Processor runs the dialogue for one inbound message and returns the reply
// text. The only error it surfaces is a budget breach.
type Processor interface {
	ProcessMessage(ctx context.Context, msg domain.InboundMessage) (string, error)
}

// Webhook handles inbound Telegram updates.
type Webhook struct {
	channel  Channel
	dedup    Deduper
	flow     Processor
	testMode bool
}

// NewWebhook wires the webhook handler.
func NewWebhook(ch Channel, dedup Deduper, flow Processor, testMode bool) *Webhook {
	return &Webhook{channel: ch, dedup: dedup, flow: flow, testMode: testMode}
}

// Telegram is POST /webhook/telegram.
//
// Order matters: verify the secret before reading the body, drop duplicates
// before the orchestrator runs, answer non-text messages without burning
// budget. Telegram retries on non-2xx, so every handled message answers 200
// even when the outbound send fails (the message is already marked seen and
// a retry would be dropped).
func (h *Webhook) Telegram(c *gin.Context) {
	if !h.channel.VerifySecret(c.GetHeader(secretHeader)) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	msg, err := h.channel.ParseUpdate(body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update")
		return
	}

	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	if h.dedup.IsDuplicate(ctx, msg) {
		lg.Debug().Str("message_id", msg.MessageID).Msg("duplicate delivery dropped")
		ok(c, http.StatusOK, gin.H{"ok": true})
		return
	}

	if msg.MessageType != domain.MessageText {
		h.send(c, msg.ChatID, channel.NonTextReply)
		return
	}

	h.channel.SendTyping(ctx, msg.ChatID)

	reply, err := h.flow.ProcessMessage(ctx, msg)
	if err != nil {
		var breach *budget.BreachError
		if errors.As(err, &breach) {
			lg.Warn().Str("reason", breach.Reason).Str("trace_id", msg.TraceID).Msg("budget breach, replying busy")
			h.send(c, msg.ChatID, busyReply)
			return
		}
		lg.Error().Err(err).Str("trace_id", msg.TraceID).Msg("message processing failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "processing failed")
		return
	}

	h.send(c, msg.ChatID, reply)
}

// Debug is POST /debug: the webhook body format, run through the dialogue,
// with the reply returned in the response instead of sent to the chat.
// Available only in test mode.
func (h *Webhook) Debug(c *gin.Context) {
	if !h.testMode {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	msg, err := h.channel.ParseUpdate(body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update")
		return
	}

	reply, err := h.flow.ProcessMessage(c.Request.Context(), msg)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"response": reply, "trace_id": msg.TraceID})
}

func (h *Webhook) send(c *gin.Context, chatID, text string) {
	if err := h.channel.SendMessage(c.Request.Context(), chatID, text); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("chat_id", chatID).Msg("outbound send failed")
	}
	ok(c, http.StatusOK, gin.H{"ok": true})
}
