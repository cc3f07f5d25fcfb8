// Package domain defines the core data types shared across the application:
// the conversation session with its slot values, the dialogue state
// enumeration, and the normalized inbound message produced by channel
// adapters.
//
// Sessions are persisted as JSON documents in the key-value store, so every
// field carries a json tag; there is no relational mapping here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the messaging platform a conversation belongs to.
type Channel string

// Supported channels.
const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

// State is a single conversation state. The set of valid transitions between
// states lives in the fsm package; domain only names the states.
type State string

// Conversation states.
const (
	StateIdle               State = "IDLE"
	StateCollectingIntent   State = "COLLECTING_INTENT"
	StateBrowsingSchedule   State = "BROWSING_SCHEDULE"
	StateCollectingGroup    State = "COLLECTING_GROUP"
	StateCollectingDatetime State = "COLLECTING_DATETIME"
	StateCollectingContact  State = "COLLECTING_CONTACT"
	StateConfirmBooking     State = "CONFIRM_BOOKING"
	StateBookingInProgress  State = "BOOKING_IN_PROGRESS"
	StateBookingDone        State = "BOOKING_DONE"
	StateCancelFlow         State = "CANCEL_FLOW"
	StateSerialBooking      State = "SERIAL_BOOKING"
	StateHandoffToAdmin     State = "HANDOFF_TO_ADMIN"
	StateAdminResponding    State = "ADMIN_RESPONDING"
)

// HistoryLimit bounds the dialogue log kept in SlotValues.Messages. Only the
// last HistoryLimit entries survive a session save; older turns are dropped.
const HistoryLimit = 10

// HistoryEntry is one recorded dialogue turn, replayed as generation context
// on subsequent messages.
//
// Role is either "user" or "assistant".
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SlotValues holds the booking slots collected over a conversation.
//
// DatetimeResolved is always timezone-aware and is derived from DatetimeRaw
// by the temporal resolver; the intent extractor never sets it directly.
type SlotValues struct {
	Group            string         `json:"group,omitempty"`
	DatetimeRaw      string         `json:"datetime_raw,omitempty"`
	DatetimeResolved *time.Time     `json:"datetime_resolved,omitempty"`
	ClientName       string         `json:"client_name,omitempty"`
	ClientPhone      string         `json:"client_phone,omitempty"`
	ScheduleID       string         `json:"schedule_id,omitempty"`
	Messages         []HistoryEntry `json:"messages,omitempty"`
}

// AppendTurn records a user/assistant exchange, keeping only the last
// HistoryLimit entries.
func (s *SlotValues) AppendTurn(userText, botText string) {
	s.Messages = append(s.Messages,
		HistoryEntry{Role: "user", Content: userText},
		HistoryEntry{Role: "assistant", Content: botText},
	)
	if len(s.Messages) > HistoryLimit {
		s.Messages = s.Messages[len(s.Messages)-HistoryLimit:]
	}
}

// Session is one conversation, keyed by (channel, chat id). The orchestrator
// owns it while a message is being processed; between messages it lives in
// the store with a state-dependent TTL.
//
// Fields:
//   - TraceID: correlation id threaded through logs, audit rows, and spans.
//     Rotated when a timed-out session is reset.
//   - Channel / ChatID: conversation identity; never change across resets.
//   - State: current dialogue state.
//   - Slots: collected booking slots plus bounded history.
//   - CreatedAt / UpdatedAt: bookkeeping timestamps, maintained on save.
//   - ExpiresAt: absolute deadline mirroring the store TTL, used to detect
//     state timeouts without relying on key eviction alone.
type Session struct {
	TraceID   string     `json:"trace_id"`
	Channel   Channel    `json:"channel"`
	ChatID    string     `json:"chat_id"`
	State     State      `json:"state"`
	Slots     SlotValues `json:"slots"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// MessageType classifies inbound message content.
type MessageType string

// Inbound message content types.
const (
	MessageText    MessageType = "text"
	MessageVoice   MessageType = "voice"
	MessageSticker MessageType = "sticker"
	MessageImage   MessageType = "image"
)

// InboundMessage is the channel-agnostic form of a webhook delivery. Channel
// adapters produce it; the orchestrator consumes it.
type InboundMessage struct {
	Channel     Channel     `json:"channel"`
	ChatID      string      `json:"chat_id"`
	MessageID   string      `json:"message_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Text        string      `json:"text"`
	MessageType MessageType `json:"message_type"`
	SenderPhone string      `json:"sender_phone,omitempty"`
	SenderName  string      `json:"sender_name,omitempty"`
	TraceID     string      `json:"trace_id"`
}

// NewTraceID returns a fresh correlation identifier for a message or session.
func NewTraceID() string { return uuid.NewString() }
