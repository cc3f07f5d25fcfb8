// Package intent classifies user messages and extracts booking slots via
// the generation model. The model does classification and extraction only;
// it never executes tools and never computes dates. Malformed model output
// degrades to an informational reply, it is never an error.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// Intents the model may classify a message into.
const (
	IntentBooking       = "booking"
	IntentScheduleQuery = "schedule_query"
	IntentPriceQuery    = "price_query"
	IntentInfo          = "info"
	IntentGreeting      = "greeting"
	IntentCancel        = "cancel"
	IntentAdmin         = "admin"
)

// Slots are the extracted raw slot strings. Datetime stays raw here; the
// temporal resolver turns it into a concrete value.
type Slots struct {
	Group       string `json:"group"`
	Datetime    string `json:"datetime"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
}

// Result is one resolved message.
type Result struct {
	Intent       string
	Slots        Slots
	ResponseText string
}

// Generator is the paid generation backend. Implementations estimate their
// own token budget; the resolver only passes messages through.
type Generator interface {
	Generate(ctx context.Context, messages []domain.HistoryEntry) (string, error)
}

// Knowledge provides the studio context block injected into the system
// prompt.
type Knowledge interface {
	FormatForLLM() string
}

// Resolver builds the prompt and salvages structure from the reply.
type Resolver struct {
	generator Generator
	knowledge Knowledge
	logger    zerolog.Logger
}

// NewResolver returns a Resolver over the given backend and knowledge base.
func NewResolver(generator Generator, knowledge Knowledge, logger zerolog.Logger) *Resolver {
	return &Resolver{generator: generator, knowledge: knowledge, logger: logger}
}

const promptTemplate = `Ты — помощник студии танцев. Помогаешь клиентам записаться на занятия.

Контекст студии:
%s

Текущее состояние диалога:
- Состояние: %s
- Заполненные слоты: %s

Правила:
1. Определи intent: booking, schedule_query, price_query, info, greeting, cancel, admin
2. Извлеки слоты из сообщения: group, datetime, client_name, client_phone
3. Не придумывай расписание или цены — используй только данные из KB
4. Отвечай кратко (≤300 символов), дружелюбно, без корпоративного жаргона

Отвечай в формате JSON:
{
    "intent": "booking|schedule_query|price_query|info|greeting|cancel|admin",
    "slots": {
        "group": "...",
        "datetime": "...",
        "client_name": "...",
        "client_phone": "..."
    },
    "response": "текст ответа пользователю"
}`

// Resolve classifies text against the current dialogue state. The returned
// error only reflects generator failures; unparseable model output falls
// back to intent "info" with the raw reply as the response text.
func (r *Resolver) Resolve(ctx context.Context, text string, state domain.State, slots domain.SlotValues) (Result, error) {
	known, _ := json.Marshal(map[string]string{
		"group":        slots.Group,
		"datetime":     slots.DatetimeRaw,
		"client_name":  slots.ClientName,
		"client_phone": slots.ClientPhone,
	})
	system := fmt.Sprintf(promptTemplate, r.knowledge.FormatForLLM(), state, known)

	messages := make([]domain.HistoryEntry, 0, len(slots.Messages)+2)
	messages = append(messages, domain.HistoryEntry{Role: "system", Content: system})
	messages = append(messages, slots.Messages...)
	messages = append(messages, domain.HistoryEntry{Role: "user", Content: text})

	reply, err := r.generator.Generate(ctx, messages)
	if err != nil {
		return Result{}, err
	}
	return parseReply(reply, r.logger), nil
}

type wireReply struct {
	Intent   string `json:"intent"`
	Slots    Slots  `json:"slots"`
	Response string `json:"response"`
}

func parseReply(reply string, logger zerolog.Logger) Result {
	result := Result{Intent: IntentInfo, ResponseText: reply}

	data, ok := ExtractJSON(reply)
	if !ok {
		logger.Debug().Msg("model reply carried no parseable JSON, using raw text")
		return result
	}
	var wire wireReply
	if err := json.Unmarshal(data, &wire); err != nil {
		return result
	}
	if wire.Intent != "" {
		result.Intent = wire.Intent
	}
	result.Slots = wire.Slots
	if wire.Response != "" {
		result.ResponseText = wire.Response
	}
	return result
}

var codeBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*\n(.*?)\n```"),
	regexp.MustCompile("(?s)```\\s*\n(.*?)\n```"),
	regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```"),
	regexp.MustCompile("(?s)```\\s*(.*?)\\s*```"),
}

// ExtractJSON salvages a JSON object from model output in three steps:
// direct parse, then fenced code blocks, then give up. It never panics on
// arbitrary input.
func ExtractJSON(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && len(trimmed) > 0 && trimmed[0] == '{' {
		return json.RawMessage(trimmed), true
	}

	for _, re := range codeBlockPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) && len(candidate) > 0 && candidate[0] == '{' {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}
