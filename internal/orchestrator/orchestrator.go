// Package orchestrator glues the dialogue together: it owns the single entry
// point ProcessMessage, drives the conversation state machine, merges
// extracted slots, and runs the confirm/commit sequence against the CRM.
//
// Failure semantics: CRM errors arrive already classified into user-safe
// text and are never retried here; the orchestrator only performs its own
// compensation (lock release, state rollback) and records the failure.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-booking-backend/internal/crm"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/fsm"
	"github.com/tbourn/go-booking-backend/internal/intent"
	"github.com/tbourn/go-booking-backend/internal/temporal"
)

// User-facing dialogue texts.
const (
	BookingInProgressReply = "Идёт обработка записи, подождите немного..."
	adminRelayReply        = "Ваше сообщение передано администратору."
	cancelledReply         = "Запись отменена. Чем ещё могу помочь?"
	defaultIdleReply       = "Чем могу помочь?"
	bookingStartReply      = "Помогу записаться на занятие! Какое направление вас интересует?"
	scheduleReply          = "Показываю расписание..."
	noClassReply           = "Не удалось найти подходящее занятие. Обратитесь к администратору."
	incompleteSlotsReply   = "Не удалось определить дату и время. Пожалуйста, уточните."
	resolveFailureReply    = "Извините, произошла ошибка. Попробуйте написать ещё раз чуть позже."
	genericBookingFailure  = "Произошла ошибка при создании записи. Записал заявку — администратор подтвердит."
)

// receiptMaxRunes caps the rendered receipt; Telegram dialogue texts stay
// short.
const receiptMaxRunes = 300

const receiptTemplate = `✅ Запись подтверждена!

Направление: %s
Дата и время: %s
Имя: %s
Телефон: %s
Адрес: %s

Номер записи: %d
Напомню за день до занятия!`

const confirmTemplate = `Подтвердите запись:

Направление: %s
Дата и время: %s
Имя: %s
Телефон: %s

Подтверждаете? (да/нет)`

// defaultClassTime is assumed when the user named a day but no clock time.
const defaultClassTime = "19:00"

var affirmatives = map[string]bool{"да": true, "yes": true, "подтверждаю": true, "согласен": true}
var negatives = map[string]bool{"нет": true, "no": true, "отмена": true}

// Sessions is the session store surface the flow uses.
type Sessions interface {
	GetOrCreate(ctx context.Context, traceID string, channel domain.Channel, chatID string) (*domain.Session, error)
	Save(ctx context.Context, sess *domain.Session) error
}

// Budget guards paid generation calls.
type Budget interface {
	CheckAll(ctx context.Context, tokens, costCents int64) error
	RecordError(ctx context.Context) (bool, error)
}

// IntentResolver classifies a message and extracts slots.
type IntentResolver interface {
	Resolve(ctx context.Context, text string, state domain.State, slots domain.SlotValues) (intent.Result, error)
}

// Directory is the CRM surface the flow needs.
type Directory interface {
	GetSchedule(ctx context.Context, dateFrom, dateTo string, groupID int64) ([]crm.Schedule, error)
	GetGroups(ctx context.Context) ([]crm.Group, error)
	FindClient(ctx context.Context, phone string) (*crm.Client, error)
	CreateClient(ctx context.Context, name, phone string) (*crm.Client, error)
	CreateBooking(ctx context.Context, clientID, scheduleID int64) (*crm.Reservation, error)
}

// Locks is the booking idempotency guard.
type Locks interface {
	Acquire(ctx context.Context, phone, scheduleID string) (isNew bool, message string, err error)
	Release(ctx context.Context, phone, scheduleID string) error
}

// Auditor is the fire-and-forget audit sink.
type Auditor interface {
	LogMessage(ctx context.Context, traceID, channel, chatID, direction, content, state string)
	LogToolCall(ctx context.Context, traceID, tool, params string, resultSize int, durationMS int64, callErr string)
	LogBooking(ctx context.Context, traceID, channel, chatID string, scheduleID int64, clientPhone, outcome, detail string)
	LogError(ctx context.Context, traceID, component, message string)
}

// Config carries the flow's collaborators and settings. All references are
// constructed once at process start and injected.
type Config struct {
	Sessions      Sessions
	Budget        Budget
	Intent        IntentResolver
	CRM           Directory
	Locks         Locks
	Audit         Auditor
	Temporal      *temporal.Parser
	StudioAddress string
	TestMode      bool
	Logger        zerolog.Logger
}

// Flow is the booking orchestrator.
type Flow struct {
	sessions Sessions
	budget   Budget
	resolver IntentResolver
	crm      Directory
	locks    Locks
	audit    Auditor
	temporal *temporal.Parser
	address  string
	testMode bool
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customizes a Flow.
type Option func(*Flow)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow wires the orchestrator.
func NewFlow(cfg Config, opts ...Option) *Flow {
	f := &Flow{
		sessions: cfg.Sessions,
		budget:   cfg.Budget,
		resolver: cfg.Intent,
		crm:      cfg.CRM,
		locks:    cfg.Locks,
		audit:    cfg.Audit,
		temporal: cfg.Temporal,
		address:  cfg.StudioAddress,
		testMode: cfg.TestMode,
		logger:   cfg.Logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ProcessMessage handles one inbound message end to end and returns the
// reply text. The only error it returns is a budget breach, which aborts
// processing before any generation call; every other failure resolves to
// human-readable text.
func (f *Flow) ProcessMessage(ctx context.Context, msg domain.InboundMessage) (string, error) {
	tr := otel.Tracer("orchestrator/Flow")
	ctx, span := tr.Start(ctx, "ProcessMessage",
		trace.WithAttributes(
			attribute.String("channel", string(msg.Channel)),
			attribute.String("chat.id", msg.ChatID),
			attribute.String("trace.id", msg.TraceID),
		))
	defer span.End()

	sess, err := f.sessions.GetOrCreate(ctx, msg.TraceID, msg.Channel, msg.ChatID)
	if err != nil {
		f.logger.Error().Err(err).Str("trace_id", msg.TraceID).Msg("session load failed")
		return resolveFailureReply, nil
	}
	span.SetAttributes(attribute.String("session.state", string(sess.State)))
	log := f.logger.With().
		Str("trace_id", sess.TraceID).
		Str("channel", string(sess.Channel)).
		Str("chat_id", sess.ChatID).
		Logger()

	f.audit.LogMessage(ctx, sess.TraceID, string(sess.Channel), sess.ChatID, "in", msg.Text, string(sess.State))

	if f.testMode && strings.HasPrefix(msg.Text, "/debug") {
		return f.debugReply(sess), nil
	}

	// A completed booking rolls over: the next message starts a fresh
	// dialogue with the history intact.
	if fsm.IsTerminal(sess.State) {
		f.transition(sess, domain.StateIdle, log)
		sess.Slots = domain.SlotValues{Messages: sess.Slots.Messages}
	}

	var reply string
	switch sess.State {
	case domain.StateIdle:
		reply, err = f.handleIdle(ctx, sess, msg.Text, log)
	case domain.StateBookingInProgress:
		reply = BookingInProgressReply
	case domain.StateAdminResponding:
		reply = adminRelayReply
	default:
		reply, err = f.handleCollecting(ctx, sess, msg.Text, log)
	}
	if err != nil {
		// Budget breach: abort without touching history.
		f.audit.LogError(ctx, sess.TraceID, "budget", err.Error())
		return "", err
	}

	if msg.Text != "" && reply != "" {
		sess.Slots.AppendTurn(msg.Text, reply)
	}
	if err := f.sessions.Save(ctx, sess); err != nil {
		log.Error().Err(err).Msg("session save failed")
	}
	f.audit.LogMessage(ctx, sess.TraceID, string(sess.Channel), sess.ChatID, "out", reply, string(sess.State))
	return reply, nil
}

// resolveIntent runs the budget gate and the generation-backed extractor.
// A *budget.BreachError passes through untouched; a generator failure is
// counted against the error budget and surfaced as ok=false.
func (f *Flow) resolveIntent(ctx context.Context, sess *domain.Session, text string, log zerolog.Logger) (intent.Result, bool, error) {
	tokens := estimateTokens(text, sess.Slots.Messages)
	if err := f.budget.CheckAll(ctx, tokens, estimateCostCents(tokens)); err != nil {
		return intent.Result{}, false, err
	}

	res, err := f.resolver.Resolve(ctx, text, sess.State, sess.Slots)
	if err != nil {
		if _, recErr := f.budget.RecordError(ctx); recErr != nil {
			log.Warn().Err(recErr).Msg("error budget record failed")
		}
		f.audit.LogError(ctx, sess.TraceID, "intent", err.Error())
		log.Error().Err(err).Msg("intent resolution failed")
		return intent.Result{}, false, nil
	}
	return res, true, nil
}

func (f *Flow) handleIdle(ctx context.Context, sess *domain.Session, text string, log zerolog.Logger) (string, error) {
	res, ok, err := f.resolveIntent(ctx, sess, text, log)
	if err != nil {
		return "", err
	}
	if !ok {
		return resolveFailureReply, nil
	}

	switch res.Intent {
	case intent.IntentBooking:
		f.transition(sess, domain.StateCollectingIntent, log)
		f.mergeSlots(sess, res.Slots)
		if reply := f.decideNext(ctx, sess, res.ResponseText, log); reply != "" {
			return reply, nil
		}
		if res.ResponseText != "" {
			return res.ResponseText, nil
		}
		return bookingStartReply, nil
	case intent.IntentScheduleQuery:
		f.transition(sess, domain.StateCollectingIntent, log)
		f.transition(sess, domain.StateBrowsingSchedule, log)
		f.fetchScheduleTool(ctx, sess, log)
		if res.ResponseText != "" {
			return res.ResponseText, nil
		}
		return scheduleReply, nil
	default:
		if res.ResponseText != "" {
			return res.ResponseText, nil
		}
		return defaultIdleReply, nil
	}
}

func (f *Flow) handleCollecting(ctx context.Context, sess *domain.Session, text string, log zerolog.Logger) (string, error) {
	// Confirmation answers are matched literally, before any generation
	// call: "да" must not burn budget.
	if sess.State == domain.StateConfirmBooking {
		answer := strings.ToLower(strings.TrimSpace(text))
		if affirmatives[answer] {
			return f.confirmBooking(ctx, sess, log), nil
		}
		if negatives[answer] {
			f.transition(sess, domain.StateIdle, log)
			sess.Slots = domain.SlotValues{Messages: sess.Slots.Messages}
			return cancelledReply, nil
		}
	}

	res, ok, err := f.resolveIntent(ctx, sess, text, log)
	if err != nil {
		return "", err
	}
	if !ok {
		return resolveFailureReply, nil
	}

	f.mergeSlots(sess, res.Slots)

	if res.Intent == intent.IntentScheduleQuery || res.Intent == intent.IntentBooking {
		f.fetchScheduleTool(ctx, sess, log)
	}
	if res.Intent == intent.IntentCancel {
		f.transition(sess, domain.StateIdle, log)
		sess.Slots = domain.SlotValues{Messages: sess.Slots.Messages}
		return cancelledReply, nil
	}

	if reply := f.decideNext(ctx, sess, res.ResponseText, log); reply != "" {
		return reply, nil
	}
	if res.ResponseText != "" {
		return res.ResponseText, nil
	}
	return defaultIdleReply, nil
}

// decideNext moves the session forward once slots changed: to the confirm
// summary when everything is present, or to a prompt naming the missing
// slots in fixed order. Empty return means the caller's own response text
// should stand.
func (f *Flow) decideNext(ctx context.Context, sess *domain.Session, responseText string, log zerolog.Logger) string {
	if sess.State == domain.StateConfirmBooking {
		return f.confirmationSummary(sess)
	}
	missing := missingSlots(sess.Slots)
	if len(missing) == 0 {
		if !f.advance(sess, domain.StateConfirmBooking, log) {
			log.Warn().Str("state", string(sess.State)).Msg("cannot reach confirmation state")
			return ""
		}
		return f.confirmationSummary(sess)
	}

	// Park the session on the state of the first missing slot when the
	// transition table allows it.
	f.advance(sess, slotState(missing[0]), log)
	if responseText != "" {
		return ""
	}
	return "Нужна информация: " + strings.Join(missing, ", ")
}

// confirmBooking runs the commit sequence from the confirmation state.
// Every branch resolves to user text; compensation (lock release, rollback
// to idle) happens here.
func (f *Flow) confirmBooking(ctx context.Context, sess *domain.Session, log zerolog.Logger) string {
	tr := otel.Tracer("orchestrator/Flow")
	ctx, span := tr.Start(ctx, "confirmBooking",
		trace.WithAttributes(attribute.String("trace.id", sess.TraceID)))
	defer span.End()

	if sess.Slots.Group == "" || sess.Slots.DatetimeResolved == nil {
		return "Не все данные заполнены. Пожалуйста, укажите направление и дату."
	}

	f.transition(sess, domain.StateBookingInProgress, log)
	// Persist immediately so concurrent messages see the in-progress state.
	if err := f.sessions.Save(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("saving in-progress state failed")
	}

	rollback := func(detail string) {
		f.transition(sess, domain.StateIdle, log)
		f.audit.LogBooking(ctx, sess.TraceID, string(sess.Channel), sess.ChatID,
			0, sess.Slots.ClientPhone, "failed", detail)
	}

	client, err := f.crm.FindClient(ctx, sess.Slots.ClientPhone)
	if err != nil {
		rollback(err.Error())
		return userMessage(err)
	}
	if client == nil {
		name := sess.Slots.ClientName
		if name == "" {
			name = "Клиент"
		}
		client, err = f.crm.CreateClient(ctx, name, sess.Slots.ClientPhone)
		if err != nil {
			rollback(err.Error())
			return userMessage(err)
		}
	}

	scheduleID, reply := f.resolveScheduleID(ctx, sess, log)
	if reply != "" {
		f.transition(sess, domain.StateIdle, log)
		return reply
	}

	lockID := strconv.FormatInt(scheduleID, 10)
	isNew, lockMsg, err := f.locks.Acquire(ctx, sess.Slots.ClientPhone, lockID)
	if err != nil {
		rollback(err.Error())
		return genericBookingFailure
	}
	if !isNew {
		f.transition(sess, domain.StateIdle, log)
		f.audit.LogBooking(ctx, sess.TraceID, string(sess.Channel), sess.ChatID,
			scheduleID, sess.Slots.ClientPhone, "rejected", "duplicate booking attempt")
		return lockMsg
	}

	reservation, err := f.crm.CreateBooking(ctx, client.ID, scheduleID)
	if err != nil {
		if relErr := f.locks.Release(ctx, sess.Slots.ClientPhone, lockID); relErr != nil {
			log.Warn().Err(relErr).Msg("lock release failed")
		}
		f.transition(sess, domain.StateIdle, log)
		f.audit.LogBooking(ctx, sess.TraceID, string(sess.Channel), sess.ChatID,
			scheduleID, sess.Slots.ClientPhone, "failed", err.Error())
		return userMessage(err)
	}

	f.transition(sess, domain.StateBookingDone, log)
	sess.Slots.ScheduleID = lockID
	f.audit.LogBooking(ctx, sess.TraceID, string(sess.Channel), sess.ChatID,
		scheduleID, sess.Slots.ClientPhone, "confirmed", "")
	return f.renderReceipt(sess, client, reservation)
}

// resolveScheduleID pins the schedule entry for the collected slots: exact
// date, exact time, and the mapped group id when a group name was given.
// First match wins. A non-empty reply means resolution failed.
func (f *Flow) resolveScheduleID(ctx context.Context, sess *domain.Session, log zerolog.Logger) (int64, string) {
	if sess.Slots.ScheduleID != "" {
		if id, err := strconv.ParseInt(sess.Slots.ScheduleID, 10, 64); err == nil {
			return id, ""
		}
	}

	resolved := sess.Slots.DatetimeResolved
	if resolved == nil {
		return 0, incompleteSlotsReply
	}
	local := resolved.In(f.temporal.Location())
	dateStr := local.Format("2006-01-02")
	timeStr := local.Format("15:04")

	var groupID int64
	if sess.Slots.Group != "" {
		groups, err := f.crm.GetGroups(ctx)
		if err != nil {
			return 0, userMessage(err)
		}
		for _, g := range groups {
			if strings.EqualFold(g.Name, sess.Slots.Group) {
				groupID = g.ID
				break
			}
		}
	}

	schedules, err := f.crm.GetSchedule(ctx, dateStr, "", 0)
	if err != nil {
		return 0, userMessage(err)
	}
	for _, s := range schedules {
		if s.Date == dateStr && s.Time == timeStr && (groupID == 0 || s.GroupID == groupID) {
			return s.ID, ""
		}
	}
	log.Info().Str("date", dateStr).Str("time", timeStr).Int64("group_id", groupID).
		Msg("no schedule entry matched")
	return 0, noClassReply
}

// fetchScheduleTool loads live availability for the extracted date and logs
// the lookup. The result feeds the audit trail and warms the CRM cache; the
// reply text itself comes from the generation model.
func (f *Flow) fetchScheduleTool(ctx context.Context, sess *domain.Session, log zerolog.Logger) {
	dateFrom := ""
	if sess.Slots.DatetimeResolved != nil {
		dateFrom = sess.Slots.DatetimeResolved.In(f.temporal.Location()).Format("2006-01-02")
	}
	start := f.now()
	schedules, err := f.crm.GetSchedule(ctx, dateFrom, "", 0)
	durationMS := f.now().Sub(start).Milliseconds()
	if err != nil {
		f.audit.LogToolCall(ctx, sess.TraceID, "get_schedule", dateFrom, 0, durationMS, err.Error())
		log.Warn().Err(err).Msg("schedule lookup failed")
		return
	}
	f.audit.LogToolCall(ctx, sess.TraceID, "get_schedule", dateFrom, len(schedules), durationMS, "")
}

// mergeSlots folds extracted slot values into the session, resolving a raw
// datetime through the temporal parser. Empty extracted values never clear
// an already collected slot.
func (f *Flow) mergeSlots(sess *domain.Session, extracted intent.Slots) {
	if extracted.Group != "" {
		sess.Slots.Group = extracted.Group
	}
	if extracted.ClientName != "" {
		sess.Slots.ClientName = extracted.ClientName
	}
	if extracted.ClientPhone != "" {
		sess.Slots.ClientPhone = extracted.ClientPhone
	}
	if extracted.Datetime != "" {
		sess.Slots.DatetimeRaw = extracted.Datetime
		res, err := f.temporal.Parse(extracted.Datetime, f.now())
		if err == nil && res.HasDate {
			if res.Time == "" {
				res.Time = defaultClassTime
			}
			if dt, ok := res.DateTime(f.temporal.Location()); ok {
				sess.Slots.DatetimeResolved = &dt
			}
		}
	}
}

// forward is the slot-collection chain, in dialogue order.
var forward = []domain.State{
	domain.StateCollectingIntent,
	domain.StateCollectingGroup,
	domain.StateCollectingDatetime,
	domain.StateCollectingContact,
	domain.StateConfirmBooking,
}

func chainIndex(state domain.State) int {
	for i, s := range forward {
		if s == state {
			return i
		}
	}
	return -1
}

// advance walks the session forward along the collection chain to target,
// taking only transitions the table allows. Slot skipping falls out of the
// walk: states whose slot is already filled are passed through.
func (f *Flow) advance(sess *domain.Session, target domain.State, log zerolog.Logger) bool {
	for {
		if sess.State == target {
			return true
		}
		if fsm.CanTransition(sess.State, target) {
			sess.State = target
			return true
		}
		ti, ci := chainIndex(target), chainIndex(sess.State)
		if ci < 0 {
			// Off-chain states (browsing-schedule, serial-booking) rejoin
			// the walk at the earliest chain state the table lets them enter.
			for _, s := range forward {
				if fsm.CanTransition(sess.State, s) {
					sess.State = s
					break
				}
			}
			if ci = chainIndex(sess.State); ci < 0 {
				return false
			}
			continue
		}
		if ti < 0 || ci >= ti {
			return false
		}
		var next domain.State
		for j := ti; j > ci; j-- {
			if fsm.CanTransition(sess.State, forward[j]) {
				next = forward[j]
				break
			}
		}
		if next == "" {
			return false
		}
		sess.State = next
	}
}

func (f *Flow) transition(sess *domain.Session, to domain.State, log zerolog.Logger) bool {
	if !fsm.CanTransition(sess.State, to) {
		log.Warn().
			Str("from", string(sess.State)).
			Str("to", string(to)).
			Msg("transition rejected")
		return false
	}
	sess.State = to
	return true
}

func missingSlots(slots domain.SlotValues) []string {
	var missing []string
	if slots.Group == "" {
		missing = append(missing, "направление")
	}
	if slots.DatetimeResolved == nil {
		missing = append(missing, "дата и время")
	}
	if slots.ClientName == "" {
		missing = append(missing, "имя")
	}
	if slots.ClientPhone == "" {
		missing = append(missing, "телефон")
	}
	return missing
}

func slotState(label string) domain.State {
	switch label {
	case "направление":
		return domain.StateCollectingGroup
	case "дата и время":
		return domain.StateCollectingDatetime
	default:
		return domain.StateCollectingContact
	}
}

func (f *Flow) confirmationSummary(sess *domain.Session) string {
	return fmt.Sprintf(confirmTemplate,
		orDefault(sess.Slots.Group),
		f.formatDatetime(sess.Slots),
		orDefault(sess.Slots.ClientName),
		orDefault(sess.Slots.ClientPhone),
	)
}

func (f *Flow) formatDatetime(slots domain.SlotValues) string {
	if slots.DatetimeResolved != nil {
		return slots.DatetimeResolved.In(f.temporal.Location()).Format("02.01.2006 15:04")
	}
	if slots.DatetimeRaw != "" {
		return slots.DatetimeRaw
	}
	return "не указано"
}

func orDefault(s string) string {
	if s == "" {
		return "не указано"
	}
	return s
}

// renderReceipt fills the receipt template and enforces the length cap:
// the address is truncated first, the whole text only as a last resort.
func (f *Flow) renderReceipt(sess *domain.Session, client *crm.Client, reservation *crm.Reservation) string {
	receipt := fmt.Sprintf(receiptTemplate,
		orDefault(sess.Slots.Group),
		f.formatDatetime(sess.Slots),
		client.Name,
		client.Phone,
		f.address,
		reservation.ID,
	)
	if utf8.RuneCountInString(receipt) <= receiptMaxRunes {
		return receipt
	}

	base := utf8.RuneCountInString(receipt) - utf8.RuneCountInString(f.address)
	if maxAddr := receiptMaxRunes - base - 1; maxAddr > 0 {
		addr := []rune(f.address)
		if maxAddr < len(addr) {
			receipt = strings.Replace(receipt, f.address, string(addr[:maxAddr])+"…", 1)
		}
	}
	if utf8.RuneCountInString(receipt) > receiptMaxRunes {
		r := []rune(receipt)
		receipt = string(r[:receiptMaxRunes-1]) + "…"
	}
	return receipt
}

func (f *Flow) debugReply(sess *domain.Session) string {
	slots, _ := json.Marshal(sess.Slots)
	return fmt.Sprintf("Debug info:\nState: %s\nSlots: %s\nTrace ID: %s\nCreated: %s\nUpdated: %s",
		sess.State, slots, sess.TraceID,
		sess.CreatedAt.Format(time.RFC3339), sess.UpdatedAt.Format(time.RFC3339))
}

// userMessage extracts the classified user-safe text from a CRM error;
// anything else gets the generic fallback.
func userMessage(err error) string {
	var crmErr *crm.Error
	if errors.As(err, &crmErr) {
		return crmErr.UserMessage
	}
	return genericBookingFailure
}

// estPromptChars approximates the system prompt plus knowledge context.
const estPromptChars = 2000

// estimateTokens mirrors the rough 4-chars-per-token heuristic used when
// budgeting generation calls.
func estimateTokens(text string, history []domain.HistoryEntry) int64 {
	chars := len(text) + estPromptChars
	for _, h := range history {
		chars += len(h.Content)
	}
	return int64(chars / 4)
}

// estimateCostCents prices estimated tokens at 0.41 RUB per 1000 tokens,
// converted to USD cents at 90 RUB/USD, rounded up.
func estimateCostCents(tokens int64) int64 {
	rub := float64(tokens) / 1000.0 * 0.41
	cents := int64(math.Ceil(rub / 90.0 * 100.0))
	if cents < 1 {
		cents = 1
	}
	return cents
}
