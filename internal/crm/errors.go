package crm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a call without
// attempting the network.
var ErrBreakerOpen = errors.New("crm: circuit breaker is open")

// StatusError is a non-2xx HTTP response from the CRM. Status errors are
// application-level and are never retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm: http %d: %s", e.Code, e.Body)
}

// Error is the single error type adapter methods return. It carries only the
// classified user-facing message and the fallback decision; internal detail
// stays in the wrapped cause and never reaches the orchestrator's replies.
type Error struct {
	UserMessage     string
	EnqueueFallback bool
	cause           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("crm: %s", e.UserMessage)
}

func (e *Error) Unwrap() error { return e.cause }

// User-facing messages per failure class.
const (
	msgServerError    = "Технический сбой. Записал заявку — администратор подтвердит."
	msgTimeout        = "Превышено время ожидания. Записал заявку — администратор подтвердит."
	msgUnavailable    = "Сервис временно недоступен. Записал заявку — администратор подтвердит."
	msgNotFound       = "Расписание изменилось. Показать актуальное расписание?"
	msgBadRequest     = "Ошибка при обработке запроса. Попробуйте еще раз или обратитесь к администратору."
	msgNoSeats        = "Нет мест на это время. Предлагаю ближайшие доступные варианты."
	msgAlreadyBooked  = "Вы уже записаны на это занятие! Хотите записаться на другое время?"
	msgClassInPast    = "Это время уже прошло. Предлагаю ближайшее доступное занятие."
	msgGroupFull      = "Группа полная. Хотите встать в лист ожидания или выбрать другое время?"
	msgUnknownFailure = "Произошла ошибка. Записал заявку — администратор подтвердит."
)

// Classify maps a raw failure to its user message and fallback decision.
// Pattern checks run in a fixed order; the first match wins.
func Classify(err error) (userMessage string, enqueueFallback bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code >= 500:
			return msgServerError, true
		case statusErr.Code == 404:
			return msgNotFound, false
		case statusErr.Code == 400 || statusErr.Code == 401 || statusErr.Code == 403:
			return msgBadRequest, false
		}
	}

	if isTimeout(err) {
		return msgTimeout, true
	}
	if errors.Is(err, ErrBreakerOpen) {
		return msgUnavailable, true
	}

	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, "нет мест", "no seats", "full"):
		return msgNoSeats, false
	case containsAny(text, "уже записан", "already booked", "duplicate"):
		return msgAlreadyBooked, false
	case containsAny(text, "занятие не найдено", "not found"):
		return msgNotFound, false
	case containsAny(text, "в прошлом", "past", "expired"):
		return msgClassInPast, false
	case containsAny(text, "группа заполнена", "group full"):
		return msgGroupFull, false
	}

	return msgUnknownFailure, true
}

// classified wraps a raw failure into the adapter's normalized error.
func classified(err error) *Error {
	msg, fallback := Classify(err)
	return &Error{UserMessage: msg, EnqueueFallback: fallback, cause: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
