// Package fsm holds the deterministic conversation state machine: the
// transition table, per-state timeouts, and the small predicates the
// orchestrator uses to drive dialogue flow. Everything here is pure; the
// session store enforces the timeouts this package declares.
package fsm

import (
	"time"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// transitions maps each state to the set of states it may move to.
// Collecting-intent allows slot skipping: a single message that already
// carries a datetime or contact jumps straight to the matching state.
var transitions = map[domain.State][]domain.State{
	domain.StateIdle: {
		domain.StateCollectingIntent,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateCollectingIntent: {
		domain.StateBrowsingSchedule,
		domain.StateCollectingGroup,
		domain.StateCollectingDatetime,
		domain.StateCollectingContact,
		domain.StateIdle,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateBrowsingSchedule: {
		domain.StateCollectingGroup,
		domain.StateIdle,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateCollectingGroup: {
		domain.StateCollectingDatetime,
		domain.StateIdle,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateCollectingDatetime: {
		domain.StateCollectingContact,
		domain.StateIdle,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateCollectingContact: {
		domain.StateConfirmBooking,
		domain.StateIdle,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateConfirmBooking: {
		domain.StateBookingInProgress,
		domain.StateIdle,
		domain.StateCancelFlow,
		domain.StateHandoffToAdmin,
	},
	domain.StateBookingInProgress: {
		domain.StateBookingDone,
		domain.StateIdle,
		domain.StateHandoffToAdmin,
	},
	domain.StateBookingDone: {
		domain.StateIdle,
		domain.StateSerialBooking,
	},
	domain.StateCancelFlow: {
		domain.StateIdle,
		domain.StateHandoffToAdmin,
	},
	domain.StateSerialBooking: {
		domain.StateCollectingGroup,
		domain.StateIdle,
		domain.StateHandoffToAdmin,
	},
	domain.StateHandoffToAdmin: {
		domain.StateAdminResponding,
		domain.StateIdle,
	},
	domain.StateAdminResponding: {
		domain.StateIdle,
	},
}

// CanTransition reports whether moving from one state to another is allowed.
// Unknown states have no outgoing transitions.
func CanTransition(from, to domain.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Timeout returns the inactivity timeout for a state, or (0, false) if the
// state has none and the session default applies.
func Timeout(state domain.State) (time.Duration, bool) {
	switch state {
	case domain.StateConfirmBooking:
		return 3 * time.Hour, true
	case domain.StateBookingInProgress:
		return 30 * time.Second, true
	case domain.StateAdminResponding:
		return 4 * time.Hour, true
	default:
		return 0, false
	}
}

// IsTerminal reports whether a state auto-transitions back to idle without
// further user input.
func IsTerminal(state domain.State) bool {
	return state == domain.StateBookingDone
}

// IsPersistent reports whether a state is long-lived (waiting on an admin
// rather than the user).
func IsPersistent(state domain.State) bool {
	return state == domain.StateHandoffToAdmin || state == domain.StateAdminResponding
}

// States returns every state that has an entry in the transition table.
func States() []domain.State {
	out := make([]domain.State, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	return out
}
