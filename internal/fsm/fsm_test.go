package fsm

import (
	"testing"
	"time"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func TestCanTransition_HappyPath(t *testing.T) {
	steps := []struct {
		from, to domain.State
	}{
		{domain.StateIdle, domain.StateCollectingIntent},
		{domain.StateCollectingIntent, domain.StateCollectingGroup},
		{domain.StateCollectingGroup, domain.StateCollectingDatetime},
		{domain.StateCollectingDatetime, domain.StateCollectingContact},
		{domain.StateCollectingContact, domain.StateConfirmBooking},
		{domain.StateConfirmBooking, domain.StateBookingInProgress},
		{domain.StateBookingInProgress, domain.StateBookingDone},
		{domain.StateBookingDone, domain.StateIdle},
	}
	for _, s := range steps {
		if !CanTransition(s.from, s.to) {
			t.Errorf("CanTransition(%s, %s) = false; want true", s.from, s.to)
		}
	}
}

func TestCanTransition_SlotSkipping(t *testing.T) {
	// A first message carrying a datetime or contact jumps ahead.
	if !CanTransition(domain.StateCollectingIntent, domain.StateCollectingDatetime) {
		t.Error("expected intent → datetime to be allowed")
	}
	if !CanTransition(domain.StateCollectingIntent, domain.StateCollectingContact) {
		t.Error("expected intent → contact to be allowed")
	}
}

func TestCanTransition_Rejected(t *testing.T) {
	cases := []struct {
		from, to domain.State
	}{
		{domain.StateIdle, domain.StateConfirmBooking},
		{domain.StateIdle, domain.StateBookingDone},
		{domain.StateCollectingGroup, domain.StateConfirmBooking},
		{domain.StateBookingDone, domain.StateConfirmBooking},
		{domain.StateAdminResponding, domain.StateCollectingIntent},
		{domain.State("NOPE"), domain.StateIdle},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s, %s) = true; want false", c.from, c.to)
		}
	}
}

// Every transition target must itself be a state in the table, and every
// state except idle must be able to reach idle. A state that can neither
// advance nor reset would strand the conversation.
func TestTransitionTable_Closed(t *testing.T) {
	known := make(map[domain.State]bool)
	for _, s := range States() {
		known[s] = true
	}

	for _, from := range States() {
		for _, to := range transitions[from] {
			if !known[to] {
				t.Errorf("state %s transitions to unknown state %s", from, to)
			}
		}
	}

	// BFS from each state toward idle.
	for _, start := range States() {
		if start == domain.StateIdle {
			continue
		}
		seen := map[domain.State]bool{start: true}
		queue := []domain.State{start}
		reached := false
		for len(queue) > 0 && !reached {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range transitions[cur] {
				if next == domain.StateIdle {
					reached = true
					break
				}
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		if !reached {
			t.Errorf("state %s cannot reach %s", start, domain.StateIdle)
		}
	}
}

func TestTimeout(t *testing.T) {
	cases := []struct {
		state domain.State
		want  time.Duration
		has   bool
	}{
		{domain.StateConfirmBooking, 3 * time.Hour, true},
		{domain.StateBookingInProgress, 30 * time.Second, true},
		{domain.StateAdminResponding, 4 * time.Hour, true},
		{domain.StateIdle, 0, false},
		{domain.StateCollectingContact, 0, false},
	}
	for _, c := range cases {
		got, ok := Timeout(c.state)
		if ok != c.has || got != c.want {
			t.Errorf("Timeout(%s) = (%v, %v); want (%v, %v)", c.state, got, ok, c.want, c.has)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsTerminal(domain.StateBookingDone) {
		t.Error("expected BOOKING_DONE to be terminal")
	}
	if IsTerminal(domain.StateIdle) {
		t.Error("expected IDLE to not be terminal")
	}
	if !IsPersistent(domain.StateHandoffToAdmin) || !IsPersistent(domain.StateAdminResponding) {
		t.Error("expected admin states to be persistent")
	}
	if IsPersistent(domain.StateConfirmBooking) {
		t.Error("expected CONFIRM_BOOKING to not be persistent")
	}
}
