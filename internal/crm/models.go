// Package crm integrates the external scheduling system behind a resilience
// adapter: an HTTP client with bounded retry, a per-process circuit breaker,
// a read-through cache, error classification into user-safe messages, and a
// durable fallback queue for requests that must not be lost.
package crm

// Schedule is one class occurrence in the studio timetable.
type Schedule struct {
	ID              int64  `json:"id"`
	GroupID         int64  `json:"group_id,omitempty"`
	TeacherID       int64  `json:"teacher_id,omitempty"`
	HallID          int64  `json:"hall_id,omitempty"`
	Date            string `json:"date"` // YYYY-MM-DD
	Time            string `json:"time"` // HH:MM
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	MaxStudents     int    `json:"max_students,omitempty"`
	CurrentStudents int    `json:"current_students,omitempty"`
	IsActive        bool   `json:"is_active,omitempty"`
}

// Group is a class group (direction) clients book into.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	StyleID     int64  `json:"style_id,omitempty"`
	TeacherID   int64  `json:"teacher_id,omitempty"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active,omitempty"`
}

// Client is a studio customer record.
type Client struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	InformerID int64  `json:"informer_id,omitempty"`
}

// Reservation is a committed booking tying a client to a schedule entry.
type Reservation struct {
	ID         int64  `json:"id"`
	ClientID   int64  `json:"client_id"`
	ScheduleID int64  `json:"schedule_id"`
	StatusID   int64  `json:"status_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}
