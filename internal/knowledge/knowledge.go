// Package knowledge loads the static studio knowledge base from YAML and
// renders the context block injected into the generation prompt. The file is
// validated at startup; an invalid schema keeps the process from starting at
// all rather than letting the bot improvise prices and schedules.
package knowledge

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the only accepted schema_version value.
const SchemaVersion = "1.0"

// StudioInfo describes the studio itself.
type StudioInfo struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Phone    string `yaml:"phone"`
	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone"`
}

// Service is one dance direction on offer.
type Service struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	PriceSingle float64 `yaml:"price_single"`
}

// Teacher is one instructor.
type Teacher struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Styles         []string `yaml:"styles"`
	Specialization string   `yaml:"specialization"`
}

// ScheduleEntry is one recurring weekly class.
type ScheduleEntry struct {
	ServiceID       string `yaml:"service_id"`
	TeacherID       string `yaml:"teacher_id"`
	Day             string `yaml:"day"` // monday..sunday
	Time            string `yaml:"time"`
	DurationMinutes int    `yaml:"duration_minutes"`
	MaxStudents     int    `yaml:"max_students"`
	Level           string `yaml:"level"`
	Room            string `yaml:"room"`
}

// Subscription is a multi-class pass. Classes of -1 means unlimited.
type Subscription struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Classes      int     `yaml:"classes"`
	Price        float64 `yaml:"price"`
	ValidityDays int     `yaml:"validity_days"`
}

// Policy holds the studio rules surfaced to clients.
type Policy struct {
	Cancellation string `yaml:"cancellation"`
	TrialClass   string `yaml:"trial_class"`
	WhatToBring  string `yaml:"what_to_bring"`
	LateArrival  string `yaml:"late_arrival"`
}

// FAQ is one question/answer pair.
type FAQ struct {
	Q string `yaml:"q"`
	A string `yaml:"a"`
}

// Base is the validated knowledge document.
type Base struct {
	SchemaVersion string          `yaml:"schema_version"`
	Studio        StudioInfo      `yaml:"studio"`
	Services      []Service       `yaml:"services"`
	Teachers      []Teacher       `yaml:"teachers"`
	Schedule      []ScheduleEntry `yaml:"schedule"`
	Subscriptions []Subscription  `yaml:"subscriptions"`
	Policies      *Policy         `yaml:"policies"`
	FAQ           []FAQ           `yaml:"faq"`
}

var reTime = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Load reads and validates the knowledge base. Any validation failure is
// fatal to startup by design.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var kb Base
	if err := yaml.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", path, err)
	}
	if err := kb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid knowledge base %s: %w", path, err)
	}
	return &kb, nil
}

// Validate enforces the schema contract.
func (kb *Base) Validate() error {
	if kb.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %s, got %q", SchemaVersion, kb.SchemaVersion)
	}
	if kb.Studio.Name == "" || kb.Studio.Address == "" {
		return fmt.Errorf("studio name and address are required")
	}
	if len(kb.Services) == 0 {
		return fmt.Errorf("at least one service must be defined")
	}
	if len(kb.Teachers) == 0 {
		return fmt.Errorf("at least one teacher must be defined")
	}
	for _, t := range kb.Teachers {
		if len(t.Styles) == 0 {
			return fmt.Errorf("teacher %s: styles must be non-empty", t.ID)
		}
	}
	for _, e := range kb.Schedule {
		if !reTime.MatchString(e.Time) {
			return fmt.Errorf("schedule entry %s/%s: time must be HH:MM, got %q", e.ServiceID, e.Day, e.Time)
		}
		if kb.ServiceByID(e.ServiceID) == nil {
			return fmt.Errorf("schedule entry references unknown service %q", e.ServiceID)
		}
		if kb.TeacherByID(e.TeacherID) == nil {
			return fmt.Errorf("schedule entry references unknown teacher %q", e.TeacherID)
		}
	}
	return nil
}

// ServiceByID returns the service with the given id, or nil.
func (kb *Base) ServiceByID(id string) *Service {
	for i := range kb.Services {
		if kb.Services[i].ID == id {
			return &kb.Services[i]
		}
	}
	return nil
}

// TeacherByID returns the teacher with the given id, or nil.
func (kb *Base) TeacherByID(id string) *Teacher {
	for i := range kb.Teachers {
		if kb.Teachers[i].ID == id {
			return &kb.Teachers[i]
		}
	}
	return nil
}

// SearchFAQ returns FAQ entries whose question contains query,
// case-insensitively, earlier matches first.
func (kb *Base) SearchFAQ(query string) []FAQ {
	q := strings.ToLower(query)
	type scored struct {
		faq FAQ
		pos int
	}
	var matches []scored
	for _, f := range kb.FAQ {
		pos := strings.Index(strings.ToLower(f.Q), q)
		if pos >= 0 {
			matches = append(matches, scored{faq: f, pos: pos})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })
	out := make([]FAQ, len(matches))
	for i, m := range matches {
		out[i] = m.faq
	}
	return out
}

var dayNamesRu = map[string]string{
	"monday":    "Понедельник",
	"tuesday":   "Вторник",
	"wednesday": "Среда",
	"thursday":  "Четверг",
	"friday":    "Пятница",
	"saturday":  "Суббота",
	"sunday":    "Воскресенье",
}

var dayOrder = []string{"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье"}

// FormatScheduleText renders the weekly schedule grouped by day for the
// prompt context.
func (kb *Base) FormatScheduleText() string {
	if len(kb.Schedule) == 0 {
		return "Расписание пока не заполнено."
	}

	byDay := make(map[string][]ScheduleEntry)
	for _, e := range kb.Schedule {
		day, ok := dayNamesRu[strings.ToLower(e.Day)]
		if !ok {
			day = e.Day
		}
		byDay[day] = append(byDay[day], e)
	}

	var b strings.Builder
	b.WriteString("Расписание занятий:\n")
	for _, day := range dayOrder {
		entries, ok := byDay[day]
		if !ok {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
		b.WriteString("\n" + day + ":\n")
		for _, e := range entries {
			serviceName := e.ServiceID
			if svc := kb.ServiceByID(e.ServiceID); svc != nil {
				serviceName = svc.Name
			}
			teacherName := e.TeacherID
			if t := kb.TeacherByID(e.TeacherID); t != nil {
				teacherName = t.Name
			}
			fmt.Fprintf(&b, "  %s - %s (%s) - %s - %s\n", e.Time, serviceName, e.Level, teacherName, e.Room)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

var styleTitler = cases.Title(language.Russian)

// FormatForLLM renders the full context block for the system prompt.
func (kb *Base) FormatForLLM() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Студия: %s\n", kb.Studio.Name)
	fmt.Fprintf(&b, "Адрес: %s\n", kb.Studio.Address)
	fmt.Fprintf(&b, "Телефон: %s\n", kb.Studio.Phone)

	b.WriteString("\nНаправления:\n")
	for _, s := range kb.Services {
		price := "цена уточняется"
		if s.PriceSingle > 0 {
			price = fmt.Sprintf("%.0f₽", s.PriceSingle)
		}
		fmt.Fprintf(&b, "- %s (%s): %s. Разовое занятие: %s\n", s.Name, s.ID, s.Description, price)
	}

	b.WriteString("\nПреподаватели:\n")
	for _, t := range kb.Teachers {
		styles := make([]string, len(t.Styles))
		for i, s := range t.Styles {
			styles[i] = styleTitler.String(s)
		}
		fmt.Fprintf(&b, "- %s (%s): %s. %s\n", t.Name, t.ID, strings.Join(styles, ", "), t.Specialization)
	}

	if len(kb.Subscriptions) > 0 {
		b.WriteString("\nАбонементы:\n")
		for _, s := range kb.Subscriptions {
			classes := fmt.Sprintf("%d занятий", s.Classes)
			if s.Classes == -1 {
				classes = "безлимит"
			}
			fmt.Fprintf(&b, "- %s: %.0f₽ (%s, действует %d дней)\n", s.Name, s.Price, classes, s.ValidityDays)
		}
	}

	b.WriteString("\n" + kb.FormatScheduleText() + "\n")

	if kb.Policies != nil {
		b.WriteString("\nПравила студии:\n")
		fmt.Fprintf(&b, "- Отмена: %s\n", kb.Policies.Cancellation)
		fmt.Fprintf(&b, "- Пробное занятие: %s\n", kb.Policies.TrialClass)
		fmt.Fprintf(&b, "- Что взять с собой: %s\n", kb.Policies.WhatToBring)
		fmt.Fprintf(&b, "- Опоздание: %s\n", kb.Policies.LateArrival)
	}

	if len(kb.FAQ) > 0 {
		b.WriteString("\nЧастые вопросы:\n")
		limit := len(kb.FAQ)
		if limit > 5 {
			limit = 5
		}
		for _, f := range kb.FAQ[:limit] {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Q, f.A)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
