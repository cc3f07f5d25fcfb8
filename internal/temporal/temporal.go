// Package temporal resolves Russian relative date and time expressions into
// concrete values. Resolution happens in code, never in the generation
// model: the model hands over the raw phrase ("завтра в 19:00") and this
// package turns it into a timezone-aware result deterministically.
package temporal

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Confidence grades how literal the parsed value is. Approximate words like
// "вечером" resolve to a default hour with low confidence.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ErrUnrecognized is returned when neither a date nor a time could be found.
var ErrUnrecognized = errors.New("не удалось распознать дату или время")

// PastDateError rejects an absolute date that already passed.
type PastDateError struct {
	Date time.Time
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("прошедшая дата: %s", e.Date.Format("02.01.2006"))
}

// InvalidDayError rejects a day-of-month that does not exist.
type InvalidDayError struct {
	Day int
}

func (e *InvalidDayError) Error() string {
	return fmt.Sprintf("неверная дата: %d число", e.Day)
}

// Result is a parsed date/time. Date carries only the calendar day (midnight
// in the parser's timezone); Time is "HH:MM" or empty when only a date was
// found.
type Result struct {
	Date       time.Time
	HasDate    bool
	Time       string
	Confidence Confidence
	RawInput   string
}

// DateTime combines the parsed day and clock time into one timezone-aware
// instant. Returns false when either half is missing.
func (r Result) DateTime(loc *time.Location) (time.Time, bool) {
	if !r.HasDate || r.Time == "" {
		return time.Time{}, false
	}
	parts := strings.SplitN(r.Time, ":", 2)
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])
	return time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), hour, minute, 0, 0, loc), true
}

// Parser resolves expressions relative to a configured timezone.
type Parser struct {
	loc *time.Location
}

// NewParser loads the timezone the studio operates in.
func NewParser(timezone string) (*Parser, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Parser{loc: loc}, nil
}

// Location returns the parser's timezone.
func (p *Parser) Location() *time.Location { return p.loc }

// Weekday names in the forms users actually type, mapped to Monday-based
// indexes. Accusative forms appear after "в"/"на", nominative on their own.
var weekdays = map[string]int{
	"понедельник": 0,
	"вторник":     1,
	"среда":       2,
	"среду":       2,
	"четверг":     3,
	"пятница":     4,
	"пятницу":     4,
	"суббота":     5,
	"субботу":     5,
	"воскресенье": 6,
}

// Go's \b is ASCII-only, so Cyrillic words are bounded explicitly.
var (
	reWeekday   = regexp.MustCompile(`(?:^|[^а-яё])(понедельник|вторник|среду|среда|четверг|пятницу|пятница|субботу|суббота|воскресенье)(?:[^а-яё]|$)`)
	reDayNumber = regexp.MustCompile(`(?:^|\s)(?:на\s+)?(\d{1,2})\s*(?:-е|-го|ого|числа)(?:\W|$)`)
	reDateDots  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	reDateSlash = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	reDateISO   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reTimeColon = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	reTimeDot   = regexp.MustCompile(`\b(\d{1,2})\.(\d{2})\b`)
	reTimeHours = regexp.MustCompile(`\b(\d{1,2})\s*ч(?:асов|аса|ас)?\.?(?:\s*(\d{1,2})\s*мин(?:ут[ыу]?)?\.?)?(?:[^а-яё]|$)`)
	reTimeAmPm  = regexp.MustCompile(`\b(\d{1,2})\s*(вечера|утра|дня)`)
)

// Parse resolves text relative to now. The reference time is converted into
// the parser's timezone first so "завтра" means tomorrow where the studio
// is, not where the server runs.
func (p *Parser) Parse(text string, now time.Time) (Result, error) {
	now = now.In(p.loc)
	lower := strings.ToLower(strings.TrimSpace(text))

	res, dateErr := p.parseDate(lower, now)
	if dateErr != nil {
		res.RawInput = text
		return res, dateErr
	}
	if res.HasDate {
		timeStr, timeConf := parseTime(lower)
		res.Time = timeStr
		if timeConf == ConfidenceLow && res.Confidence == ConfidenceHigh {
			res.Confidence = ConfidenceMedium
		}
		res.RawInput = text
		return res, nil
	}

	// Time-only input: the date defaults to today.
	if timeStr, timeConf := parseTime(lower); timeStr != "" {
		conf := timeConf
		if conf == ConfidenceLow {
			conf = ConfidenceMedium
		}
		return Result{
			Date:       midnight(now),
			HasDate:    true,
			Time:       timeStr,
			Confidence: conf,
			RawInput:   text,
		}, nil
	}

	return Result{RawInput: text, Confidence: ConfidenceLow}, ErrUnrecognized
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (p *Parser) parseDate(text string, now time.Time) (Result, error) {
	today := midnight(now)

	// "послезавтра" contains "завтра", so it is checked first.
	switch {
	case strings.Contains(text, "послезавтра"):
		return Result{Date: today.AddDate(0, 0, 2), HasDate: true, Confidence: ConfidenceHigh}, nil
	case strings.Contains(text, "завтра"):
		return Result{Date: today.AddDate(0, 0, 1), HasDate: true, Confidence: ConfidenceHigh}, nil
	case strings.Contains(text, "сегодня"):
		return Result{Date: today, HasDate: true, Confidence: ConfidenceHigh}, nil
	}

	if m := reWeekday.FindStringSubmatch(text); m != nil {
		target := weekdays[m[1]]
		// Monday-based index of today.
		current := (int(now.Weekday()) + 6) % 7
		ahead := target - current
		if ahead <= 0 {
			ahead += 7
		}
		return Result{Date: today.AddDate(0, 0, ahead), HasDate: true, Confidence: ConfidenceHigh}, nil
	}

	if m := reDayNumber.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		if day >= 1 && day <= 31 {
			target := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, p.loc)
			if target.Day() != day {
				// Normalization moved the date: the day does not exist
				// in this month.
				return Result{}, &InvalidDayError{Day: day}
			}
			if target.Before(today) {
				target = time.Date(now.Year(), now.Month()+1, day, 0, 0, 0, 0, p.loc)
				if target.Day() != day {
					return Result{}, &InvalidDayError{Day: day}
				}
			}
			return Result{Date: target, HasDate: true, Confidence: ConfidenceHigh}, nil
		}
	}

	for _, pattern := range []struct {
		re      *regexp.Regexp
		yearIdx int
	}{
		{reDateDots, 3},
		{reDateSlash, 3},
		{reDateISO, 1},
	} {
		m := pattern.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var day, month, year int
		if pattern.yearIdx == 1 {
			year, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			day, _ = strconv.Atoi(m[3])
		} else {
			day, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			year, _ = strconv.Atoi(m[3])
		}
		target := time.Date(year, time.Month(month), day, 0, 0, 0, 0, p.loc)
		if target.Day() != day || target.Month() != time.Month(month) {
			continue
		}
		if target.Before(today) {
			return Result{}, &PastDateError{Date: target}
		}
		return Result{Date: target, HasDate: true, Confidence: ConfidenceHigh}, nil
	}

	return Result{Confidence: ConfidenceLow}, nil
}

func parseTime(text string) (string, Confidence) {
	for _, re := range []*regexp.Regexp{reTimeColon, reTimeDot, reTimeHours} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour > 23 {
			continue
		}
		minute := 0
		if len(m) > 2 && m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				continue
			}
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), ConfidenceHigh
	}

	if m := reTimeAmPm.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			switch m[2] {
			case "утра":
				if hour == 12 {
					hour = 0
				}
			case "вечера":
				if hour == 12 {
					hour = 0
				} else {
					hour += 12
				}
			case "дня":
				if hour < 12 {
					hour += 12
				}
			}
			return fmt.Sprintf("%02d:00", hour), ConfidenceHigh
		}
	}

	switch {
	case strings.Contains(text, "вечером"):
		return "19:00", ConfidenceLow
	case strings.Contains(text, "утром"):
		return "10:00", ConfidenceLow
	case strings.Contains(text, "днём") || strings.Contains(text, "днем"):
		return "14:00", ConfidenceLow
	}

	return "", ConfidenceLow
}
