package model

import (
	"fmt"
	"strings"
	"time"
)

// ParseDue parses a due date typed by a person: today, tomorrow, a weekday name,
// nextweek, +Nd, or an explicit date. Weekdays always mean the next such day.
func ParseDue(s string, now time.Time) (Date, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	today := Today(now)

	switch s {
	case "":
		return Date{}, nil
	case "today":
		return today, nil
	case "tomorrow", "tom":
		return today.AddDays(1), nil
	case "nextweek":
		return today.AddDays(7), nil
	}

	if day, ok := weekdays[s]; ok {
		return nextWeekday(today, day), nil
	}

	if strings.HasPrefix(s, "+") && strings.HasSuffix(s, "d") {
		var n int
		if _, err := fmt.Sscanf(s, "+%dd", &n); err == nil && n >= 0 {
			return today.AddDays(n), nil
		}
	}

	if d, err := ParseDate(s); err == nil {
		return d, nil
	}

	formats := []string{
		"01/02/2006",
		"01-02-2006",
		"Jan 2, 2006",
		"Jan 2",
	}
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err != nil {
			continue
		}
		// If no year, use the current one
		if t.Year() == 0 {
			return NewDate(now.Year(), t.Month(), t.Day()), nil
		}
		return NewDate(t.Year(), t.Month(), t.Day()), nil
	}

	return Date{}, fmt.Errorf("unrecognised due date %q (try today, friday, +3d or %s)", s, DateLayout)
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

func nextWeekday(today Date, day time.Weekday) Date {
	daysUntil := int(day - today.Time().Weekday())
	if daysUntil <= 0 {
		daysUntil += 7
	}
	return today.AddDays(daysUntil)
}

// FormatDue renders a due date relative to now
func FormatDue(d Date, now time.Time) string {
	if d.IsZero() {
		return ""
	}
	today := Today(now)
	switch {
	case d.Equal(today):
		return "today"
	case d.Equal(today.AddDays(1)):
		return "tomorrow"
	case d.Equal(today.AddDays(-1)):
		return "yesterday"
	case d.Time().Year() == now.Year():
		return d.Time().Format("Mon, Jan 2")
	default:
		return d.Time().Format("Jan 2, 2006")
	}
}

// QuickAdd parses one line of text into a draft. "due:<date>" sets the due
// date and everything after " -- " becomes the description, e.g.
// "Write tests due:friday -- cover the board".
func QuickAdd(text string, now time.Time) (TaskDraft, error) {
	var draft TaskDraft
	if i := strings.Index(text, " -- "); i >= 0 {
		draft.Description = strings.TrimSpace(text[i+4:])
		text = text[:i]
	}

	var titleParts []string
	for _, word := range strings.Fields(text) {
		lower := strings.ToLower(word)
		if !strings.HasPrefix(lower, "due:") {
			titleParts = append(titleParts, word)
			continue
		}
		due, err := ParseDue(strings.TrimPrefix(lower, "due:"), now)
		if err != nil {
			return TaskDraft{}, &ValidationError{Field: "dueDate", Message: err.Error()}
		}
		draft.DueDate = due
	}

	draft.Title = strings.Join(titleParts, " ")
	return draft, nil
}
