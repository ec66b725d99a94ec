package model

import (
	"testing"
	"time"
)

// Wednesday
var refNow = time.Date(2025, 8, 27, 15, 0, 0, 0, time.UTC)

func TestParseDue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"today", "2025-08-27"},
		{"Tomorrow", "2025-08-28"},
		{"fri", "2025-08-29"},
		{"wednesday", "2025-09-03"},
		{"nextweek", "2025-09-03"},
		{"+5d", "2025-09-01"},
		{"2025-09-01", "2025-09-01"},
		{"09/01/2025", "2025-09-01"},
		{"Sep 1", "2025-09-01"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ParseDue(tt.in, refNow)
		if err != nil {
			t.Errorf("ParseDue(%q): %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseDue(%q) = %q, want %q", tt.in, got.String(), tt.want)
		}
	}

	if _, err := ParseDue("someday", refNow); err == nil {
		t.Error("expected an error for an unknown word")
	}
}

func TestFormatDue(t *testing.T) {
	tests := map[string]Date{
		"today":       NewDate(2025, 8, 27),
		"tomorrow":    NewDate(2025, 8, 28),
		"yesterday":   NewDate(2025, 8, 26),
		"Mon, Sep 1":  NewDate(2025, 9, 1),
		"Jan 5, 2026": NewDate(2026, 1, 5),
	}
	for want, d := range tests {
		if got := FormatDue(d, refNow); got != want {
			t.Errorf("FormatDue(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestQuickAdd(t *testing.T) {
	draft, err := QuickAdd("Write tests due:2025-09-01 -- cover the board", refNow)
	if err != nil {
		t.Fatalf("QuickAdd: %v", err)
	}
	if draft.Title != "Write tests" || draft.Description != "cover the board" || draft.DueDate.String() != "2025-09-01" {
		t.Errorf("draft = %+v", draft)
	}

	if _, err := QuickAdd("x due:someday", refNow); !IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
