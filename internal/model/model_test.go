package model

import (
	"fmt"
	"testing"
	"time"
)

func TestParseTaskStatus(t *testing.T) {
	for _, s := range []string{"pending", "completed"} {
		got, err := ParseTaskStatus(s)
		if err != nil || string(got) != s {
			t.Errorf("ParseTaskStatus(%q) = %q, %v", s, got, err)
		}
	}
	for _, s := range []string{"", "done", "Pending"} {
		if _, err := ParseTaskStatus(s); !HasCode(err, ErrCodeValidation) {
			t.Errorf("ParseTaskStatus(%q) error = %v, want validation error", s, err)
		}
	}
}

func TestParseTaskPriority(t *testing.T) {
	tests := []struct {
		in   string
		want TaskPriority
	}{
		{"", TaskPriorityMedium},
		{"low", TaskPriorityLow},
		{"medium", TaskPriorityMedium},
		{"high", TaskPriorityHigh},
	}
	for _, tt := range tests {
		got, err := ParseTaskPriority(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseTaskPriority(%q) = %q, %v", tt.in, got, err)
		}
	}
	if _, err := ParseTaskPriority("urgent"); !HasCode(err, ErrCodeValidation) {
		t.Errorf("ParseTaskPriority(urgent) error = %v", err)
	}
}

func TestTaskStatus_Toggled(t *testing.T) {
	if got := TaskStatusPending.Toggled(); got != TaskStatusCompleted {
		t.Errorf("pending.Toggled() = %q", got)
	}
	if got := TaskStatusCompleted.Toggled(); got != TaskStatusPending {
		t.Errorf("completed.Toggled() = %q", got)
	}
}

func TestSession_IsExpired(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: expiresAt}

	if s.IsExpired(expiresAt.Add(-time.Nanosecond)) {
		t.Error("session should be valid before ExpiresAt")
	}
	if !s.IsExpired(expiresAt) {
		t.Error("session should be expired exactly at ExpiresAt")
	}
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", NewTaskForbiddenError("t1"))

	if !HasCode(wrapped, ErrCodeTaskForbidden) {
		t.Error("HasCode should see through wrapping")
	}
	if HasCode(wrapped, ErrCodeTaskNotFound) {
		t.Error("forbidden must not match not found")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeInternal) {
		t.Error("plain errors have no code")
	}
}
