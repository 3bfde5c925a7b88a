package taskstore

import (
	"testing"
	"time"
)

func TestTask_View(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		status  Status
		expires time.Time
		want    Status
	}{
		{"pending within ttl", StatusPending, now.Add(time.Hour), StatusPending},
		{"succeeded within ttl", StatusSucceeded, now.Add(time.Minute), StatusSucceeded},
		{"succeeded past ttl", StatusSucceeded, now.Add(-time.Second), StatusExpired},
		{"running past ttl", StatusRunning, now.Add(-time.Hour), StatusExpired},
		{"no expiry", StatusRunning, time.Time{}, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Status: tt.status, ExpiresAt: tt.expires}
			if got := task.View(now).Status; got != tt.want {
				t.Errorf("View().Status = %v, want %v", got, tt.want)
			}
			if task.Status != tt.status {
				t.Error("View mutated the task")
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}
