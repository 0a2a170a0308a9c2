package model

import (
	"testing"
)

func TestStatusIsTerminal(t *testing.T) {
	cases := []struct {
		Status   DownloadStatus
		Terminal bool
	}{
		{StatusPending, false},
		{StatusInFlight, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusSkipped, true},
	}

	for _, c := range cases {
		if got := c.Status.IsTerminal(); got != c.Terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", c.Status, got, c.Terminal)
		}
	}
}

func TestSummaryIncomplete(t *testing.T) {
	s := RunSummary{Total: 5, Completed: 5}
	if s.Incomplete() {
		t.Error("all-completed summary should not be incomplete")
	}

	s = RunSummary{Total: 5, Completed: 4, Failed: 1}
	if !s.Incomplete() {
		t.Error("summary with a failure should be incomplete")
	}

	s = RunSummary{Total: 5, Completed: 3, Pending: 2}
	if !s.Incomplete() {
		t.Error("interrupted summary should be incomplete")
	}
}
