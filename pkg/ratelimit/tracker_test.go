package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		limit         string
		remaining     string
		wantLimit     int
		wantRemaining int
		wantKnown     bool
		wantErr       bool
	}{
		{
			name:          "healthy quota",
			limit:         "50",
			remaining:     "48",
			wantLimit:     50,
			wantRemaining: 48,
			wantKnown:     true,
		},
		{
			name:          "remaining without limit",
			remaining:     "3",
			wantRemaining: 3,
			wantKnown:     true,
		},
		{
			name:      "headers absent",
			wantKnown: false,
		},
		{
			name:      "invalid remaining",
			remaining: "many",
			wantErr:   true,
		},
		{
			name:      "invalid limit",
			limit:     "lots",
			remaining: "5",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(time.Hour, zerolog.Nop())

			headers := http.Header{}
			if tt.limit != "" {
				headers.Set(HeaderLimit, tt.limit)
			}
			if tt.remaining != "" {
				headers.Set(HeaderRemaining, tt.remaining)
			}

			err := tracker.UpdateFromHeaders(headers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateFromHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if tracker.State().Known() {
					t.Error("state should stay unknown after a parse error")
				}
				return
			}

			state := tracker.State()
			if state.Known() != tt.wantKnown {
				t.Errorf("Known() = %v, want %v", state.Known(), tt.wantKnown)
			}
			if state.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", state.Limit, tt.wantLimit)
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name      string
		remaining string
		want      bool
	}{
		{name: "no state yet", remaining: "", want: true},
		{name: "plenty left", remaining: "40", want: true},
		{name: "low but not exhausted", remaining: "2", want: true},
		{name: "exhausted", remaining: "0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(time.Hour, zerolog.Nop())
			if tt.remaining != "" {
				headers := http.Header{}
				headers.Set(HeaderRemaining, tt.remaining)
				if err := tracker.UpdateFromHeaders(headers); err != nil {
					t.Fatalf("UpdateFromHeaders() error = %v", err)
				}
			}

			if got := tracker.ShouldAllowRequest(); got != tt.want {
				t.Errorf("ShouldAllowRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_ExhaustionExpires(t *testing.T) {
	tracker := NewTracker(20*time.Millisecond, zerolog.Nop())

	headers := http.Header{}
	headers.Set(HeaderRemaining, "0")
	if err := tracker.UpdateFromHeaders(headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if tracker.ShouldAllowRequest() {
		t.Fatal("expected request to be blocked right after exhaustion")
	}

	time.Sleep(40 * time.Millisecond)
	if !tracker.ShouldAllowRequest() {
		t.Error("expected request to be allowed after the reset window")
	}
}
