package cli

import (
	"testing"
	"time"
)

func TestEnvExports(t *testing.T) {
	tests := []struct {
		name    string
		display string
		want    []string
	}{
		{
			name:    "daemon running",
			display: "wayland-1",
			want: []string{
				`export WAYLAND_DISPLAY="wayland-1"`,
				"export WAYSOCK_RUNNING=1",
			},
		},
		{
			name:    "daemon not running",
			display: "",
			want:    []string{"export WAYSOCK_RUNNING=0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := envExports(tt.display)
			if len(got) != len(tt.want) {
				t.Fatalf("envExports(%q): got %d lines, want %d", tt.display, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseTimeArg(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		before := time.Now().Add(-time.Hour)
		got, err := parseTimeArg("1h")
		if err != nil {
			t.Fatalf("parseTimeArg(1h): %v", err)
		}
		if got.Before(before.Add(-time.Minute)) || got.After(time.Now()) {
			t.Errorf("parseTimeArg(1h) = %v, want roughly %v", got, before)
		}
	})

	t.Run("date", func(t *testing.T) {
		got, err := parseTimeArg("2025-01-15")
		if err != nil {
			t.Fatalf("parseTimeArg(2025-01-15): %v", err)
		}
		want := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := parseTimeArg("not-a-time"); err == nil {
			t.Error("expected error for invalid input")
		}
	})
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0b89537c-9e52-4f09-8e56-a9790f5a0c11", "0b89537c"},
		{"short", "short"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := shortID(tt.in); got != tt.want {
			t.Errorf("shortID(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
