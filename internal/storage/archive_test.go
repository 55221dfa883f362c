package storage

import (
	"testing"
	"time"
)

func TestParseEventDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
		want time.Time
	}{
		{"rfc3339", "2025-03-15T09:30:00Z", true, time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)},
		{"milliseconds", "2025-03-15T09:30:00.500Z", true, time.Date(2025, 3, 15, 9, 30, 0, 500e6, time.UTC)},
		{"no zone suffix", "2025-03-15T09:30:00", true, time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)},
		{"empty", "", false, time.Time{}},
		{"garbage", "yesterday-ish", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseEventDate(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("parsed %v, want %v", got, tt.want)
			}
		})
	}
}
