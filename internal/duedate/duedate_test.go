package duedate

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty clears", input: "", want: ""},
		{name: "none clears", input: "None", want: ""},
		{name: "literal date", input: "2026-05-01", want: "2026-05-01"},
		{name: "today", input: "today", want: "2026-04-15"},
		{name: "tomorrow", input: "tomorrow", want: "2026-04-16"},
		{name: "gibberish", input: "whenever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
