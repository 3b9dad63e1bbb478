package timeparsing

import (
	"testing"
	"time"
)

func TestParseDicomDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty stays open", input: "", want: ""},
		{name: "iso date", input: "2024-03-01", want: "20240301"},
		{name: "dicom date", input: "20240301", want: "20240301"},
		{name: "-1d", input: "-1d", want: "20250614"},
		{name: "-2w", input: "-2w", want: "20250601"},
		{name: "-6m", input: "-6m", want: "20241215"},
		{name: "-1y", input: "-1y", want: "20240615"},
		{name: "unsigned counts forward", input: "1d", want: "20250616"},
		{name: "natural language", input: "3 days ago", want: "20250612"},
		{name: "garbage", input: "not-a-date", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDicomDate(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDicomDate(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDicomDate(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDicomDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
