package parser

import (
	"testing"
	"time"
)

func TestParseActivity(t *testing.T) {
	tests := []struct {
		input string
		want  ParsedActivity
	}{
		{
			input: "fix login redirect @apollo #review +high app-123",
			want:  ParsedActivity{Activity: "fix login redirect", Project: "apollo", Category: "review", Priority: "high", TaskRef: "APP-123"},
		},
		{
			input: "write docs",
			want:  ParsedActivity{Activity: "write docs"},
		},
		{
			input: "+2   standup   @ops",
			want:  ParsedActivity{Activity: "standup", Project: "ops", Priority: "medium"},
		},
		{
			input: "#Meeting weekly sync",
			want:  ParsedActivity{Activity: "weekly sync", Category: "meeting"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseActivity(tt.input)
			if len(got.Errors) != 0 {
				t.Fatalf("unexpected errors %v", got.Errors)
			}
			if got.Activity != tt.want.Activity || got.Project != tt.want.Project ||
				got.Category != tt.want.Category || got.Priority != tt.want.Priority ||
				got.TaskRef != tt.want.TaskRef {
				t.Fatalf("ParseActivity(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseActivityBadPriority(t *testing.T) {
	got := ParseActivity("deploy +urgent")
	if len(got.Errors) != 1 {
		t.Fatalf("expected one error, got %v", got.Errors)
	}
	if got.Priority != "" || got.Activity != "deploy" {
		t.Fatalf("got %+v", got)
	}
}

func TestNormalizeTaskRef(t *testing.T) {
	if got, err := NormalizeTaskRef(" proj-42 "); err != nil || got != "PROJ-42" {
		t.Fatalf("got %q, %v", got, err)
	}
	if got, err := NormalizeTaskRef(""); err != nil || got != "" {
		t.Fatalf("empty: got %q, %v", got, err)
	}
	if _, err := NormalizeTaskRef("42-PROJ"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNormalizePriority(t *testing.T) {
	for in, want := range map[string]string{"1": "low", "LOW": "low", "med": "medium", "2": "medium", "3": "high", "": "medium"} {
		if got := NormalizePriority(in); got != want {
			t.Errorf("NormalizePriority(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 12, 15, 4, 0, 0, loc)
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "2025-03-01", want: time.Date(2025, 3, 1, 0, 0, 0, 0, loc)},
		{input: "01/03/2025", want: time.Date(2025, 3, 1, 0, 0, 0, 0, loc)},
		{input: "today", want: time.Date(2025, 3, 12, 0, 0, 0, 0, loc)},
		{input: "Yesterday", want: time.Date(2025, 3, 11, 0, 0, 0, 0, loc)},
		{input: "3 days ago", want: time.Date(2025, 3, 9, 0, 0, 0, 0, loc)},
		{input: "2 weeks ago", want: time.Date(2025, 2, 26, 0, 0, 0, 0, loc)},
		{input: "31/02/2025", wantErr: true},
		{input: "2025/03/01", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input, now, loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)
	if got := WeekStart(sunday); !got.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("WeekStart(sunday) = %v", got)
	}
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(monday); !got.Equal(monday) {
		t.Fatalf("WeekStart(monday) = %v", got)
	}
}

func TestFormatMinutes(t *testing.T) {
	for in, want := range map[int]string{0: "0m", 45: "45m", 60: "1h", 90: "1h 30m"} {
		if got := FormatMinutes(in); got != want {
			t.Errorf("FormatMinutes(%d) = %q, want %q", in, got, want)
		}
	}
}
