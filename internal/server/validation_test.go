package server

import (
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantCode string
	}{
		{name: "https url", url: "https://cdn.example.com/a.mp3"},
		{name: "http url", url: "http://localhost:9000/music-files/a.mp3"},
		{name: "empty", url: "", wantCode: "MISSING_URL"},
		{name: "ftp scheme", url: "ftp://example.com/a.mp3", wantCode: "INVALID_URL_PROTOCOL"},
		{name: "no scheme", url: "example.com/a.mp3", wantCode: "INVALID_URL_PROTOCOL"},
		{name: "unparseable", url: "http://[::1", wantCode: "INVALID_URL_FORMAT"},
		{name: "too long", url: "https://example.com/" + strings.Repeat("a", maxURLLength), wantCode: "URL_TOO_LONG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateURL("fileUrl", tt.url)
			if tt.wantCode == "" {
				if got != nil {
					t.Errorf("validateURL(%q) = %+v, want nil", tt.url, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("validateURL(%q) = nil, want %s", tt.url, tt.wantCode)
			}
			if got.Code != tt.wantCode {
				t.Errorf("validateURL(%q).Code = %s, want %s", tt.url, got.Code, tt.wantCode)
			}
			if got.Field != "fileUrl" {
				t.Errorf("Field = %s, want fileUrl", got.Field)
			}
		})
	}
}

func TestValidateAlbumTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		wantCode string
	}{
		{name: "valid", title: "Summer Tapes"},
		{name: "unicode", title: "Été / Hiver"},
		{name: "empty", title: "", wantCode: "MISSING_TITLE"},
		{name: "newline", title: "Line\nBreak", wantCode: "INVALID_TITLE_CHARACTERS"},
		{name: "too long", title: strings.Repeat("x", maxTitleLength+1), wantCode: "TITLE_TOO_LONG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateAlbumTitle(tt.title)
			switch {
			case tt.wantCode == "" && got != nil:
				t.Errorf("unexpected error %+v", got)
			case tt.wantCode != "" && got == nil:
				t.Errorf("expected %s, got nil", tt.wantCode)
			case tt.wantCode != "" && got.Code != tt.wantCode:
				t.Errorf("Code = %s, want %s", got.Code, tt.wantCode)
			}
		})
	}
}

func TestValidateDescription(t *testing.T) {
	if err := validateDescription(""); err != nil {
		t.Errorf("empty description rejected: %+v", err)
	}
	if err := validateDescription(strings.Repeat("d", maxDescriptionLength)); err != nil {
		t.Errorf("description at limit rejected: %+v", err)
	}
	if err := validateDescription(strings.Repeat("d", maxDescriptionLength+1)); err == nil {
		t.Error("over-long description accepted")
	}
}

func TestParseAvailableFrom(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantNil bool
		wantErr bool
	}{
		{name: "empty", value: "", wantNil: true},
		{name: "date", value: "2025-03-01", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339 offset", value: "2025-03-01T10:00:00+02:00", want: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
		{name: "garbage", value: "next tuesday", wantErr: true},
		{name: "us format", value: "03/01/2025", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verr := parseAvailableFrom(tt.value)
			if tt.wantErr {
				if verr == nil {
					t.Fatalf("expected error for %q", tt.value)
				}
				if verr.Code != "INVALID_RELEASE_DATE" {
					t.Errorf("Code = %s", verr.Code)
				}
				return
			}
			if verr != nil {
				t.Fatalf("unexpected error %+v", verr)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("got %v, want nil", got)
				}
				return
			}
			if got == nil || !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("got %v, want %v UTC", got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Intro  ", "Intro"},
		{"A\x00B", "AB"},
		{"\t\n", ""},
		{"Plain", "Plain"},
	}

	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
