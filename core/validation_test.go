package core

import (
	"errors"
	"testing"
)

func TestValidateRawMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     *RawMessage
		wantErr error
	}{
		{
			name:    "valid message",
			msg:     &RawMessage{Folder: "INBOX", UID: 1, Subject: "hello"},
			wantErr: nil,
		},
		{
			name:    "body only",
			msg:     &RawMessage{Folder: "INBOX", UID: 1, Body: "text"},
			wantErr: nil,
		},
		{
			name:    "html only",
			msg:     &RawMessage{Folder: "INBOX", UID: 1, HTMLBody: "<p>text</p>"},
			wantErr: nil,
		},
		{
			name:    "nil message",
			msg:     nil,
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "empty folder",
			msg:     &RawMessage{UID: 1, Subject: "hello"},
			wantErr: ErrEmptyFolder,
		},
		{
			name:    "zero uid",
			msg:     &RawMessage{Folder: "INBOX", Subject: "hello"},
			wantErr: ErrZeroUID,
		},
		{
			name:    "blank content",
			msg:     &RawMessage{Folder: "INBOX", UID: 1, Subject: "  ", Body: "\n"},
			wantErr: ErrEmptyMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRawMessage(tt.msg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRawMessage() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRawMessage() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrContractViolation) {
				t.Errorf("ValidateRawMessage() error = %v should be a contract violation", err)
			}
		})
	}
}

func TestValidateProcessedRecord(t *testing.T) {
	valid := EmailRecord{Summary: "s", Category: CategoryWork, Importance: ImportanceHigh}
	if err := ValidateProcessedRecord(&valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *EmailRecord)
	}{
		{"empty summary", func(r *EmailRecord) { r.Summary = " " }},
		{"missing category", func(r *EmailRecord) { r.Category = "" }},
		{"unknown category", func(r *EmailRecord) { r.Category = "spam" }},
		{"missing importance", func(r *EmailRecord) { r.Importance = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := ValidateProcessedRecord(&r); !errors.Is(err, ErrIncompleteRecord) {
				t.Errorf("error = %v, want ErrIncompleteRecord", err)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"work":          CategoryWork,
		" Education ":   CategoryEducation,
		"ADVERTISEMENT": CategoryAdvertisement,
		"newsletter":    CategoryOther,
		"":              CategoryOther,
	}
	for in, want := range tests {
		if got := ParseCategory(in); got != want {
			t.Errorf("ParseCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseImportance(t *testing.T) {
	tests := []struct {
		in      string
		want    Importance
		wantErr bool
	}{
		{in: "high", want: ImportanceHigh},
		{in: "Medium", want: ImportanceMedium},
		{in: "low", want: ImportanceLow},
		{in: "medium or high", want: ImportanceHigh},
		{in: "low/medium", want: ImportanceMedium},
		{in: "highly unusual", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseImportance(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImportance) {
					t.Errorf("ParseImportance(%q) error = %v, want ErrInvalidImportance", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseImportance(%q) unexpected error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseImportance(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
