package core

import (
	"fmt"
	"slices"
	"strings"
)

// ValidateRawMessage validates a RawMessage before it enters the pipeline.
//
// Validation rules:
//   - Folder must not be empty
//   - UID must not be zero
//   - At least one of Subject, Body or HTMLBody must be non-blank
//
// Failures wrap both ErrInvalidMessage and ErrContractViolation.
func ValidateRawMessage(msg *RawMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: %w: message is nil", ErrContractViolation, ErrInvalidMessage)
	}
	if msg.Folder == "" {
		return fmt.Errorf("%w: %w: %w", ErrContractViolation, ErrInvalidMessage, ErrEmptyFolder)
	}
	if msg.UID == 0 {
		return fmt.Errorf("%w: %w: %w", ErrContractViolation, ErrInvalidMessage, ErrZeroUID)
	}
	if strings.TrimSpace(msg.Subject) == "" &&
		strings.TrimSpace(msg.Body) == "" &&
		strings.TrimSpace(msg.HTMLBody) == "" {
		return fmt.Errorf("%w: %w: %w", ErrContractViolation, ErrInvalidMessage, ErrEmptyMessage)
	}
	return nil
}

// ValidateProcessedRecord checks the invariant that a processed record
// carries a summary, a category and an importance.
func ValidateProcessedRecord(record *EmailRecord) error {
	if strings.TrimSpace(record.Summary) == "" {
		return fmt.Errorf("%w: empty summary", ErrIncompleteRecord)
	}
	if err := ValidateCategory(record.Category); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompleteRecord, err)
	}
	if err := ValidateImportance(record.Importance); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompleteRecord, err)
	}
	return nil
}

// ValidateCategory validates that a Category has a valid value.
func ValidateCategory(c Category) error {
	if !slices.Contains(Categories, c) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return nil
}

// ValidateImportance validates that an Importance has a valid value.
func ValidateImportance(i Importance) error {
	if i.Rank() == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidImportance, i)
	}
	return nil
}

// ParseCategory maps free text onto a Category. Matching is case-insensitive;
// unknown values map to CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Categories, c) {
		return c
	}
	return CategoryOther
}

// ParseImportance maps free text onto an Importance. When the text names
// more than one level ("high or medium", "medium/high") the highest level
// wins. Text naming no level returns ErrInvalidImportance.
func ParseImportance(s string) (Importance, error) {
	text := strings.ToLower(s)
	for _, level := range Importances {
		if containsWord(text, string(level)) {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidImportance, s)
}

func containsWord(text, word string) bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	return slices.Contains(fields, word)
}
