package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/mailsift/core"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeClassification(t *testing.T) {
	tests := []struct {
		category, importance string
		wantCategory         core.Category
		wantImportance       core.Importance
	}{
		{"work", "high", core.CategoryWork, core.ImportanceHigh},
		{" Education ", "LOW", core.CategoryEducation, core.ImportanceLow},
		{"finance", "medium", core.CategoryOther, core.ImportanceMedium},
		{"personal", "urgent", core.CategoryPersonal, core.ImportanceMedium},
		{"work", "high or medium", core.CategoryWork, core.ImportanceHigh},
	}
	for _, tt := range tests {
		got := NormalizeClassification(tt.category, tt.importance)
		assert.Equal(t, tt.wantCategory, got.Category, "category %q", tt.category)
		assert.Equal(t, tt.wantImportance, got.Importance, "importance %q", tt.importance)
	}
}

func TestNames(t *testing.T) {
	assert.Len(t, CategoryNames(), 7)
	assert.Equal(t, []string{"high", "medium", "low"}, ImportanceNames())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", core.ErrContractViolation)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(errors.New("502 bad gateway")))
}
