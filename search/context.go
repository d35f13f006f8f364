package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/mailsift/core"
)

// DefaultMaxContextChars bounds the context handed to the answering model, in runes.
const DefaultMaxContextChars = 4000

// FormatRecord renders one record as a context block.
func FormatRecord(n int, record *core.EmailRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] Subject: %s\n", n, record.Subject)
	fmt.Fprintf(&b, "From: %s\n", record.Sender)
	if !record.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", record.ReceivedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Category: %s, Importance: %s\n", record.Category, record.Importance)
	fmt.Fprintf(&b, "Summary: %s\n", record.Summary)
	return b.String()
}

// BuildContext concatenates result blocks in rank order until the next
// block would exceed maxChars runes, and returns the context together with
// the results it includes. A first block that alone exceeds the budget is
// cut to fit. maxChars <= 0 disables the bound.
func BuildContext(results []*core.SearchResult, maxChars int) (string, []*core.SearchResult) {
	var b strings.Builder
	used := 0
	for i, result := range results {
		block := FormatRecord(i+1, result.Record)
		if i > 0 {
			block = "\n" + block
		}
		size := utf8.RuneCountInString(block)
		if maxChars > 0 && used+size > maxChars {
			if i == 0 {
				b.WriteString(string([]rune(block)[:maxChars]))
				return b.String(), results[:1]
			}
			return b.String(), results[:i]
		}
		b.WriteString(block)
		used += size
	}
	return b.String(), results
}
