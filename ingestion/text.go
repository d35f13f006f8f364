package ingestion

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/poiesic/mailsift/core"
)

// DefaultMaxInputChars bounds the text sent to the summarizer, in runes.
const DefaultMaxInputChars = 4000

// TruncationMarker joins the head and tail of truncated text.
const TruncationMarker = "\n[...]\n"

// PrepareText renders the summarizer input for a message: the subject
// followed by the body. HTML is converted to text when there is no plain
// body. The result is truncated to maxChars runes.
func PrepareText(raw *core.RawMessage, maxChars int) string {
	body := raw.Body
	if strings.TrimSpace(body) == "" && raw.HTMLBody != "" {
		body = HTMLToText(raw.HTMLBody)
	}
	body = cleanText(body)

	var b strings.Builder
	if subject := strings.TrimSpace(raw.Subject); subject != "" {
		b.WriteString("Subject: ")
		b.WriteString(subject)
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	return Truncate(strings.TrimSpace(b.String()), maxChars)
}

// Truncate shortens text to at most maxChars runes, keeping the first two
// thirds of the budget from the head and the last third from the tail,
// joined by TruncationMarker. maxChars <= 0 disables truncation.
func Truncate(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	marker := []rune(TruncationMarker)
	budget := maxChars - len(marker)
	if budget <= 0 {
		return string(runes[:maxChars])
	}
	head := budget * 2 / 3
	tail := budget - head
	return string(runes[:head]) + TruncationMarker + string(runes[len(runes)-tail:])
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true, "hr": true,
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "head": true, "title": true, "noscript": true,
}

// HTMLToText extracts readable text from an HTML body. Script and style
// content is dropped and block elements start new lines.
func HTMLToText(body string) string {
	return cleanText(htmlText(body))
}

func htmlText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	skip := 0
	reparse := false
	for {
		tt := z.Next()
		// The tokenizer reads everything after a self-closing <script/>
		// up to the next </script> as raw text, markup included.
		raw := reparse
		reparse = false
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if raw {
				b.WriteString(htmlText(string(z.Text())))
			} else if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] {
				if tt == html.StartTagToken {
					skip++
				} else if skip == 0 && tag != "head" {
					reparse = true
				}
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] && skip > 0 {
				skip--
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		}
	}
}

// cleanText collapses runs of whitespace within lines and drops blank lines.
func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
