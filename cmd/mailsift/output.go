package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/ingestion"
	"github.com/poiesic/mailsift/notify"
)

func printRecord(w io.Writer, r *core.EmailRecord, raw *core.RawMessage) {
	fmt.Fprintf(w, "ID:         %s\n", r.Id)
	fmt.Fprintf(w, "Folder:     %s (uid %d)\n", r.Folder, r.UID)
	fmt.Fprintf(w, "Subject:    %s\n", r.Subject)
	fmt.Fprintf(w, "From:       %s\n", r.Sender)
	if len(r.Recipients) > 0 {
		fmt.Fprintf(w, "To:         %s\n", strings.Join(r.Recipients, ", "))
	}
	fmt.Fprintf(w, "Received:   %s\n", r.ReceivedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "State:      %s (attempts %d)\n", r.State, r.Attempts)
	if r.FailureReason != "" {
		fmt.Fprintf(w, "Failure:    %s", r.FailureReason)
		if r.Quarantined {
			fmt.Fprint(w, " [quarantined]")
		}
		fmt.Fprintln(w)
	}
	if r.State == core.StateProcessed {
		fmt.Fprintf(w, "Category:   %s\n", r.Category)
		fmt.Fprintf(w, "Importance: %s\n", r.Importance)
		if r.IndexedAt != nil {
			fmt.Fprintf(w, "Indexed:    %s\n", r.IndexedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(w, "\nSummary:\n%s\n", r.Summary)
	}
	if e := r.Entities; !e.IsEmpty() {
		fmt.Fprintln(w)
		printList(w, "Key points", e.KeyPoints)
		printList(w, "Action items", e.ActionItems)
		printList(w, "Important dates", e.ImportantDates)
		printList(w, "Contacts", e.Contacts)
	}
	if raw != nil {
		for _, a := range raw.Attachments {
			fmt.Fprintf(w, "Attachment: %s (%s, %d bytes)\n", a.Name, a.ContentType, a.Size)
		}
		body := raw.Body
		if strings.TrimSpace(body) == "" {
			body = ingestion.HTMLToText(raw.HTMLBody)
		}
		fmt.Fprintf(w, "\nBody:\n%s\n", ingestion.Truncate(strings.TrimSpace(body), notify.PreviewChars*4))
	}
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func printStats(w io.Writer, s *core.Stats) {
	fmt.Fprintf(w, "Records:       %d\n", s.TotalRecords)
	for _, state := range []core.ProcessingState{core.StatePending, core.StateProcessed, core.StateFailed} {
		fmt.Fprintf(w, "  %-12s %d\n", state, s.ByState[state])
	}
	fmt.Fprintf(w, "Indexed:       %d (index entries %d)\n", s.Indexed, s.IndexEntries)
	if !s.LatestAt.IsZero() {
		fmt.Fprintf(w, "Latest:        %s\n", s.LatestAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintln(w, "By category:")
	for _, c := range core.Categories {
		if n := s.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", c, n)
		}
	}
	fmt.Fprintln(w, "By importance:")
	for _, i := range core.Importances {
		fmt.Fprintf(w, "  %-14s %d\n", i, s.ByImportance[i])
	}

	fmt.Fprintln(w, "Notifications:")
	statuses := make([]string, 0, len(s.Notifications))
	for status := range s.Notifications {
		statuses = append(statuses, string(status))
	}
	slices.Sort(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "  %-14s %d\n", status, s.Notifications[core.NotificationStatus(status)])
	}
}
