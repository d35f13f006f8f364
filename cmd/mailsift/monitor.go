package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/search"
)

// verboseMonitor prints each retrieval stage with its timing.
type verboseMonitor struct {
	w     io.Writer
	start time.Time
	last  time.Time
}

var _ search.SearchMonitor = (*verboseMonitor)(nil)

func newVerboseMonitor(w io.Writer) *verboseMonitor {
	return &verboseMonitor{w: w}
}

func (m *verboseMonitor) step(format string, args ...any) {
	now := time.Now()
	fmt.Fprintf(m.w, "[%8s] ", now.Sub(m.last).Round(time.Microsecond))
	fmt.Fprintf(m.w, format+"\n", args...)
	m.last = now
}

func (m *verboseMonitor) Start(query string) {
	m.start = time.Now()
	m.last = m.start
	fmt.Fprintf(m.w, "query: %q\n", query)
}

func (m *verboseMonitor) AfterEmbedding(vector []float32) {
	m.step("embedded query (%d dimensions)", len(vector))
}

func (m *verboseMonitor) AfterIndexQuery(matches []index.Match) {
	m.step("index returned %d matches", len(matches))
	for _, match := range matches {
		fmt.Fprintf(m.w, "           %s %0.4f\n", match.ID, match.Score)
	}
}

func (m *verboseMonitor) AfterRecordRetrieval(records []*core.EmailRecord) {
	m.step("loaded %d records", len(records))
}

func (m *verboseMonitor) Dropped(id core.ID, reason string) {
	fmt.Fprintf(m.w, "           dropped %s: %s\n", id, reason)
}

func (m *verboseMonitor) Finish(results []*core.SearchResult) {
	m.step("%d results", len(results))
	fmt.Fprintf(m.w, "total %s\n", time.Since(m.start).Round(time.Microsecond))
}

// monitorOrNil avoids handing a typed nil to an interface.
func monitorOrNil(m *verboseMonitor) search.SearchMonitor {
	if m == nil {
		return nil
	}
	return m
}
