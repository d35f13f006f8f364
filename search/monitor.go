package search

import (
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterEmbedding(vector []float32)
	AfterIndexQuery(matches []index.Match)
	AfterRecordRetrieval(records []*core.EmailRecord)
	Dropped(id core.ID, reason string)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                             {}
func (n *noopMonitor) AfterEmbedding(_ []float32)                 {}
func (n *noopMonitor) AfterIndexQuery(_ []index.Match)            {}
func (n *noopMonitor) AfterRecordRetrieval(_ []*core.EmailRecord) {}
func (n *noopMonitor) Dropped(_ core.ID, _ string)                {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)              {}
