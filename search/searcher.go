package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/metrics"
	"github.com/poiesic/mailsift/storage"
)

// DefaultK is the number of records Answer retrieves.
const DefaultK = 5

// VectorIndex is the read side of the vector index.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int, filter *index.Filter) ([]index.Match, error)
}

// Answer is a generated answer with the records it was grounded on.
type Answer struct {
	Text    string
	Sources []*core.SearchResult
}

// Searcher provides semantic search and question answering over email records.
type Searcher struct {
	records         storage.RecordRepository
	index           VectorIndex
	embedder        ai.Embedder
	answerer        ai.Answerer
	defaultK        int
	maxContextChars int
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithDefaultK sets how many records Answer retrieves. Default is DefaultK.
func WithDefaultK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("default k must be positive, got %d", k)
		}
		s.defaultK = k
		return nil
	}
}

// WithMaxContextChars bounds the answer context in runes.
// Default is DefaultMaxContextChars.
func WithMaxContextChars(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("max context chars must be positive, got %d", n)
		}
		s.maxContextChars = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	records storage.RecordRepository,
	idx VectorIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		records:         records,
		index:           idx,
		embedder:        provider.Embedder(),
		answerer:        provider.Answerer(),
		defaultK:        DefaultK,
		maxContextChars: DefaultMaxContextChars,
		logger:          slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Search returns up to k processed records most similar to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, k, nil, nil)
}

// SearchWithFilter is Search restricted to index entries matching filter.
func (s *Searcher) SearchWithFilter(ctx context.Context, query string, k int, filter *index.Filter) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, k, filter, nil)
}

// SearchWithMonitor searches with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, k int, filter *index.Filter, monitor SearchMonitor) (results []*core.SearchResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordQueryDuration("search", err, time.Since(start)) }()

	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	monitor.Start(query)
	if k <= 0 {
		monitor.Finish(nil)
		return []*core.SearchResult{}, nil
	}

	// 1. Embed the query
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(vector)

	// 2. Rank index entries
	matches, err := s.index.Query(ctx, vector, k, filter)
	if err != nil {
		s.logger.Error("error querying index", "err", err)
		return nil, err
	}
	monitor.AfterIndexQuery(matches)
	if len(matches) == 0 {
		monitor.Finish(nil)
		return []*core.SearchResult{}, nil
	}

	// 3. Resolve ids, keeping rank order
	ids := make([]core.ID, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	records, err := s.records.GetRecords(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving records", "records", len(ids), "err", err)
		return nil, err
	}
	monitor.AfterRecordRetrieval(records)

	byID := make(map[core.ID]*core.EmailRecord, len(records))
	for _, record := range records {
		byID[record.Id] = record
	}

	results = make([]*core.SearchResult, 0, len(matches))
	for _, m := range matches {
		record, ok := byID[m.ID]
		switch {
		case !ok:
			monitor.Dropped(m.ID, "no record")
			s.logger.Debug("index entry without record", "id", m.ID)
		case record.State != core.StateProcessed:
			monitor.Dropped(m.ID, "not processed")
		default:
			results = append(results, &core.SearchResult{Record: record, Score: m.Score})
		}
	}
	monitor.Finish(results)

	return results, nil
}

// Answer answers question from the best matching records.
func (s *Searcher) Answer(ctx context.Context, question string) (*Answer, error) {
	return s.AnswerWithFilter(ctx, question, nil)
}

// AnswerWithFilter answers question using only records matching filter.
// Retrieval failures degrade to an empty context rather than failing.
func (s *Searcher) AnswerWithFilter(ctx context.Context, question string, filter *index.Filter) (answer *Answer, err error) {
	start := time.Now()
	defer func() { metrics.RecordQueryDuration("answer", err, time.Since(start)) }()

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuery
	}

	results, err := s.SearchWithFilter(ctx, question, s.defaultK, filter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("retrieval failed, answering without context", "err", err)
		results = nil
	}

	contextText, sources := BuildContext(results, s.maxContextChars)
	if len(sources) < len(results) {
		s.logger.Debug("context budget reached", "kept", len(sources), "dropped", len(results)-len(sources))
	}

	text, err := s.answerer.Answer(ctx, question, contextText)
	if err != nil {
		s.logger.Error("error answering question", "err", err)
		return nil, err
	}

	return &Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}
