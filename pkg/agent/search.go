package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// DefaultMaxResults is the number of hits requested per search.
const DefaultMaxResults = 1

// Search runs a web search for the tutor. It does not consult a decision model.
type Search struct {
	searcher   ports.Searcher
	maxResults int
	threshold  float64
	logger     *slog.Logger
}

// SearchOption configures the search agent.
type SearchOption func(*Search)

// WithMaxResults sets the number of hits requested per search.
func WithMaxResults(n int) SearchOption {
	return func(s *Search) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithScoreThreshold sets the minimum score kept when the handoff names none.
func WithScoreThreshold(f float64) SearchOption {
	return func(s *Search) {
		if f >= 0 && f <= 1 {
			s.threshold = f
		}
	}
}

// WithSearchLogger configures the search agent logger.
func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(s *Search) {
		s.logger = logger
	}
}

// NewSearch creates the search agent.
func NewSearch(searcher ports.Searcher, opts ...SearchOption) *Search {
	s := &Search{
		searcher:   searcher,
		maxResults: DefaultMaxResults,
		threshold:  domain.DefaultScoreThreshold,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Node.
func (s *Search) Name() string { return domain.SearchAgent }

// Run implements Node.
func (s *Search) Run(ctx context.Context, st *domain.State) Delta {
	req := ports.SearchRequest{
		Query:          st.CurrentMessage,
		MaxResults:     s.maxResults,
		ScoreThreshold: s.threshold,
	}
	if st.Active != nil {
		if p, ok := st.Active.Params.(domain.SearchParameters); ok {
			req.Query = p.Query
			if p.ScoreThreshold != nil {
				req.ScoreThreshold = *p.ScoreThreshold
			}
		}
	}

	if s.searcher == nil {
		return s.failed(fmt.Errorf("no search provider configured"))
	}

	results, err := s.searcher.Search(ctx, req)
	if err != nil {
		s.logger.Warn("search failed", "user_id", st.UserID, "query", req.Query, "err", err)
		return s.failed(fmt.Errorf("failed to get search results: %w", err))
	}

	kept := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= req.ScoreThreshold {
			kept = append(kept, r)
		}
	}
	return Delta{SearchResults: kept, SetSearch: true}
}

// failed records the error but does not mark the invocation as failed, so
// the unconditional edge back to the tutor still applies.
func (s *Search) failed(err error) Delta {
	return Delta{
		Record:    domain.NodeRecord{Error: err.Error(), ErrorKind: domain.KindSearch},
		Err:       err,
		SetSearch: true,
	}
}
