package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// SearchRequest is a single web search query.
type SearchRequest struct {
	Query          string
	MaxResults     int
	ScoreThreshold float64
}

// Searcher performs web searches for the search agent.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]domain.SearchResult, error)
}
