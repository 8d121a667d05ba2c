package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks text matching any of the patterns before the state
// is saved: conversation turns, the current and outgoing messages, and the
// text of every handoff (node history decisions, pending and active). The
// caller's State is not modified. Loads are passed through, so redacted text
// stays redacted.
func NewPIIMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, userID string, state *domain.State) error {
	if len(m.patterns) == 0 {
		return m.next.Save(ctx, userID, state)
	}

	redacted := state.Clone()
	redacted.CurrentMessage = m.mask(redacted.CurrentMessage)
	redacted.OutgoingMessage = m.mask(redacted.OutgoingMessage)
	for i := range redacted.Conversation {
		redacted.Conversation[i].Content = m.mask(redacted.Conversation[i].Content)
	}
	for i := range redacted.NodeHistory {
		m.maskHandoffs(redacted.NodeHistory[i].Decision)
	}
	m.maskHandoffs(redacted.Pending)
	if redacted.Active != nil {
		m.maskHandoff(redacted.Active)
	}
	return m.next.Save(ctx, userID, redacted)
}

func (m *piiMiddleware) maskHandoffs(hs []domain.Handoff) {
	for i := range hs {
		m.maskHandoff(&hs[i])
	}
}

func (m *piiMiddleware) maskHandoff(h *domain.Handoff) {
	h.Message = m.mask(h.Message)
	switch p := h.Params.(type) {
	case domain.RespondParameters:
		p.MessageToStudent = m.mask(p.MessageToStudent)
		h.Params = p
	case domain.SearchParameters:
		p.Query = m.mask(p.Query)
		h.Params = p
	}
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

func (m *piiMiddleware) Load(ctx context.Context, userID string) (*domain.State, error) {
	return m.next.Load(ctx, userID)
}

func (m *piiMiddleware) Delete(ctx context.Context, userID string) error {
	return m.next.Delete(ctx, userID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
