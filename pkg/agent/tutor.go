package agent

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Tutor teaches the subject selected by the router.
type Tutor struct {
	decider
}

// NewTutor creates the tutor agent.
func NewTutor(model ports.DecisionModel, opts ...Option) *Tutor {
	return &Tutor{decider: newDecider(domain.TutorAgent, model, opts)}
}

// Name implements Node.
func (t *Tutor) Name() string { return t.name }

// Run implements Node.
func (t *Tutor) Run(ctx context.Context, st *domain.State) Delta {
	tutoring := st.Tutoring
	instruction := ""
	if st.Active != nil {
		instruction = st.Active.Message
		if p, ok := st.Active.Params.(domain.TutorParameters); ok {
			tutoring = &p
		}
	}

	d := t.decide(ctx, st, PromptData{
		UserID:         st.UserID,
		Message:        st.CurrentMessage,
		Instruction:    instruction,
		Snapshot:       st.Snapshot,
		Tutoring:       tutoring,
		SearchResults:  st.SearchResults,
		SearchAttempts: st.Attempts[domain.SearchAgent],
	})
	d.Tutoring = tutoring
	if d.Failed {
		return d
	}

	d.Outgoing = StripMarkdown(d.Outgoing)

	// Replies made only of markup are empty once stripped and are dropped
	// like any other entry that fails its shape.
	pending := make([]domain.Handoff, 0, len(d.Pending))
	for _, h := range d.Pending {
		if p, ok := h.Params.(domain.RespondParameters); ok {
			p.MessageToStudent = StripMarkdown(p.MessageToStudent)
			if p.MessageToStudent == "" {
				mismatch := &domain.ShapeMismatchError{Agent: h.Agent, Reason: "reply is empty without markdown"}
				d.Dropped = append(d.Dropped, mismatch)
				d.Record.Dropped = append(d.Record.Dropped, mismatch.Error())
				continue
			}
			h.Params = p
		}
		pending = append(pending, h)
	}
	d.Pending = pending
	d.Record.Decision = pending
	return d
}
