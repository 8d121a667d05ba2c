package handoff

import (
	"errors"
	"fmt"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Result is the outcome of a parser pass.
type Result struct {
	// Handoffs holds the surviving entries, in decision order.
	Handoffs []domain.Handoff
	// Outgoing is the message of the first respond_to_user entry.
	Outgoing string
	// ResumeAt is the agent_after_response of that same entry.
	ResumeAt string
	// Dropped lists entries removed for a shape mismatch.
	Dropped []*domain.ShapeMismatchError
	// Anomalies lists non-fatal oddities, such as duplicate replies.
	Anomalies []string
}

// Parse validates every entry of the decision against its declared shape.
func Parse(d domain.Decision) Result {
	var res Result
	replied := false

	for i, raw := range d.Handoffs {
		h, err := raw.Decode()
		if err != nil {
			var mismatch *domain.ShapeMismatchError
			if !errors.As(err, &mismatch) {
				mismatch = &domain.ShapeMismatchError{Agent: raw.AgentName, Reason: err.Error()}
			}
			res.Dropped = append(res.Dropped, mismatch)
			continue
		}

		if p, ok := h.Params.(domain.RespondParameters); ok {
			if replied {
				res.Anomalies = append(res.Anomalies,
					fmt.Sprintf("duplicate respond_to_user at entry %d ignored", i))
			} else {
				replied = true
				res.Outgoing = p.MessageToStudent
				res.ResumeAt = p.AgentAfterResponse
			}
		}
		res.Handoffs = append(res.Handoffs, h)
	}

	return res
}

// DroppedReasons renders the dropped entries for audit records.
func (r Result) DroppedReasons() []string {
	if len(r.Dropped) == 0 {
		return nil
	}
	out := make([]string, len(r.Dropped))
	for i, d := range r.Dropped {
		out[i] = d.Error()
	}
	return out
}
