package runtime

import (
	"github.com/aretw0/switchboard/pkg/agent"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
)

// route evaluates the conditional edges of spec for the delta it produced.
// It is pure: the same spec and delta always yield the same next node.
//
// Order: failure edge, unconditional edge, END on an empty decision, first
// allowed pending handoff, default successor.
func route(spec *dsl.NodeSpec, d agent.Delta) (string, *domain.Handoff, []*domain.RoutingRejection) {
	if d.Failed {
		return spec.OnError, nil, nil
	}
	if spec.Always != "" {
		return spec.Always, nil, nil
	}
	if len(d.Pending) == 0 {
		return domain.End, nil, nil
	}

	var rejections []*domain.RoutingRejection
	for i := range d.Pending {
		h := d.Pending[i]
		if spec.Allows(h.Agent) {
			for _, r := range rejections {
				r.Fallback = h.Agent
			}
			return h.Agent, &h, rejections
		}
		rejections = append(rejections, &domain.RoutingRejection{From: spec.Name, To: h.Agent})
	}

	fallback := spec.Default
	if fallback == "" {
		fallback = domain.End
	}
	for _, r := range rejections {
		r.Fallback = fallback
	}
	return fallback, nil, rejections
}
