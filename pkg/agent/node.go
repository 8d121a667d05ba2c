package agent

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/handoff"
)

// Node is one agent of the graph.
type Node interface {
	// Name is the node name used for routing and attempt counters.
	Name() string
	// Run executes the agent against a read-only view of the state.
	Run(ctx context.Context, st *domain.State) Delta
}

// Delta is the partial update a node returns for the engine to merge.
type Delta struct {
	// Record is the audit entry of this invocation. The engine fills the
	// node name, turn id, attempt number and timestamp.
	Record domain.NodeRecord

	// Pending are the validated handoffs for the router to consume.
	Pending []domain.Handoff

	// Outgoing, when set, replaces the reply for the end user.
	Outgoing string

	// Failed marks the invocation as an error for routing purposes.
	Failed bool
	// Err is the recovered failure, when Failed.
	Err error

	// Dropped lists the handoff entries removed by the parser.
	Dropped []*domain.ShapeMismatchError

	// Tutoring is set by the tutor agent.
	Tutoring *domain.TutorParameters

	// SearchResults replaces the search agent output when SetSearch is true.
	SearchResults []domain.SearchResult
	SetSearch     bool
}

// Fail builds the delta of a recovered failure.
func Fail(err error, kind domain.ErrorKind) Delta {
	return Delta{
		Record: domain.NodeRecord{Error: err.Error(), ErrorKind: kind},
		Failed: true,
		Err:    err,
	}
}

// FromParse builds the delta of a successful decision.
func FromParse(res handoff.Result) Delta {
	return Delta{
		Record: domain.NodeRecord{
			Decision:  res.Handoffs,
			Dropped:   res.DroppedReasons(),
			Anomalies: res.Anomalies,
			ResumeAt:  res.ResumeAt,
		},
		Pending:  res.Handoffs,
		Outgoing: res.Outgoing,
		Dropped:  res.Dropped,
	}
}
