package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/handoff"
	"github.com/aretw0/switchboard/pkg/ports"
)

// DefaultDecisionTimeout bounds a single decision model call.
const DefaultDecisionTimeout = 30 * time.Second

// Option configures a decision-backed agent.
type Option func(*decider)

// WithTimeout bounds each decision model call.
func WithTimeout(d time.Duration) Option {
	return func(a *decider) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithPrompts replaces the embedded prompt set.
func WithPrompts(p *Prompts) Option {
	return func(a *decider) {
		if p != nil {
			a.prompts = p
		}
	}
}

// WithLogger configures the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *decider) {
		a.logger = logger
	}
}

// decider holds what every decision-backed agent shares.
type decider struct {
	name    string
	model   ports.DecisionModel
	prompts *Prompts
	timeout time.Duration
	logger  *slog.Logger
}

func newDecider(name string, model ports.DecisionModel, opts []Option) decider {
	d := decider{
		name:    name,
		model:   model,
		prompts: DefaultPrompts(),
		timeout: DefaultDecisionTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// decide renders the prompt, calls the model under a timeout and parses the
// result. Every failure is returned as a recovered Delta.
func (d *decider) decide(ctx context.Context, st *domain.State, data PromptData) Delta {
	system, err := d.prompts.Render(d.name, data)
	if err != nil {
		return Fail(&domain.DecisionError{Node: d.name, Err: err}, domain.KindDecision)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	decision, err := d.model.Decide(callCtx, ports.Prompt{
		Node:     d.name,
		System:   system,
		Messages: st.Conversation,
	}, handoff.Shape)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded)
		d.logger.Warn("decision failed", "node", d.name, "user_id", st.UserID, "timeout", timeout, "err", err)
		return Fail(&domain.DecisionError{Node: d.name, Timeout: timeout, Err: err}, domain.KindDecision)
	}
	res := handoff.Parse(decision)
	for _, dropped := range res.Dropped {
		d.logger.Warn("handoff dropped", "node", d.name, "user_id", st.UserID, "err", dropped)
	}
	for _, anomaly := range res.Anomalies {
		d.logger.Warn("handoff anomaly", "node", d.name, "user_id", st.UserID, "anomaly", anomaly)
	}
	return FromParse(res)
}
