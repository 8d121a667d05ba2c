package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is the closed set of agent specific parameter shapes.
// Implementations live in this package only.
type Params interface {
	// Target is the agent name this shape belongs to.
	Target() string
	sealed()
}

// TutorParameters selects the subject and grade for a tutoring session.
type TutorParameters struct {
	Subject string `json:"subject"`
	Grade   int    `json:"grade"`
}

// RespondParameters carries the reply for the end user.
type RespondParameters struct {
	MessageToStudent string `json:"message_to_student"`
	// AgentAfterResponse is the node awaiting the user's next message.
	AgentAfterResponse string `json:"agent_after_response"`
}

// SearchParameters describes a web search request.
type SearchParameters struct {
	Query string `json:"query"`
	// ScoreThreshold is nil when the handoff names none; the search agent
	// then applies its configured threshold.
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// DefaultScoreThreshold is applied when neither the handoff nor the
// configuration names one.
const DefaultScoreThreshold = 0.7

func (TutorParameters) Target() string   { return TutorAgent }
func (RespondParameters) Target() string { return RespondToUser }
func (SearchParameters) Target() string  { return SearchAgent }

func (TutorParameters) sealed()   {}
func (RespondParameters) sealed() {}
func (SearchParameters) sealed()  {}

// Handoff is a validated instruction to pass control to an agent.
type Handoff struct {
	Agent   string
	Message string
	Params  Params
}

// Decision is the raw structured output of a decision model.
type Decision struct {
	Handoffs []RawHandoff `json:"handoff_agents"`
}

// RawHandoff is one handoff entry before shape validation.
type RawHandoff struct {
	AgentName      string          `json:"agent_name"`
	MessageToAgent string          `json:"message_to_agent"`
	Parameters     json.RawMessage `json:"agent_specific_parameters"`
}

// Decode validates the parameters against the shape declared for AgentName.
// It returns a *ShapeMismatchError when they do not match.
func (r RawHandoff) Decode() (Handoff, error) {
	mismatch := func(reason string) error {
		return &ShapeMismatchError{Agent: r.AgentName, Reason: reason}
	}
	raw := bytes.TrimSpace(r.Parameters)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Handoff{}, mismatch("missing agent_specific_parameters")
	}

	var params Params
	switch r.AgentName {
	case TutorAgent:
		var p struct {
			Subject *string `json:"subject"`
			Grade   *int    `json:"grade"`
		}
		if err := strictUnmarshal(raw, &p); err != nil {
			return Handoff{}, mismatch(err.Error())
		}
		if p.Subject == nil || *p.Subject == "" || p.Grade == nil {
			return Handoff{}, mismatch("tutor parameters require subject and grade")
		}
		params = TutorParameters{Subject: *p.Subject, Grade: *p.Grade}
	case RespondToUser:
		var p RespondParameters
		if err := strictUnmarshal(raw, &p); err != nil {
			return Handoff{}, mismatch(err.Error())
		}
		if p.MessageToStudent == "" {
			return Handoff{}, mismatch("respond parameters require message_to_student")
		}
		if p.AgentAfterResponse == "" {
			p.AgentAfterResponse = RoutingAgent
		}
		params = p
	case SearchAgent:
		var p struct {
			Query          *string  `json:"query"`
			ScoreThreshold *float64 `json:"score_threshold"`
		}
		if err := strictUnmarshal(raw, &p); err != nil {
			return Handoff{}, mismatch(err.Error())
		}
		if p.Query == nil || *p.Query == "" {
			return Handoff{}, mismatch("search parameters require query")
		}
		if p.ScoreThreshold != nil && (*p.ScoreThreshold < 0 || *p.ScoreThreshold > 1) {
			return Handoff{}, mismatch("score_threshold must be within [0,1]")
		}
		params = SearchParameters{Query: *p.Query, ScoreThreshold: p.ScoreThreshold}
	default:
		return Handoff{}, mismatch("unknown agent")
	}

	return Handoff{Agent: r.AgentName, Message: r.MessageToAgent, Params: params}, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after parameters")
	}
	return nil
}

// Raw converts a validated handoff back to its wire form.
func (h Handoff) Raw() RawHandoff {
	params, _ := json.Marshal(h.Params)
	return RawHandoff{AgentName: h.Agent, MessageToAgent: h.Message, Parameters: params}
}

// MarshalJSON encodes the handoff in the same shape decision models emit.
func (h Handoff) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Raw())
}

// UnmarshalJSON decodes a persisted handoff. Entries that no longer pass
// Decode are kept as written, so stored history never fails a load.
func (h *Handoff) UnmarshalJSON(data []byte) error {
	var raw RawHandoff
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if decoded, err := raw.Decode(); err == nil {
		*h = decoded
		return nil
	}
	*h = Handoff{Agent: raw.AgentName, Message: raw.MessageToAgent, Params: looseParams(raw)}
	return nil
}

// looseParams decodes parameters without validation. It returns nil when
// the agent is unknown or the payload does not fit its shape.
func looseParams(raw RawHandoff) Params {
	var (
		target Params
		err    error
	)
	switch raw.AgentName {
	case TutorAgent:
		var p TutorParameters
		err = json.Unmarshal(raw.Parameters, &p)
		target = p
	case RespondToUser:
		var p RespondParameters
		err = json.Unmarshal(raw.Parameters, &p)
		target = p
	case SearchAgent:
		var p SearchParameters
		err = json.Unmarshal(raw.Parameters, &p)
		target = p
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return target
}
