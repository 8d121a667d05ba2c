package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// ErrNoDecision is returned by Extract when a completion holds no
// handoff_agents object.
var ErrNoDecision = errors.New("completion contains no handoff decision")

// Extract decodes the decision object out of a raw model completion.
// Models sometimes wrap JSON in code fences or prose; everything outside
// the outermost braces is ignored.
func Extract(text string) (domain.Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return domain.Decision{}, ErrNoDecision
	}

	var envelope struct {
		Handoffs *[]domain.RawHandoff `json:"handoff_agents"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &envelope); err != nil {
		return domain.Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	if envelope.Handoffs == nil {
		return domain.Decision{}, ErrNoDecision
	}
	return domain.Decision{Handoffs: *envelope.Handoffs}, nil
}
