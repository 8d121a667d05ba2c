package domain

import (
	"slices"
	"time"
)

// ExecutionStatus describes where the last turn left the session.
type ExecutionStatus string

const (
	StatusIdle           ExecutionStatus = "idle"            // Fresh session, no turn yet
	StatusRunning        ExecutionStatus = "running"         // Turn in progress
	StatusDone           ExecutionStatus = "done"            // Turn reached END normally
	StatusBreakerTripped ExecutionStatus = "breaker_tripped" // Turn forced to END by a ceiling
	StatusFailed         ExecutionStatus = "failed"          // Turn aborted (context cancelled)
)

// State is the record carried through the agent graph for one user.
// It is plain data and must stay fully JSON-serializable.
type State struct {
	// UserID is the stable persistence key. Never empty.
	UserID string `json:"user_id"`

	// CurrentMessage is the inbound user text for the current turn.
	CurrentMessage string `json:"current_message"`

	// Conversation is the ordered user/assistant transcript, oldest first.
	Conversation []Message `json:"conversation_history"`

	// NodeHistory is the append-only audit trail, one entry per node invocation.
	NodeHistory []NodeRecord `json:"node_history"`

	// Attempts counts executions per node name. Monotonic for the session lifetime.
	Attempts map[string]int `json:"attempts"`

	// Pending holds the validated handoffs of the most recent node.
	// Scratch: consumed by the router before the next node runs.
	Pending []Handoff `json:"pending_handoffs,omitempty"`

	// Active is the handoff that selected the running node. Its parameters
	// are that node's input.
	Active *Handoff `json:"active_handoff,omitempty"`

	// OutgoingMessage is the reply for the end user for this turn.
	OutgoingMessage string `json:"outgoing_message,omitempty"`

	// LastError describes the most recent failure of the turn, if any.
	LastError string `json:"last_error,omitempty"`

	// CurrentStep is the last node executed.
	CurrentStep string `json:"current_step,omitempty"`

	// Tutoring is owned by the tutor agent.
	Tutoring *TutorParameters `json:"tutoring,omitempty"`

	// SearchResults is owned by the search agent.
	SearchResults []SearchResult `json:"search_results,omitempty"`

	// Snapshot is read-only domain data hydrated before the turn starts.
	Snapshot Snapshot `json:"snapshot"`

	Status    ExecutionStatus `json:"status"`
	Turns     int             `json:"turns"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Sealed holds an encrypted copy of the whole state when the store is
	// wrapped by the encryption middleware. Only the envelope sets it.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewState creates a clean state for a user seen for the first time.
func NewState(userID string) *State {
	now := time.Now().UTC()
	return &State{
		UserID:       userID,
		Conversation: []Message{},
		NodeHistory:  []NodeRecord{},
		Attempts:     make(map[string]int),
		Status:       StatusIdle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LastRecord returns the most recent node history entry.
func (s *State) LastRecord() (NodeRecord, bool) {
	if len(s.NodeHistory) == 0 {
		return NodeRecord{}, false
	}
	return s.NodeHistory[len(s.NodeHistory)-1], true
}

// Clone returns a deep copy, so stores and callers never share slices or maps.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Conversation = slices.Clone(s.Conversation)
	out.NodeHistory = make([]NodeRecord, len(s.NodeHistory))
	for i, r := range s.NodeHistory {
		out.NodeHistory[i] = r.clone()
	}
	out.Attempts = make(map[string]int, len(s.Attempts))
	for k, v := range s.Attempts {
		out.Attempts[k] = v
	}
	out.Pending = slices.Clone(s.Pending)
	if s.Active != nil {
		a := *s.Active
		out.Active = &a
	}
	if s.Tutoring != nil {
		t := *s.Tutoring
		out.Tutoring = &t
	}
	out.SearchResults = slices.Clone(s.SearchResults)
	out.Snapshot = s.Snapshot.clone()
	out.Sealed = slices.Clone(s.Sealed)
	return &out
}

// ResetTurn clears the per-turn scratch fields. Counters and histories are kept.
func (s *State) ResetTurn() {
	s.OutgoingMessage = ""
	s.LastError = ""
	s.Pending = nil
	s.Active = nil
	if s.Attempts == nil {
		s.Attempts = make(map[string]int)
	}
}
