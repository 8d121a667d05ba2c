package domain

import (
	"slices"
	"time"
)

// ErrorKind tags a failed node invocation.
type ErrorKind string

const (
	KindDecision ErrorKind = "decision_error"
	KindSearch   ErrorKind = "search_error"
)

// NodeRecord is one audit entry, written once per node invocation.
type NodeRecord struct {
	Node    string `json:"node_name"`
	TurnID  string `json:"turn_id,omitempty"`
	Attempt int    `json:"attempt"`

	// Decision holds the validated handoffs when the invocation succeeded.
	Decision []Handoff `json:"decision,omitempty"`

	// Error holds the literal failure text when the invocation failed.
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Dropped lists handoff entries rejected for a parameter shape mismatch.
	Dropped []string `json:"dropped,omitempty"`

	// Rejections lists routing targets refused by the allow-list.
	Rejections []string `json:"rejections,omitempty"`

	// Anomalies lists non-fatal oddities such as duplicate replies.
	Anomalies []string `json:"anomalies,omitempty"`

	// ResumeAt names the node awaiting the next user input, if any.
	ResumeAt string `json:"resume_at,omitempty"`

	At time.Time `json:"at"`
}

// Failed reports whether the invocation ended in an error.
func (r NodeRecord) Failed() bool {
	return r.Error != ""
}

func (r NodeRecord) clone() NodeRecord {
	r.Decision = slices.Clone(r.Decision)
	r.Dropped = slices.Clone(r.Dropped)
	r.Rejections = slices.Clone(r.Rejections)
	r.Anomalies = slices.Clone(r.Anomalies)
	return r
}
