package domain

// Node names of the agent graph. They double as handoff targets.
const (
	RoutingAgent  = "routing_agent"
	TutorAgent    = "tutor_agent"
	SearchAgent   = "search_agent"
	RespondToUser = "respond_to_user"

	// End is the distinguished terminal state of the graph.
	End = "END"
)

// Default replies used when a turn produces no message of its own.
const (
	DefaultFallbackReply = "Processing complete."
	DefaultBreakerReply  = "I'm having trouble right now, please try again."
)
