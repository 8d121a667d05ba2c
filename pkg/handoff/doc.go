// Package handoff interprets a decision model's structured output into the
// ordered list of validated handoffs the router consumes.
//
// Parsing never fails as a whole: entries whose parameters do not match the
// shape declared for their agent name are dropped and reported, the rest are
// kept in their original order.
package handoff
