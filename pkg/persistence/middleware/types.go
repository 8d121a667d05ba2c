// Package middleware decorates a ports.StateStore with cross-cutting
// persistence behavior: encryption at rest and PII redaction.
package middleware

import "github.com/aretw0/switchboard/pkg/ports"

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
