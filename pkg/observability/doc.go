/*
Package observability turns orchestrator lifecycle events into Prometheus
metrics and OpenTelemetry span events, and traces decision model calls.

Both integrations are plain domain.LifecycleHooks, combined with
domain.Merge and handed to switchboard.WithLifecycleHooks.
*/
package observability
