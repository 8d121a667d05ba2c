/*
Package session serializes access to per-user conversation state.

A Manager hands out a keyed lock per user, so two turns for the same user never
interleave their load-run-save cycles, while different users proceed fully in
parallel. An optional ports.DistributedLocker extends the guarantee across
replicas.
*/
package session
