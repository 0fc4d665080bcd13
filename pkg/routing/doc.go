// Package routing implements the per-turn disclosure decision.
//
// For each space a user belongs to, the engine asks the classifier whether
// the turn is relevant under the space's policy, then decides one of three
// actions: share a filtered document, skip, or queue a pending approval.
// The decision order is fixed: exclusion veto, then mandatory approval
// (sensitivity ceiling, approval conditions, high-sensitivity topics), then
// the auto-approve confidence threshold, then approval by default.
//
// Spaces are evaluated concurrently with bounded parallelism and a per-space
// timeout. A failure in one space never affects the others, and a classifier
// failure degrades to queuing the raw user message for manual review rather
// than sharing or dropping anything.
package routing
