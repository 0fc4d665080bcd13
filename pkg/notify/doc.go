// Package notify delivers fire-and-forget notifications for registry and
// routing events.
//
// Sinks are informed on successful joins and on pending-approval creation.
// Delivery is best-effort by contract: a sink must never block the caller
// and a delivery failure must never roll back the state change that
// triggered it. Failures are logged and dropped.
package notify
