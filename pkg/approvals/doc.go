// Package approvals manages the pending-approval queue: listing what waits
// for a user, resolving entries exactly once, and sweeping expired ones.
//
// Resolution is one-shot. The first approve or reject wins; repeating the
// same decision is an idempotent no-op, a conflicting decision fails with
// sharing.ErrAlreadyResolved, and an expired entry can no longer be
// resolved at all. Approving may carry edited content, which replaces the
// proposed text but keeps the classifier's original scores.
package approvals
