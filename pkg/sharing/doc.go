// Package sharing defines the durable artifacts the router produces and the
// store contract for persisting them.
//
// Two artifact kinds exist: FilteredDocument (transformed content already
// shared into a space) and PendingApproval (transformed content waiting for
// the author's decision). Raw conversation turns are never persisted here;
// only filtered artifacts cross the trust boundary. Both artifact kinds are
// unique per (source turn, space), which is what makes routing idempotent.
package sharing
