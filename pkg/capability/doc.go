// Package capability defines the pluggable relevance and transformation
// interface the routing engine calls per (turn, space) pair.
//
// A Classifier judges whether a turn is relevant to a space's policy and, if
// so, produces the transformed content and scores. Two implementations ship:
// rules (deterministic keyword matching, used for tests and offline runs) and
// remote (an HTTP classifier service). The engine treats any Classifier error
// as "unavailable" and falls back to queuing the turn for manual approval.
package capability
