// Package spaces implements the space and membership registry.
//
// A Space is a named sharing destination (pairwise, group, or public) with
// exactly one disclosure Policy and a membership list. The Registry owns
// all Space and User records, enforces per-space membership invariants
// (pairwise capacity, one membership per user, invite-code match), and
// issues invite codes that are unique across all live spaces.
//
// All registry mutations are serialized per space: concurrent joins against
// the same space are evaluated against a consistent membership snapshot, so
// a pairwise space can never exceed two members under a race.
package spaces
