package spaces

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the registry. Every failure is
// distinguishable so callers can render an actionable message.
var (
	// ErrSpaceNotFound indicates the space does not exist or is retired.
	ErrSpaceNotFound = errors.New("space not found")

	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCode indicates the invite code does not match the space.
	ErrInvalidCode = errors.New("invalid invite code")

	// ErrAlreadyMember indicates the user is already a member of the space.
	ErrAlreadyMember = errors.New("already a member")

	// ErrSpaceFull indicates the space has reached its type capacity.
	ErrSpaceFull = errors.New("space is full")

	// ErrNotAuthorized indicates the requester may not perform the
	// operation (policy edits are creator-only).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotMember indicates the user is not a member of the space.
	ErrNotMember = errors.New("not a member")

	// ErrInvalidSpaceType indicates an unknown space type.
	ErrInvalidSpaceType = errors.New("invalid space type")

	// ErrInviteCodeExhausted indicates code generation kept colliding.
	// With 36^8 possible codes this indicates a broken entropy source,
	// not a full namespace.
	ErrInviteCodeExhausted = errors.New("invite code generation exhausted retries")
)

// CapacityError reports a pairwise space configured for more than two seats.
type CapacityError struct {
	Type     SpaceType
	Capacity int
	Want     int
}

// Error returns the error message.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("space type %s allows at most %d members, requested %d", e.Type, e.Capacity, e.Want)
}
