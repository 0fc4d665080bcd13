package routing

import (
	"hivemind-hq/scribe/pkg/sharing"
)

// Action is the routing verdict for one (turn, space) pair.
type Action string

const (
	// ActionShared means a filtered document was persisted to the space.
	ActionShared Action = "shared"

	// ActionSkipped means nothing was persisted: the turn was irrelevant,
	// vetoed by an exclusion, or already routed to the space.
	ActionSkipped Action = "skipped"

	// ActionApprovalNeeded means a pending approval was queued.
	ActionApprovalNeeded Action = "approval_needed"

	// ActionFailed means an infrastructure error prevented a verdict.
	// The Err field carries the cause.
	ActionFailed Action = "failed"
)

// RouteResult is the outcome for one space. Results for a turn are reported
// in the space's creation order.
type RouteResult struct {
	SpaceID string `json:"space_id"`
	Action  Action `json:"action"`
	Reason  string `json:"reason,omitempty"`

	// Document is set when Action is ActionShared.
	Document *sharing.FilteredDocument `json:"document,omitempty"`

	// Approval is set when Action is ActionApprovalNeeded.
	Approval *sharing.PendingApproval `json:"approval,omitempty"`

	// Err is set when Action is ActionFailed.
	Err error `json:"-"`
}
