package capability

import (
	"context"
	"errors"

	"hivemind-hq/scribe/pkg/spaces"
)

// ErrUnavailable indicates the classifier could not produce a judgment.
// Callers must not treat this as a routing verdict: the safe fallback is to
// queue the turn for manual approval.
var ErrUnavailable = errors.New("classifier unavailable")

// Request carries one turn and the policy of the space being evaluated.
type Request struct {
	Turn   spaces.Turn
	Policy spaces.Policy
}

// Judgment is the classifier's verdict for one (turn, space) pair.
type Judgment struct {
	// Relevant reports whether the turn matches the space's policy at all.
	// When false the remaining fields are advisory only.
	Relevant bool

	// Reason is a short human-readable explanation of the verdict.
	Reason string

	// ProposedContent is the transformed content to share, with the
	// policy's transformation rules already applied.
	ProposedContent string

	// Topics are the policy criteria the turn touched.
	Topics []string

	// Confidence scores how well the content matches the policy, 0 to 1.
	Confidence float64

	// Sensitivity scores how private the content is, 0 to 1.
	Sensitivity float64
}

// Classifier evaluates a turn against a space policy.
//
// Implementations must be safe for concurrent use and must honor context
// cancellation. Errors should wrap ErrUnavailable when the failure is the
// classifier's (timeout, transport, malformed response) rather than the
// caller's.
type Classifier interface {
	Evaluate(ctx context.Context, req Request) (Judgment, error)
}
