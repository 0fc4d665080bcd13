package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/spaces"
)

// Decision is the author's verdict on one pending approval.
type Decision struct {
	// Approve shares the content; false rejects and discards it.
	Approve bool

	// EditedContent, when non-empty on approve, replaces the proposed
	// content. The classifier's confidence and sensitivity scores are kept:
	// editing rewords the disclosure, it does not re-score it.
	EditedContent string
}

// Queue resolves pending approvals against the store and registry.
type Queue struct {
	store    sharing.Store
	registry *spaces.Registry
	logger   *slog.Logger
	observer Observer

	// now is swappable for tests.
	now func() time.Time
}

// NewQueue creates an approval queue.
func NewQueue(store sharing.Store, registry *spaces.Registry, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "approvals"),
		observer: nopObserver{},
		now:      time.Now,
	}
}

// SetObserver installs the telemetry sink. Call before serving traffic.
func (q *Queue) SetObserver(obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}
	q.observer = obs
}

// ListPending returns the approvals waiting on a user, oldest first.
func (q *Queue) ListPending(ctx context.Context, userID string) ([]*sharing.PendingApproval, error) {
	if _, err := q.registry.GetUser(userID); err != nil {
		return nil, err
	}
	return q.store.ListPendingApprovals(ctx, userID)
}

// Get returns one approval, restricted to its owner.
func (q *Queue) Get(ctx context.Context, userID, approvalID string) (*sharing.PendingApproval, error) {
	approval, err := q.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.UserID != userID {
		return nil, spaces.ErrNotAuthorized
	}
	return approval, nil
}

// Resolve applies the author's decision. On approve it persists the
// filtered document and returns it; on reject it returns nil.
//
// The transition out of pending happens exactly once. A repeat of the same
// decision succeeds without side effects; a conflicting decision, or any
// decision on an expired entry, returns sharing.ErrAlreadyResolved.
func (q *Queue) Resolve(ctx context.Context, userID, approvalID string, decision Decision) (*sharing.FilteredDocument, error) {
	approval, err := q.Get(ctx, userID, approvalID)
	if err != nil {
		return nil, err
	}

	target := sharing.StatusRejected
	if decision.Approve {
		target = sharing.StatusApproved
	}

	now := q.now().UTC()

	// The sweeper may lag; never resolve past the deadline.
	if approval.Status == sharing.StatusPending && !approval.ExpiresAt.After(now) {
		_, swapped, err := q.store.ResolveApproval(ctx, approvalID, sharing.StatusExpired, now)
		if err != nil {
			return nil, err
		}
		if swapped {
			q.observer.ApprovalResolved(string(sharing.StatusExpired))
		}
		return nil, fmt.Errorf("approval expired %s ago: %w",
			now.Sub(approval.ExpiresAt).Round(time.Second), sharing.ErrAlreadyResolved)
	}

	settled, swapped, err := q.store.ResolveApproval(ctx, approvalID, target, now)
	if err != nil {
		return nil, err
	}
	if swapped {
		q.observer.ApprovalResolved(string(target))
	}

	if !swapped {
		if settled.Status == target {
			// Idempotent repeat of the earlier decision.
			if decision.Approve {
				return q.findDocument(ctx, settled)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("approval is %s: %w", settled.Status, sharing.ErrAlreadyResolved)
	}

	q.logger.InfoContext(ctx, "approval resolved",
		"approval_id", approvalID,
		"space_id", settled.SpaceID,
		"status", settled.Status,
	)

	if !decision.Approve {
		return nil, nil
	}
	return q.publish(ctx, settled, decision.EditedContent, userID)
}

// publish writes the filtered document for a freshly approved entry.
func (q *Queue) publish(ctx context.Context, approval *sharing.PendingApproval, editedContent, approvedBy string) (*sharing.FilteredDocument, error) {
	content := approval.ProposedContent
	if editedContent != "" {
		content = editedContent
	}

	doc := &sharing.FilteredDocument{
		ID:           sharing.NewDocumentID(),
		SpaceID:      approval.SpaceID,
		SourceTurnID: approval.SourceTurnID,
		AuthorID:     approval.UserID,
		Content:      content,
		Confidence:   approval.Confidence,
		Sensitivity:  approval.Sensitivity,
		ApprovedBy:   approvedBy,
		CreatedAt:    q.now().UTC(),
	}

	// Attribution follows the space's current policy. A retired space still
	// resolves here so late approvals do not error.
	if space, err := q.registry.GetSpace(approval.SpaceID); err == nil {
		doc.Attribution = space.Policy.Attribution
		if space.Policy.Attribution == spaces.AttributionFull {
			if user, err := q.registry.GetUser(approval.UserID); err == nil {
				doc.DisplayName = user.DisplayName
				doc.ContactMethod = user.ContactMethod
			}
		}
	} else {
		doc.Attribution = spaces.AttributionAnonymous
	}

	if err := q.store.SaveDocument(ctx, doc); err != nil {
		if errors.Is(err, sharing.ErrDuplicateArtifact) {
			return q.findDocument(ctx, approval)
		}
		return nil, err
	}
	return doc, nil
}

// findDocument locates the document already published for an approval.
func (q *Queue) findDocument(ctx context.Context, approval *sharing.PendingApproval) (*sharing.FilteredDocument, error) {
	docs, err := q.store.ListDocuments(ctx, approval.SpaceID)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.SourceTurnID == approval.SourceTurnID {
			return doc, nil
		}
	}
	return nil, sharing.ErrNotFound
}
