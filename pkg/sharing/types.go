package sharing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"hivemind-hq/scribe/pkg/spaces"
)

// FilteredDocument is transformed content shared into a space. It is the
// only rendering of a conversation turn that members other than the author
// ever see.
type FilteredDocument struct {
	ID           string `json:"doc_id"`
	SpaceID      string `json:"space_id"`
	SourceTurnID string `json:"source_turn_id"`
	AuthorID     string `json:"author_user_id"`
	Content      string `json:"content"`

	// OriginalTopics are the topics tagged on the source turn;
	// FilteredTopics are the policy criteria the classifier matched.
	OriginalTopics []string `json:"original_topics,omitempty"`
	FilteredTopics []string `json:"filtered_topics,omitempty"`

	Attribution spaces.AttributionLevel `json:"attribution_level"`

	// DisplayName and ContactMethod are populated only under full
	// attribution.
	DisplayName   string `json:"display_name,omitempty"`
	ContactMethod string `json:"contact_method,omitempty"`

	Confidence  float64 `json:"confidence_score"`
	Sensitivity float64 `json:"sensitivity_score"`

	// ApprovedBy is set when the document was created by resolving a
	// pending approval rather than by an auto-share.
	ApprovedBy string `json:"approved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ApprovalStatus is the lifecycle state of a pending approval. Transitions
// out of pending are terminal.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	StatusExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// PendingApproval is transformed content held for the author's decision.
type PendingApproval struct {
	ID              string `json:"approval_id"`
	UserID          string `json:"user_id"`
	SpaceID         string `json:"space_id"`
	SourceTurnID    string `json:"source_turn_id"`
	ProposedContent string `json:"proposed_content"`

	// Reason explains why the router queued this instead of sharing.
	Reason string `json:"reason_for_approval"`

	Confidence  float64 `json:"confidence_score"`
	Sensitivity float64 `json:"sensitivity_score"`

	Status     ApprovalStatus `json:"status"`
	ResolvedAt time.Time      `json:"resolved_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewDocumentID mints a document identifier.
func NewDocumentID() string { return newID("doc") }

// NewApprovalID mints an approval identifier.
func NewApprovalID() string { return newID("appr") }

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Store persists sharing artifacts. Implementations must be safe for
// concurrent use and must enforce (source turn, space) uniqueness per
// artifact kind.
type Store interface {
	// SaveDocument persists a document. Returns ErrDuplicateArtifact when a
	// document for the same (source turn, space) pair exists.
	SaveDocument(ctx context.Context, doc *FilteredDocument) error

	// GetDocument returns a document by id, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*FilteredDocument, error)

	// ListDocuments returns a space's documents ordered by creation time.
	ListDocuments(ctx context.Context, spaceID string) ([]*FilteredDocument, error)

	// SaveApproval persists a pending approval. Returns
	// ErrDuplicateArtifact when an approval for the same
	// (source turn, space) pair exists.
	SaveApproval(ctx context.Context, approval *PendingApproval) error

	// GetApproval returns an approval by id, or ErrNotFound.
	GetApproval(ctx context.Context, id string) (*PendingApproval, error)

	// ListPendingApprovals returns a user's approvals still in the pending
	// state, ordered by creation time.
	ListPendingApprovals(ctx context.Context, userID string) ([]*PendingApproval, error)

	// ResolveApproval atomically moves an approval from pending to a
	// terminal status. It returns the post-call state of the approval and
	// whether this call performed the transition. When the approval was
	// already terminal the returned state is unchanged and swapped is
	// false. Returns ErrNotFound for unknown ids.
	ResolveApproval(ctx context.Context, id string, to ApprovalStatus, resolvedAt time.Time) (approval *PendingApproval, swapped bool, err error)

	// HasArtifact reports whether any artifact, document or approval,
	// exists for the (source turn, space) pair.
	HasArtifact(ctx context.Context, turnID, spaceID string) (bool, error)

	// ExpireApprovals moves every pending approval whose deadline has
	// passed to the expired status and returns how many were moved.
	ExpireApprovals(ctx context.Context, now time.Time) (int, error)

	// CountPendingApprovals returns how many approvals are in the pending
	// state across all users, used to seed the pending gauge at startup.
	CountPendingApprovals(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
