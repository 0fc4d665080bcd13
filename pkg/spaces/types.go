package spaces

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SpaceType classifies a space by its sharing audience.
type SpaceType string

const (
	// TypePairwise is a two-person space (partner, close friend).
	TypePairwise SpaceType = "pairwise"
	// TypeGroup is a multi-person space (team, support circle).
	TypeGroup SpaceType = "group"
	// TypePublic is a broadcast space open to any member count.
	TypePublic SpaceType = "public"
)

// Valid reports whether the space type is one of the known values.
func (t SpaceType) Valid() bool {
	switch t {
	case TypePairwise, TypeGroup, TypePublic:
		return true
	}
	return false
}

// Capacity returns the maximum member count for the type, or 0 for unlimited.
func (t SpaceType) Capacity() int {
	if t == TypePairwise {
		return 2
	}
	return 0
}

// DetailLevel controls how much specificity survives transformation.
type DetailLevel string

const (
	DetailLow    DetailLevel = "low"
	DetailMedium DetailLevel = "medium"
	DetailHigh   DetailLevel = "high"
)

// Valid reports whether the detail level is one of the known values.
func (d DetailLevel) Valid() bool {
	switch d {
	case DetailLow, DetailMedium, DetailHigh:
		return true
	}
	return false
}

// AttributionLevel controls how shared documents identify their author.
type AttributionLevel string

const (
	// AttributionFull shares display name and contact method.
	AttributionFull AttributionLevel = "full"
	// AttributionPseudonym shares a consistent id without contact details.
	AttributionPseudonym AttributionLevel = "pseudonym"
	// AttributionAnonymous shares no author information.
	AttributionAnonymous AttributionLevel = "anonymous"
)

// Role is a member's role within a space. Roles are currently
// undifferentiated beyond creator-only policy edits; the owner role exists
// so the distinction is recorded at join time.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// User is a participant identity. Users reference spaces through
// membership rows; they do not own spaces.
type User struct {
	ID            string    `json:"user_id" yaml:"user_id"`
	DisplayName   string    `json:"display_name" yaml:"display_name"`
	ContactMethod string    `json:"contact_method,omitempty" yaml:"contact_method,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// TransformationRules describe how content is rewritten before sharing.
type TransformationRules struct {
	// RemoveNames replaces person names with generic placeholders.
	RemoveNames bool `json:"remove_names" yaml:"remove_names"`

	// RemoveLocations generalizes specific locations.
	RemoveLocations bool `json:"remove_locations" yaml:"remove_locations"`

	// RemoveOrganizations replaces organization names with placeholders.
	RemoveOrganizations bool `json:"remove_organizations" yaml:"remove_organizations"`

	// GeneralizeSituations rewrites specific situations into general ones.
	GeneralizeSituations bool `json:"generalize_situations" yaml:"generalize_situations"`

	// PreserveEmotionalTone keeps the emotional register of the original.
	PreserveEmotionalTone bool `json:"preserve_emotional_tone" yaml:"preserve_emotional_tone"`

	// DetailLevel clamps how much specificity the shared rendering keeps.
	DetailLevel DetailLevel `json:"detail_level" yaml:"detail_level"`

	// CustomPrompt is free-form guidance passed to the classifier.
	CustomPrompt string `json:"custom_prompt,omitempty" yaml:"custom_prompt,omitempty"`
}

// Policy is the disclosure rule set governing one space. A Policy is created
// with its space (usually from a catalog template) and is mutable only by
// the space's creator afterwards.
type Policy struct {
	ID      string `json:"policy_id" yaml:"policy_id"`
	Version int    `json:"version" yaml:"version"`

	// InclusionCriteria are named topics that justify sharing.
	InclusionCriteria []string `json:"inclusion_criteria" yaml:"inclusion_criteria"`

	// ExclusionCriteria are named topics that veto sharing even when the
	// content is otherwise relevant. Exclusion always wins over inclusion.
	ExclusionCriteria []string `json:"exclusion_criteria" yaml:"exclusion_criteria"`

	// Transformation controls how relevant content is rewritten.
	Transformation TransformationRules `json:"transformation_rules" yaml:"transformation_rules"`

	// Attribution controls author identification on shared documents.
	Attribution AttributionLevel `json:"attribution_level" yaml:"attribution_level"`

	// TriggerKeywords force a relevance match when present in a turn.
	TriggerKeywords []string `json:"trigger_keywords,omitempty" yaml:"trigger_keywords,omitempty"`

	// AutoApproveThreshold is the minimum classifier confidence for a share
	// without human review.
	AutoApproveThreshold float64 `json:"auto_approve_threshold" yaml:"auto_approve_threshold"`

	// MandatoryApprovalCeiling routes content to human review whenever the
	// sensitivity score meets or exceeds it, regardless of confidence.
	// Zero disables the ceiling.
	MandatoryApprovalCeiling float64 `json:"mandatory_approval_ceiling" yaml:"mandatory_approval_ceiling"`

	// RequireApprovalIf holds CEL expressions over (confidence, sensitivity,
	// topics, content); any expression evaluating true forces human review.
	RequireApprovalIf []string `json:"require_approval_if,omitempty" yaml:"require_approval_if,omitempty"`

	// HighSensitivityTopics always force human review when matched.
	HighSensitivityTopics []string `json:"high_sensitivity_topics,omitempty" yaml:"high_sensitivity_topics,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ExcludesTopic reports whether the topic appears verbatim in the policy's
// exclusion criteria.
func (p *Policy) ExcludesTopic(topic string) bool {
	for _, c := range p.ExclusionCriteria {
		if c == topic {
			return true
		}
	}
	return false
}

// SpaceMember records one user's membership in one space.
type SpaceMember struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	Role     Role      `json:"role"`
}

// Space is a sharing destination with exactly one policy, an invite code
// unique across all live spaces, and an ordered membership list.
type Space struct {
	ID         string        `json:"space_id"`
	Name       string        `json:"name"`
	Type       SpaceType     `json:"space_type"`
	CreatedBy  string        `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`
	InviteCode string        `json:"invite_code"`
	Policy     Policy        `json:"policy"`
	Members    []SpaceMember `json:"members"`

	// Retired marks a soft-deleted space: excluded from lookups and
	// listings but never hard-deleted while documents reference it.
	Retired bool `json:"retired,omitempty"`
}

// IsMember reports whether the user appears in the membership list.
func (s *Space) IsMember(userID string) bool {
	for _, m := range s.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Turn is one raw conversation turn produced by a user. Raw turns never
// leave the user's trust boundary; only filtered artifacts derived from
// them are persisted into spaces.
type Turn struct {
	ID               string    `json:"turn_id"`
	UserID           string    `json:"user_id"`
	Timestamp        time.Time `json:"timestamp"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	Topics           []string  `json:"topics,omitempty"`
}

// NewTurnID mints a turn identifier.
func NewTurnID() string {
	return newID("turn")
}

// newID mints a prefixed opaque identifier, e.g. "spc_1f3a9c0b4d2e".
func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
