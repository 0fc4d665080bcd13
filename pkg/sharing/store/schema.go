package store

import (
	"strings"
	"time"

	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/spaces"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS filtered_documents (
	doc_id            TEXT PRIMARY KEY,
	space_id          TEXT NOT NULL,
	source_turn_id    TEXT NOT NULL,
	author_user_id    TEXT NOT NULL,
	content           TEXT NOT NULL,
	original_topics   TEXT NOT NULL DEFAULT '',
	filtered_topics   TEXT NOT NULL DEFAULT '',
	attribution_level TEXT NOT NULL,
	display_name      TEXT NOT NULL DEFAULT '',
	contact_method    TEXT NOT NULL DEFAULT '',
	confidence_score  REAL NOT NULL DEFAULT 0,
	sensitivity_score REAL NOT NULL DEFAULT 0,
	approved_by       TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_turn_space
	ON filtered_documents(source_turn_id, space_id);
CREATE INDEX IF NOT EXISTS idx_documents_space
	ON filtered_documents(space_id, created_at);

CREATE TABLE IF NOT EXISTS pending_approvals (
	approval_id       TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	space_id          TEXT NOT NULL,
	source_turn_id    TEXT NOT NULL,
	proposed_content  TEXT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	confidence_score  REAL NOT NULL DEFAULT 0,
	sensitivity_score REAL NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'pending',
	resolved_at       INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	expires_at        INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_turn_space
	ON pending_approvals(source_turn_id, space_id);
CREATE INDEX IF NOT EXISTS idx_approvals_user_status
	ON pending_approvals(user_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_approvals_expiry
	ON pending_approvals(status, expires_at);
`

const selectApproval = `
	SELECT approval_id, user_id, space_id, source_turn_id, proposed_content,
	       reason, confidence_score, sensitivity_score, status,
	       resolved_at, created_at, expires_at
	FROM pending_approvals`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*sharing.FilteredDocument, error) {
	var (
		doc                              sharing.FilteredDocument
		originalTopics, filteredTopics   string
		attribution                      string
		createdAt                        int64
	)
	err := row.Scan(
		&doc.ID, &doc.SpaceID, &doc.SourceTurnID, &doc.AuthorID, &doc.Content,
		&originalTopics, &filteredTopics, &attribution,
		&doc.DisplayName, &doc.ContactMethod, &doc.Confidence, &doc.Sensitivity,
		&doc.ApprovedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	doc.OriginalTopics = splitTopics(originalTopics)
	doc.FilteredTopics = splitTopics(filteredTopics)
	doc.Attribution = spaces.AttributionLevel(attribution)
	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &doc, nil
}

func scanApproval(row rowScanner) (*sharing.PendingApproval, error) {
	var (
		approval               sharing.PendingApproval
		status                 string
		resolvedAt, createdAt  int64
		expiresAt              int64
	)
	err := row.Scan(
		&approval.ID, &approval.UserID, &approval.SpaceID, &approval.SourceTurnID, &approval.ProposedContent,
		&approval.Reason, &approval.Confidence, &approval.Sensitivity, &status,
		&resolvedAt, &createdAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	approval.Status = sharing.ApprovalStatus(status)
	if resolvedAt != 0 {
		approval.ResolvedAt = time.UnixMilli(resolvedAt).UTC()
	}
	approval.CreatedAt = time.UnixMilli(createdAt).UTC()
	approval.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &approval, nil
}

// joinTopics packs a topic list into one column. Topics are identifiers
// (no commas), so a simple separator is enough.
func joinTopics(topics []string) string {
	return strings.Join(topics, ",")
}

func splitTopics(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func timeToMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
