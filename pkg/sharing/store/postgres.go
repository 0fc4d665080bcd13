package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"hivemind-hq/scribe/pkg/sharing"
)

// pq unique_violation
const pgUniqueViolation = "23505"

// PostgresStore implements sharing.Store on PostgreSQL for deployments
// where multiple router instances share one artifact store. Uniqueness and
// the approval CAS rely on the database, so instances need no coordination
// beyond their connections.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig configures the Postgres store.
type PostgresConfig struct {
	// DSN is a lib/pq connection string, e.g.
	// "postgres://scribe:secret@db:5432/scribe?sslmode=disable".
	DSN string

	// MaxOpenConns bounds the pool. Default: 10.
	MaxOpenConns int

	// ConnMaxLifetime recycles connections. Default: 30 minutes.
	ConnMaxLifetime time.Duration
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

const postgresSchema = `
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
	confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	sensitivity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	approved_by       TEXT NOT NULL DEFAULT '',
	created_at        BIGINT NOT NULL
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
	confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	sensitivity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'pending',
	resolved_at       BIGINT NOT NULL DEFAULT 0,
	created_at        BIGINT NOT NULL,
	expires_at        BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_turn_space
	ON pending_approvals(source_turn_id, space_id);
CREATE INDEX IF NOT EXISTS idx_approvals_user_status
	ON pending_approvals(user_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_approvals_expiry
	ON pending_approvals(status, expires_at);
`

// SaveDocument persists a document.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc *sharing.FilteredDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filtered_documents (
			doc_id, space_id, source_turn_id, author_user_id, content,
			original_topics, filtered_topics, attribution_level,
			display_name, contact_method, confidence_score, sensitivity_score,
			approved_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		doc.ID, doc.SpaceID, doc.SourceTurnID, doc.AuthorID, doc.Content,
		joinTopics(doc.OriginalTopics), joinTopics(doc.FilteredTopics), string(doc.Attribution),
		doc.DisplayName, doc.ContactMethod, doc.Confidence, doc.Sensitivity,
		doc.ApprovedBy, doc.CreatedAt.UnixMilli(),
	)
	if isPGUniqueViolation(err) {
		return sharing.ErrDuplicateArtifact
	}
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*sharing.FilteredDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, space_id, source_turn_id, author_user_id, content,
		       original_topics, filtered_topics, attribution_level,
		       display_name, contact_method, confidence_score, sensitivity_score,
		       approved_by, created_at
		FROM filtered_documents WHERE doc_id = $1`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns a space's documents ordered by creation time.
func (s *PostgresStore) ListDocuments(ctx context.Context, spaceID string) ([]*sharing.FilteredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, space_id, source_turn_id, author_user_id, content,
		       original_topics, filtered_topics, attribution_level,
		       display_name, contact_method, confidence_score, sensitivity_score,
		       approved_by, created_at
		FROM filtered_documents WHERE space_id = $1
		ORDER BY created_at, doc_id`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*sharing.FilteredDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SaveApproval persists an approval.
func (s *PostgresStore) SaveApproval(ctx context.Context, approval *sharing.PendingApproval) error {
	status := approval.Status
	if status == "" {
		status = sharing.StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_approvals (
			approval_id, user_id, space_id, source_turn_id, proposed_content,
			reason, confidence_score, sensitivity_score, status,
			resolved_at, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		approval.ID, approval.UserID, approval.SpaceID, approval.SourceTurnID, approval.ProposedContent,
		approval.Reason, approval.Confidence, approval.Sensitivity, string(status),
		timeToMilli(approval.ResolvedAt), approval.CreatedAt.UnixMilli(), approval.ExpiresAt.UnixMilli(),
	)
	if isPGUniqueViolation(err) {
		return sharing.ErrDuplicateArtifact
	}
	if err != nil {
		return fmt.Errorf("saving approval: %w", err)
	}
	return nil
}

// GetApproval returns an approval by id.
func (s *PostgresStore) GetApproval(ctx context.Context, id string) (*sharing.PendingApproval, error) {
	row := s.db.QueryRowContext(ctx, selectApproval+` WHERE approval_id = $1`, id)

	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading approval: %w", err)
	}
	return approval, nil
}

// ListPendingApprovals returns a user's pending approvals.
func (s *PostgresStore) ListPendingApprovals(ctx context.Context, userID string) ([]*sharing.PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx,
		selectApproval+` WHERE user_id = $1 AND status = $2 ORDER BY created_at, approval_id`,
		userID, string(sharing.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("listing approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*sharing.PendingApproval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning approval: %w", err)
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// ResolveApproval performs the pending -> terminal transition as a guarded
// UPDATE, then reads back the row.
func (s *PostgresStore) ResolveApproval(ctx context.Context, id string, to sharing.ApprovalStatus, resolvedAt time.Time) (*sharing.PendingApproval, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_approvals SET status = $1, resolved_at = $2
		WHERE approval_id = $3 AND status = $4`,
		string(to), resolvedAt.UnixMilli(), id, string(sharing.StatusPending))
	if err != nil {
		return nil, false, fmt.Errorf("resolving approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("resolving approval: %w", err)
	}

	approval, err := s.GetApproval(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return approval, affected == 1, nil
}

// HasArtifact reports whether any artifact exists for the pair.
func (s *PostgresStore) HasArtifact(ctx context.Context, turnID, spaceID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(1) FROM filtered_documents WHERE source_turn_id = $1 AND space_id = $2) +
			(SELECT COUNT(1) FROM pending_approvals  WHERE source_turn_id = $1 AND space_id = $2)`,
		turnID, spaceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking artifact: %w", err)
	}
	return n > 0, nil
}

// ExpireApprovals transitions overdue pending approvals to expired.
func (s *PostgresStore) ExpireApprovals(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_approvals SET status = $1, resolved_at = $2
		WHERE status = $3 AND expires_at <= $2`,
		string(sharing.StatusExpired), now.UnixMilli(), string(sharing.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("expiring approvals: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expiring approvals: %w", err)
	}
	return int(affected), nil
}

// CountPendingApprovals returns the pending approval count across all users.
func (s *PostgresStore) CountPendingApprovals(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pending_approvals WHERE status = $1`,
		string(sharing.StatusPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending approvals: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isPGUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

var _ sharing.Store = (*PostgresStore)(nil)
