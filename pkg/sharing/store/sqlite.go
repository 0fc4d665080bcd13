package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"hivemind-hq/scribe/pkg/sharing"
)

// SQLiteStore implements sharing.Store on a single SQLite file. It is
// suitable for single-instance deployments that need artifacts to survive
// restarts.
//
// The database runs in WAL mode with periodic passive checkpoints. The
// (source_turn_id, space_id) uniqueness that makes routing idempotent is
// enforced by unique indexes rather than application checks, so concurrent
// writers cannot race past it.
type SQLiteStore struct {
	db                 *sql.DB
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes.
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (and if needed creates) the database at path with
// default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens the database with custom settings.
func NewSQLiteStoreWithConfig(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:                 db,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	go s.checkpointLoop()

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

// SaveDocument persists a document. The unique index on
// (source_turn_id, space_id) turns races into ErrDuplicateArtifact.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *sharing.FilteredDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filtered_documents (
			doc_id, space_id, source_turn_id, author_user_id, content,
			original_topics, filtered_topics, attribution_level,
			display_name, contact_method, confidence_score, sensitivity_score,
			approved_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.SpaceID, doc.SourceTurnID, doc.AuthorID, doc.Content,
		joinTopics(doc.OriginalTopics), joinTopics(doc.FilteredTopics), string(doc.Attribution),
		doc.DisplayName, doc.ContactMethod, doc.Confidence, doc.Sensitivity,
		doc.ApprovedBy, doc.CreatedAt.UnixMilli(),
	)
	if isSQLiteConstraint(err) {
		return sharing.ErrDuplicateArtifact
	}
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*sharing.FilteredDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, space_id, source_turn_id, author_user_id, content,
		       original_topics, filtered_topics, attribution_level,
		       display_name, contact_method, confidence_score, sensitivity_score,
		       approved_by, created_at
		FROM filtered_documents WHERE doc_id = ?`, id)

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
func (s *SQLiteStore) ListDocuments(ctx context.Context, spaceID string) ([]*sharing.FilteredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, space_id, source_turn_id, author_user_id, content,
		       original_topics, filtered_topics, attribution_level,
		       display_name, contact_method, confidence_score, sensitivity_score,
		       approved_by, created_at
		FROM filtered_documents WHERE space_id = ?
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
func (s *SQLiteStore) SaveApproval(ctx context.Context, approval *sharing.PendingApproval) error {
	status := approval.Status
	if status == "" {
		status = sharing.StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_approvals (
			approval_id, user_id, space_id, source_turn_id, proposed_content,
			reason, confidence_score, sensitivity_score, status,
			resolved_at, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		approval.ID, approval.UserID, approval.SpaceID, approval.SourceTurnID, approval.ProposedContent,
		approval.Reason, approval.Confidence, approval.Sensitivity, string(status),
		timeToMilli(approval.ResolvedAt), approval.CreatedAt.UnixMilli(), approval.ExpiresAt.UnixMilli(),
	)
	if isSQLiteConstraint(err) {
		return sharing.ErrDuplicateArtifact
	}
	if err != nil {
		return fmt.Errorf("saving approval: %w", err)
	}
	return nil
}

// GetApproval returns an approval by id.
func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (*sharing.PendingApproval, error) {
	row := s.db.QueryRowContext(ctx, selectApproval+` WHERE approval_id = ?`, id)

	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading approval: %w", err)
	}
	return approval, nil
}

// ListPendingApprovals returns a user's pending approvals ordered by
// creation time.
func (s *SQLiteStore) ListPendingApprovals(ctx context.Context, userID string) ([]*sharing.PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx,
		selectApproval+` WHERE user_id = ? AND status = ? ORDER BY created_at, approval_id`,
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
func (s *SQLiteStore) ResolveApproval(ctx context.Context, id string, to sharing.ApprovalStatus, resolvedAt time.Time) (*sharing.PendingApproval, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_approvals SET status = ?, resolved_at = ?
		WHERE approval_id = ? AND status = ?`,
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
func (s *SQLiteStore) HasArtifact(ctx context.Context, turnID, spaceID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(1) FROM filtered_documents WHERE source_turn_id = ? AND space_id = ?) +
			(SELECT COUNT(1) FROM pending_approvals  WHERE source_turn_id = ? AND space_id = ?)`,
		turnID, spaceID, turnID, spaceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking artifact: %w", err)
	}
	return n > 0, nil
}

// ExpireApprovals transitions overdue pending approvals to expired.
func (s *SQLiteStore) ExpireApprovals(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_approvals SET status = ?, resolved_at = ?
		WHERE status = ? AND expires_at <= ?`,
		string(sharing.StatusExpired), now.UnixMilli(),
		string(sharing.StatusPending), now.UnixMilli())
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
func (s *SQLiteStore) CountPendingApprovals(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pending_approvals WHERE status = ?`,
		string(sharing.StatusPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending approvals: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

var _ sharing.Store = (*SQLiteStore)(nil)
