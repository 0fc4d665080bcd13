// Package store provides the sharing.Store backends: in-memory for tests
// and single-process runs, SQLite for single-instance durability, and
// Postgres for shared deployments.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"hivemind-hq/scribe/pkg/sharing"
)

type artifactKey struct {
	turnID  string
	spaceID string
}

// MemoryStore keeps artifacts in process memory. All returned values are
// deep copies so callers cannot mutate stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*sharing.FilteredDocument
	approvals map[string]*sharing.PendingApproval

	// uniqueness indexes per artifact kind
	docByPair  map[artifactKey]string
	apprByPair map[artifactKey]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:  make(map[string]*sharing.FilteredDocument),
		approvals:  make(map[string]*sharing.PendingApproval),
		docByPair:  make(map[artifactKey]string),
		apprByPair: make(map[artifactKey]string),
	}
}

// SaveDocument persists a document, enforcing (turn, space) uniqueness.
func (s *MemoryStore) SaveDocument(_ context.Context, doc *sharing.FilteredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := artifactKey{doc.SourceTurnID, doc.SpaceID}
	if _, exists := s.docByPair[key]; exists {
		return sharing.ErrDuplicateArtifact
	}

	cp := cloneDocument(doc)
	s.documents[cp.ID] = cp
	s.docByPair[key] = cp.ID
	return nil
}

// GetDocument returns a document by id.
func (s *MemoryStore) GetDocument(_ context.Context, id string) (*sharing.FilteredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, sharing.ErrNotFound
	}
	return cloneDocument(doc), nil
}

// ListDocuments returns a space's documents ordered by creation time.
func (s *MemoryStore) ListDocuments(_ context.Context, spaceID string) ([]*sharing.FilteredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*sharing.FilteredDocument
	for _, doc := range s.documents {
		if doc.SpaceID == spaceID {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveApproval persists an approval, enforcing (turn, space) uniqueness.
func (s *MemoryStore) SaveApproval(_ context.Context, approval *sharing.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := artifactKey{approval.SourceTurnID, approval.SpaceID}
	if _, exists := s.apprByPair[key]; exists {
		return sharing.ErrDuplicateArtifact
	}

	cp := cloneApproval(approval)
	if cp.Status == "" {
		cp.Status = sharing.StatusPending
	}
	s.approvals[cp.ID] = cp
	s.apprByPair[key] = cp.ID
	return nil
}

// GetApproval returns an approval by id.
func (s *MemoryStore) GetApproval(_ context.Context, id string) (*sharing.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	approval, ok := s.approvals[id]
	if !ok {
		return nil, sharing.ErrNotFound
	}
	return cloneApproval(approval), nil
}

// ListPendingApprovals returns a user's pending approvals ordered by
// creation time.
func (s *MemoryStore) ListPendingApprovals(_ context.Context, userID string) ([]*sharing.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*sharing.PendingApproval
	for _, approval := range s.approvals {
		if approval.UserID == userID && approval.Status == sharing.StatusPending {
			out = append(out, cloneApproval(approval))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ResolveApproval atomically transitions pending -> terminal.
func (s *MemoryStore) ResolveApproval(_ context.Context, id string, to sharing.ApprovalStatus, resolvedAt time.Time) (*sharing.PendingApproval, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.approvals[id]
	if !ok {
		return nil, false, sharing.ErrNotFound
	}
	if approval.Status != sharing.StatusPending {
		return cloneApproval(approval), false, nil
	}

	approval.Status = to
	approval.ResolvedAt = resolvedAt
	return cloneApproval(approval), true, nil
}

// HasArtifact reports whether any artifact exists for the pair.
func (s *MemoryStore) HasArtifact(_ context.Context, turnID, spaceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := artifactKey{turnID, spaceID}
	if _, ok := s.docByPair[key]; ok {
		return true, nil
	}
	_, ok := s.apprByPair[key]
	return ok, nil
}

// ExpireApprovals transitions overdue pending approvals to expired.
func (s *MemoryStore) ExpireApprovals(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, approval := range s.approvals {
		if approval.Status == sharing.StatusPending && !approval.ExpiresAt.After(now) {
			approval.Status = sharing.StatusExpired
			approval.ResolvedAt = now
			expired++
		}
	}
	return expired, nil
}

// CountPendingApprovals returns the pending approval count across all users.
func (s *MemoryStore) CountPendingApprovals(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, approval := range s.approvals {
		if approval.Status == sharing.StatusPending {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func cloneDocument(doc *sharing.FilteredDocument) *sharing.FilteredDocument {
	cp := *doc
	cp.OriginalTopics = append([]string(nil), doc.OriginalTopics...)
	cp.FilteredTopics = append([]string(nil), doc.FilteredTopics...)
	return &cp
}

func cloneApproval(approval *sharing.PendingApproval) *sharing.PendingApproval {
	cp := *approval
	return &cp
}

var _ sharing.Store = (*MemoryStore)(nil)
