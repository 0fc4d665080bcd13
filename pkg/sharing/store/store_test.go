package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/spaces"
)

// backends under test; postgres needs a live server and is covered by the
// same suite through TestPostgresStore when SCRIBE_TEST_POSTGRES_DSN is set.
func testStores(t *testing.T) map[string]sharing.Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "scribe.db"))
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]sharing.Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func testDocument(turnID, spaceID string) *sharing.FilteredDocument {
	return &sharing.FilteredDocument{
		ID:             sharing.NewDocumentID(),
		SpaceID:        spaceID,
		SourceTurnID:   turnID,
		AuthorID:       "user_a",
		Content:        "feeling good about progress",
		OriginalTopics: []string{"work"},
		FilteredTopics: []string{"work_progress"},
		Attribution:    spaces.AttributionFull,
		DisplayName:    "Alex",
		Confidence:     0.8,
		Sensitivity:    0.3,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testApproval(turnID, spaceID string) *sharing.PendingApproval {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &sharing.PendingApproval{
		ID:              sharing.NewApprovalID(),
		UserID:          "user_a",
		SpaceID:         spaceID,
		SourceTurnID:    turnID,
		ProposedContent: "something sensitive",
		Reason:          "sensitivity 0.7 above ceiling",
		Confidence:      0.9,
		Sensitivity:     0.7,
		Status:          sharing.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(7 * 24 * time.Hour),
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := testDocument("turn_1", "spc_1")

			if err := s.SaveDocument(ctx, doc); err != nil {
				t.Fatalf("SaveDocument: %v", err)
			}

			got, err := s.GetDocument(ctx, doc.ID)
			if err != nil {
				t.Fatalf("GetDocument: %v", err)
			}
			if got.Content != doc.Content || got.AuthorID != doc.AuthorID {
				t.Errorf("round trip mismatch: %+v", got)
			}
			if len(got.FilteredTopics) != 1 || got.FilteredTopics[0] != "work_progress" {
				t.Errorf("topics lost: %v", got.FilteredTopics)
			}
			if got.Attribution != spaces.AttributionFull || got.DisplayName != "Alex" {
				t.Errorf("attribution lost: %+v", got)
			}

			if _, err := s.GetDocument(ctx, "doc_missing"); !errors.Is(err, sharing.ErrNotFound) {
				t.Errorf("missing document err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDocumentDuplicatePair(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.SaveDocument(ctx, testDocument("turn_1", "spc_1")); err != nil {
				t.Fatal(err)
			}

			err := s.SaveDocument(ctx, testDocument("turn_1", "spc_1"))
			if !errors.Is(err, sharing.ErrDuplicateArtifact) {
				t.Errorf("duplicate save err = %v, want ErrDuplicateArtifact", err)
			}

			// Different space is a different artifact.
			if err := s.SaveDocument(ctx, testDocument("turn_1", "spc_2")); err != nil {
				t.Errorf("save to other space: %v", err)
			}
		})
	}
}

func TestListDocumentsOrdered(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)
			for i := 0; i < 3; i++ {
				doc := testDocument(spaces.NewTurnID(), "spc_list")
				doc.CreatedAt = base.Add(time.Duration(2-i) * time.Minute)
				if err := s.SaveDocument(ctx, doc); err != nil {
					t.Fatal(err)
				}
			}

			docs, err := s.ListDocuments(ctx, "spc_list")
			if err != nil {
				t.Fatal(err)
			}
			if len(docs) != 3 {
				t.Fatalf("got %d documents, want 3", len(docs))
			}
			for i := 1; i < len(docs); i++ {
				if docs[i-1].CreatedAt.After(docs[i].CreatedAt) {
					t.Error("documents not ordered by creation time")
				}
			}
		})
	}
}

func TestApprovalLifecycle(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			approval := testApproval("turn_1", "spc_1")
			if err := s.SaveApproval(ctx, approval); err != nil {
				t.Fatalf("SaveApproval: %v", err)
			}

			pending, err := s.ListPendingApprovals(ctx, "user_a")
			if err != nil {
				t.Fatal(err)
			}
			if len(pending) != 1 || pending[0].ID != approval.ID {
				t.Fatalf("pending list = %+v", pending)
			}

			resolvedAt := time.Now().UTC().Truncate(time.Millisecond)
			got, swapped, err := s.ResolveApproval(ctx, approval.ID, sharing.StatusApproved, resolvedAt)
			if err != nil {
				t.Fatalf("ResolveApproval: %v", err)
			}
			if !swapped {
				t.Fatal("first resolve did not swap")
			}
			if got.Status != sharing.StatusApproved || got.ResolvedAt.IsZero() {
				t.Errorf("resolved state = %+v", got)
			}

			// Second resolve does not swap and reports the settled state.
			got, swapped, err = s.ResolveApproval(ctx, approval.ID, sharing.StatusRejected, resolvedAt)
			if err != nil {
				t.Fatal(err)
			}
			if swapped {
				t.Error("second resolve swapped a terminal approval")
			}
			if got.Status != sharing.StatusApproved {
				t.Errorf("terminal status changed to %q", got.Status)
			}

			// Resolved approvals leave the pending list.
			pending, err = s.ListPendingApprovals(ctx, "user_a")
			if err != nil {
				t.Fatal(err)
			}
			if len(pending) != 0 {
				t.Errorf("pending list still has %d entries", len(pending))
			}

			if _, _, err := s.ResolveApproval(ctx, "appr_missing", sharing.StatusApproved, resolvedAt); !errors.Is(err, sharing.ErrNotFound) {
				t.Errorf("missing approval err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestHasArtifactCoversBothKinds(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.HasArtifact(ctx, "turn_1", "spc_1")
			if err != nil || ok {
				t.Fatalf("empty store HasArtifact = %v, %v", ok, err)
			}

			if err := s.SaveDocument(ctx, testDocument("turn_1", "spc_1")); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.HasArtifact(ctx, "turn_1", "spc_1"); !ok {
				t.Error("document not visible to HasArtifact")
			}

			if err := s.SaveApproval(ctx, testApproval("turn_2", "spc_1")); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.HasArtifact(ctx, "turn_2", "spc_1"); !ok {
				t.Error("approval not visible to HasArtifact")
			}
		})
	}
}

func TestExpireApprovals(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)

			overdue := testApproval("turn_1", "spc_1")
			overdue.ExpiresAt = now.Add(-time.Hour)
			fresh := testApproval("turn_2", "spc_1")
			fresh.ExpiresAt = now.Add(time.Hour)

			for _, a := range []*sharing.PendingApproval{overdue, fresh} {
				if err := s.SaveApproval(ctx, a); err != nil {
					t.Fatal(err)
				}
			}

			n, err := s.ExpireApprovals(ctx, now)
			if err != nil {
				t.Fatalf("ExpireApprovals: %v", err)
			}
			if n != 1 {
				t.Fatalf("expired %d approvals, want 1", n)
			}

			got, err := s.GetApproval(ctx, overdue.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != sharing.StatusExpired {
				t.Errorf("overdue approval status = %q", got.Status)
			}
			got, err = s.GetApproval(ctx, fresh.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != sharing.StatusPending {
				t.Errorf("fresh approval status = %q", got.Status)
			}

			// Expired approvals cannot be resolved afterwards.
			_, swapped, err := s.ResolveApproval(ctx, overdue.ID, sharing.StatusApproved, now)
			if err != nil {
				t.Fatal(err)
			}
			if swapped {
				t.Error("expired approval was resolved")
			}
		})
	}
}

func TestCountPendingApprovals(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)

			n, err := s.CountPendingApprovals(ctx)
			if err != nil {
				t.Fatalf("CountPendingApprovals: %v", err)
			}
			if n != 0 {
				t.Fatalf("empty store count = %d", n)
			}

			first := testApproval("turn_1", "spc_1")
			second := testApproval("turn_2", "spc_1")
			overdue := testApproval("turn_3", "spc_1")
			overdue.ExpiresAt = now.Add(-time.Hour)
			for _, a := range []*sharing.PendingApproval{first, second, overdue} {
				if err := s.SaveApproval(ctx, a); err != nil {
					t.Fatal(err)
				}
			}

			if n, _ = s.CountPendingApprovals(ctx); n != 3 {
				t.Fatalf("count = %d, want 3", n)
			}

			// Resolutions and expiry both remove entries from the count.
			if _, _, err := s.ResolveApproval(ctx, first.ID, sharing.StatusApproved, now); err != nil {
				t.Fatal(err)
			}
			if _, err := s.ExpireApprovals(ctx, now); err != nil {
				t.Fatal(err)
			}

			if n, _ = s.CountPendingApprovals(ctx); n != 1 {
				t.Errorf("count after resolve and expire = %d, want 1", n)
			}
		})
	}
}

func TestMemoryStoreDeepCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := testDocument("turn_1", "spc_1")
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	doc.Content = "mutated after save"

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content == "mutated after save" {
		t.Error("mutating the saved value leaked into the store")
	}

	got.FilteredTopics[0] = "mutated"
	again, _ := s.GetDocument(ctx, doc.ID)
	if again.FilteredTopics[0] == "mutated" {
		t.Error("mutating a returned value leaked into the store")
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := testDocument("turn_1", "spc_1")
	if err := first.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	got, err := second.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("document lost across reopen: %v", err)
	}
	if got.Content != doc.Content {
		t.Errorf("content = %q, want %q", got.Content, doc.Content)
	}
}
