package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"
)

func createTestDocument(t *testing.T, db *sql.DB, id, userID string) *Document {
	t.Helper()
	doc := &Document{
		ID:        id,
		UserID:    userID,
		Filename:  id + ".pdf",
		FileType:  FileTypePDF,
		Namespace: NamespaceFor(userID, id),
	}
	if err := NewDocumentRepo(db).Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return doc
}

func intPtr(v int) *int { return &v }

func TestNamespaceFor(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	for _, userID := range []string{"u1", "alice@example.com", "Nguyễn Văn A", "../etc"} {
		got := NamespaceFor(userID, "d1")
		if !valid.MatchString(got) {
			t.Errorf("NamespaceFor(%q) = %q, not a valid index name", userID, got)
		}
		if got != NamespaceFor(userID, "d1") {
			t.Errorf("NamespaceFor(%q) is not stable", userID)
		}
	}
	if NamespaceFor("alice@example.com", "d1") == NamespaceFor("bob@example.com", "d1") {
		t.Error("different users share a namespace")
	}
}

func TestDocumentRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewDocumentRepo(db)

	createTestDocument(t, db, "d1", "u1")
	createTestDocument(t, db, "d2", "u1")
	createTestDocument(t, db, "d3", "u2")

	got, err := repo.GetByID(ctx, "d1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.UserID != "u1" || got.FileType != FileTypePDF || got.IsEmbedded {
		t.Errorf("GetByID() = %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}

	docs, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("ListByUser() returned %d documents, want 2", len(docs))
	}

	if err := repo.UpdateChunkCount(ctx, "d1", 7); err != nil {
		t.Fatalf("UpdateChunkCount() error = %v", err)
	}
	if err := repo.MarkEmbedded(ctx, "d1", "granite", 768); err != nil {
		t.Fatalf("MarkEmbedded() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, "d1")
	if got.ChunkCount != 7 || !got.IsEmbedded || got.EmbeddingModel != "granite" || got.EmbeddingDimension != 768 {
		t.Errorf("after updates document = %+v", got)
	}

	if err := repo.MarkEmbedded(ctx, "missing", "m", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkEmbedded(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createTestDocument(t, db, "d1", "u1")

	chunks := NewChunkRepo(db)
	embeddings := NewEmbeddingRepo(db)
	if err := chunks.InsertBatch(ctx, []*Chunk{{ID: "c0", DocumentID: "d1", ChunkIndex: 0, Content: "x"}}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if err := embeddings.InsertBatch(ctx, []*EmbeddingRecord{{
		ID: "e0", DocumentID: "d1", ChunkID: "c0", VectorIndex: 0, EmbeddingModel: "m", Provider: "local",
	}}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := NewDocumentRepo(db).Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	left, err := chunks.ListByDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("chunks not cascaded, %d left", len(left))
	}
	next, err := embeddings.NextVectorIndex(ctx, "d1")
	if err != nil {
		t.Fatalf("NextVectorIndex() error = %v", err)
	}
	if next != 0 {
		t.Errorf("embeddings not cascaded, next index = %d", next)
	}

	if err := NewDocumentRepo(db).Delete(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestChunkRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createTestDocument(t, db, "d1", "u1")
	repo := NewChunkRepo(db)

	var batch []*Chunk
	for i := 0; i < 5; i++ {
		batch = append(batch, &Chunk{
			ID:         string(rune('a' + i)),
			DocumentID: "d1",
			ChunkIndex: i,
			Content:    "chunk text",
			Metadata:   ChunkMetadata{PageNumber: intPtr(i + 1), Section: "1." + string(rune('0'+i))},
		})
	}
	if err := repo.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	all, err := repo.ListByDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("ListByDocument() = %d chunks, want 5", len(all))
	}
	if all[2].Metadata.PageNumber == nil || *all[2].Metadata.PageNumber != 3 || all[2].Metadata.Section != "1.2" {
		t.Errorf("metadata round trip = %+v", all[2].Metadata)
	}

	got, err := repo.GetByIDs(ctx, []string{"b", "d", "zz"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetByIDs() = %d chunks, want 2", len(got))
	}

	before, err := repo.ListBefore(ctx, "d1", 4, 2)
	if err != nil {
		t.Fatalf("ListBefore() error = %v", err)
	}
	if len(before) != 2 || before[0].ChunkIndex != 3 || before[1].ChunkIndex != 2 {
		t.Errorf("ListBefore() returned wrong chunks")
	}

	// chunk_index is unique per document
	dup := []*Chunk{{ID: "dup", DocumentID: "d1", ChunkIndex: 0, Content: "x"}}
	if err := repo.InsertBatch(ctx, dup); err == nil {
		t.Error("InsertBatch() with duplicate chunk_index should fail")
	}

	if err := repo.DeleteByDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
}

func TestEmbeddingRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createTestDocument(t, db, "d1", "u1")
	if err := NewChunkRepo(db).InsertBatch(ctx, []*Chunk{
		{ID: "c0", DocumentID: "d1", ChunkIndex: 0, Content: "a"},
		{ID: "c1", DocumentID: "d1", ChunkIndex: 1, Content: "b"},
	}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	repo := NewEmbeddingRepo(db)

	next, err := repo.NextVectorIndex(ctx, "d1")
	if err != nil || next != 0 {
		t.Fatalf("NextVectorIndex() = %d, %v; want 0, nil", next, err)
	}

	records := []*EmbeddingRecord{
		{ID: "e0", DocumentID: "d1", ChunkID: "c0", ChunkIndex: 0, VectorIndex: 0, EmbeddingModel: "m", Provider: "local"},
		{ID: "e1", DocumentID: "d1", ChunkID: "c1", ChunkIndex: 1, VectorIndex: 1, EmbeddingModel: "m", Provider: "local"},
	}
	if err := repo.InsertBatch(ctx, records); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	next, _ = repo.NextVectorIndex(ctx, "d1")
	if next != 2 {
		t.Errorf("NextVectorIndex() = %d, want 2", next)
	}

	found, err := repo.FindByVectorIndexes(ctx, "d1", []int64{1, 9})
	if err != nil {
		t.Fatalf("FindByVectorIndexes() error = %v", err)
	}
	if len(found) != 1 || found[0].ChunkID != "c1" {
		t.Errorf("FindByVectorIndexes() = %+v", found)
	}

	reuse := []*EmbeddingRecord{{ID: "e2", DocumentID: "d1", ChunkID: "c0", VectorIndex: 1, EmbeddingModel: "m", Provider: "local"}}
	if err := repo.InsertBatch(ctx, reuse); err == nil {
		t.Error("InsertBatch() reusing a vector index should fail")
	}
}

func TestHistoryRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewHistoryRepo(db)
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	turns := []*History{
		{ID: "h1", UserID: "u1", Question: "q1", Answer: "a1", DocumentID: "d1", CreatedAt: base},
		{ID: "h2", UserID: "u1", Question: "q2", Answer: "a2", DocumentID: "d2", ConversationID: "h1", CreatedAt: base.Add(time.Minute),
			References: []Reference{{DocumentID: "d2", ChunkIndex: 3, PageNumber: intPtr(2), Score: 0.9, ContentPreview: "p"}}},
		{ID: "h3", UserID: "u2", Question: "q3", Answer: "a3", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, h := range turns {
		if err := repo.Create(ctx, h); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := repo.SetConversationID(ctx, "h1", "h1"); err != nil {
		t.Fatalf("SetConversationID() error = %v", err)
	}
	h1, err := repo.GetByID(ctx, "h1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if h1.ConversationID != h1.ID {
		t.Errorf("conversation id = %q, want %q", h1.ConversationID, h1.ID)
	}
	if h1.References == nil || len(h1.References) != 0 {
		t.Errorf("References = %v, want empty slice", h1.References)
	}

	thread, err := repo.ListByConversation(ctx, "u1", "h1")
	if err != nil {
		t.Fatalf("ListByConversation() error = %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "h1" || thread[1].ID != "h2" {
		t.Errorf("ListByConversation() order wrong")
	}
	if len(thread[1].References) != 1 || *thread[1].References[0].PageNumber != 2 {
		t.Errorf("references round trip = %+v", thread[1].References)
	}

	all, _ := repo.ListByUser(ctx, "u1", "", 10)
	if len(all) != 2 || all[0].ID != "h2" {
		t.Errorf("ListByUser() should list newest first, got %d turns", len(all))
	}
	byDoc, _ := repo.ListByUser(ctx, "u1", "d1", 10)
	if len(byDoc) != 1 {
		t.Errorf("ListByUser(d1) = %d turns, want 1", len(byDoc))
	}

	if err := repo.Delete(ctx, "u1", "h3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() of another user's turn error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "u2", "h3"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := repo.DeleteByDocument(ctx, "d2"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "h2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(h2) after DeleteByDocument error = %v", err)
	}
}
