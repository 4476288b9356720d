package rag

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"studyqa/internal/storage"
	storage_mocks "studyqa/internal/storage/mocks"
)

func TestMaxChunks(t *testing.T) {
	tests := []struct {
		intent  Intent
		numDocs int
		want    int
	}{
		{IntentDirect, 1, 15},
		{IntentDirect, 2, 22},
		{IntentDirect, 3, 30},
		{IntentSectionOverview, 1, 45},
		{IntentDocumentOverview, 1, 300},
		{IntentDocumentOverview, 2, 450},
		{IntentCompareSynthesize, 1, 25},
	}
	for _, tt := range tests {
		if got := maxChunks(tt.intent, tt.numDocs); got != tt.want {
			t.Errorf("maxChunks(%s, %d) = %d, want %d", tt.intent, tt.numDocs, got, tt.want)
		}
	}
}

func TestCharBudget(t *testing.T) {
	tuning := DefaultTuning()
	tests := []struct {
		intent    Intent
		numDocs   int
		budget    int
		tolerance float64
	}{
		{IntentDirect, 1, 12000, 1.0},
		{IntentDirect, 2, 18000, 1.0},
		{IntentSectionOverview, 1, 25000, 1.0},
		{IntentDocumentOverview, 1, 50000, 1.05},
		{IntentDocumentOverview, 2, 55000, 1.1},
		{IntentDocumentOverview, 4, 60000, 1.2},
	}
	for _, tt := range tests {
		budget, tolerance := tuning.charBudget(tt.intent, tt.numDocs)
		if budget != tt.budget || tolerance != tt.tolerance {
			t.Errorf("charBudget(%s, %d) = (%d, %f), want (%d, %f)",
				tt.intent, tt.numDocs, budget, tolerance, tt.budget, tt.tolerance)
		}
	}
}

func TestSelectStopsAtCharBudget(t *testing.T) {
	s := NewSelector(nil, Tuning{MaxContextChars: 100})
	cands := []*Candidate{
		candidate("d1", 0, strings.Repeat("a", 40), 0.9),
		candidate("d1", 1, strings.Repeat("b", 40), 0.8),
		candidate("d1", 2, strings.Repeat("c", 40), 0.7),
		candidate("d1", 3, "d", 0.6),
	}
	for _, c := range cands {
		c.Meta.Section = "x"
	}

	got := s.Select(context.Background(), cands, IntentDirect, 1)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks within budget, got %d", len(got))
	}
	if got[0] != cands[0] || got[1] != cands[1] {
		t.Errorf("expected rank order to be kept")
	}
}

func TestSelectCountsRunes(t *testing.T) {
	s := NewSelector(nil, Tuning{MaxContextChars: 10})
	c := candidate("d1", 0, "ướcướcước", 0.9) // 9 runes, more bytes
	c.Meta.Section = "x"
	if got := s.Select(context.Background(), []*Candidate{c}, IntentDirect, 1); len(got) != 1 {
		t.Fatalf("expected rune-counted chunk to fit, got %d", len(got))
	}
}

func TestSelectPriorityFirst(t *testing.T) {
	s := NewSelector(nil, DefaultTuning())
	regular := candidate("d1", 0, "regular", 0.9)
	priority := candidate("d1", 1, "priority", 0.5)
	priority.SectionScore = 3
	regular.Meta.Section, priority.Meta.Section = "a", "b"

	got := s.Select(context.Background(), []*Candidate{regular, priority}, IntentDirect, 1)
	if len(got) != 2 || got[0] != priority {
		t.Fatalf("expected priority chunk first, got %v", got)
	}
}

func TestPartitionConceptChunks(t *testing.T) {
	concept := candidate("d1", 0, "x", 0.6)
	concept.KeywordMatches = 2
	weak := candidate("d1", 1, "y", 0.3)
	weak.KeywordMatches = 2

	priority, regular := partition([]*Candidate{concept, weak}, IntentMultiConceptReasoning)
	if len(priority) != 1 || priority[0] != concept || len(regular) != 1 {
		t.Errorf("unexpected partition for reasoning intent: %d priority, %d regular", len(priority), len(regular))
	}

	priority, _ = partition([]*Candidate{concept}, IntentDirect)
	if len(priority) != 0 {
		t.Errorf("concept rule must only apply to reasoning intents")
	}
}

func TestSelectDocumentOverviewCoversEverySection(t *testing.T) {
	s := NewSelector(nil, DefaultTuning())

	var cands []*Candidate
	// Section 1 alone would exhaust the 50k budget.
	for i := 0; i < 8; i++ {
		c := candidate("d1", i, strings.Repeat("x", 10000), 0.9-float64(i)*0.01)
		c.Meta.Section = "1. Giới thiệu"
		cands = append(cands, c)
	}
	for n := 2; n <= 5; n++ {
		c := candidate("d1", 10*n, "short", 0.3)
		c.Meta.Section = string(rune('0'+n)) + ". Phần tiếp"
		cands = append(cands, c)
	}

	got := s.Select(context.Background(), cands, IntentDocumentOverview, 1)

	sections := map[string]bool{}
	for _, c := range got {
		sections[sectionNumberOf(c)] = true
	}
	for _, n := range []string{"1", "2", "3", "4", "5"} {
		if !sections[n] {
			t.Errorf("section %s missing from overview context", n)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Chunk.ChunkIndex > got[i].Chunk.ChunkIndex {
			t.Fatalf("overview context must be in document order")
		}
	}
}

func TestSelectDocumentOverviewPerDocumentFloor(t *testing.T) {
	s := NewSelector(nil, DefaultTuning())

	var cands []*Candidate
	for i := 0; i < 30; i++ {
		cands = append(cands, candidate("a", i, strings.Repeat("x", 3000), 0.9))
	}
	for i := 0; i < 3; i++ {
		cands = append(cands, candidate("b", i, "small", 0.1))
	}
	for _, c := range cands {
		c.Meta.Section = "Intro"
	}

	got := s.Select(context.Background(), cands, IntentDocumentOverview, 2)

	perDoc := map[string]int{}
	for _, c := range got {
		perDoc[c.Chunk.DocumentID]++
	}
	if perDoc["b"] == 0 {
		t.Errorf("second document got no context: %v", perDoc)
	}
	if got[0].Chunk.DocumentID != "a" {
		t.Errorf("expected documents grouped in first-appearance order")
	}
}

func TestSelectBackfillFromSelection(t *testing.T) {
	ctrl := gomock.NewController(t)
	chunks := storage_mocks.NewMockChunkStore(ctrl) // no calls expected

	s := NewSelector(chunks, DefaultTuning())
	head := candidate("d1", 3, "PHẦN 1: Tổng quan", 0.9)
	head.Meta.Section = "PHẦN 1"
	head.Meta.Heading = "PHẦN 1: Tổng quan"
	inner := candidate("d1", 5, "nội dung bên trong", 0.8)

	s.Select(context.Background(), []*Candidate{head, inner}, IntentDirect, 1)

	if inner.Meta.Section != "PHẦN 1" {
		t.Errorf("expected back-filled section, got %q", inner.Meta.Section)
	}
	if inner.Meta.Heading != "PHẦN 1: Tổng quan" {
		t.Errorf("expected back-filled heading, got %q", inner.Meta.Heading)
	}
}

func TestSelectBackfillFromStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	chunks := storage_mocks.NewMockChunkStore(ctrl)
	chunks.EXPECT().
		ListBefore(gomock.Any(), "d1", 8, backfillLookback).
		Return([]*storage.Chunk{
			{DocumentID: "d1", ChunkIndex: 7, Content: "some text"},
			{DocumentID: "d1", ChunkIndex: 6, Metadata: storage.ChunkMetadata{Section: "2.1 Phạm vi", Heading: "2.1 Phạm vi"}},
		}, nil)

	s := NewSelector(chunks, DefaultTuning())
	c := candidate("d1", 8, "đoạn giữa mục", 0.9)

	s.Select(context.Background(), []*Candidate{c}, IntentDirect, 1)

	if c.Meta.Section != "2.1 Phạm vi" {
		t.Errorf("expected section from stored chunks, got %q", c.Meta.Section)
	}
}

func TestBestHeadingPrefersNumbered(t *testing.T) {
	preceding := []*storage.Chunk{
		{ChunkIndex: 9, Metadata: storage.ChunkMetadata{Heading: "Ghi chú"}},
		{ChunkIndex: 4, Metadata: storage.ChunkMetadata{Section: "3. Thiết kế", Heading: "3. Thiết kế"}},
	}
	label, _ := bestHeading(preceding, 10)
	if label != "3. Thiết kế" {
		t.Errorf("expected numbered heading, got %q", label)
	}
}

func TestSectionNumberOf(t *testing.T) {
	tests := []struct {
		meta    storage.ChunkMetadata
		content string
		want    string
	}{
		{storage.ChunkMetadata{Section: "2.3 Ước lượng"}, "", "2"},
		{storage.ChunkMetadata{Section: "PHẦN IV"}, "", "iv"},
		{storage.ChunkMetadata{Heading: "Chương 3: Thiết kế"}, "", "3"},
		{storage.ChunkMetadata{}, "Trong phần 5 ta thấy", "5"},
		{storage.ChunkMetadata{Section: "Giới thiệu"}, "không có số", ""},
	}
	for _, tt := range tests {
		c := candidate("d1", 0, tt.content, 0.5)
		c.Meta = tt.meta
		if got := sectionNumberOf(c); got != tt.want {
			t.Errorf("sectionNumberOf(%+v, %q) = %q, want %q", tt.meta, tt.content, got, tt.want)
		}
	}
}
