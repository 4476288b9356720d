package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"studyqa/internal/llm"
	llm_mocks "studyqa/internal/llm/mocks"
)

func selectedChunks(n int) []*Candidate {
	out := make([]*Candidate, n)
	for i := range out {
		out[i] = candidate("d1", i*10, fmt.Sprintf("nội dung %d", i), 0.9-float64(i)*0.1)
	}
	return out
}

func newTestGenerator(t *testing.T, raw string, err error) *Generator {
	t.Helper()
	ctrl := gomock.NewController(t)
	completer := llm_mocks.NewMockCompleter(ctrl)
	completer.EXPECT().
		Complete(gomock.Any(), "prompt", llm.CompletionParams{MaxTokens: 2048, Temperature: 0.2}).
		Return(raw, err)
	return NewGenerator(completer, DefaultTuning())
}

func positions(refs []ChunkRef) []int {
	var out []int
	for _, r := range refs {
		out = append(out, r.Position)
	}
	return out
}

func TestGenerateValidAnswer(t *testing.T) {
	selected := selectedChunks(3)
	g := newTestGenerator(t, `{"answer": "WBS chia nhỏ dự án.", "answer_type": "DIRECT", "chunks_used": [2, 9, 2], "confidence": 0.9,
		"sentence_mapping": [{"sentence": "WBS chia nhỏ dự án.", "chunks": [2, 7]}]}`, nil)

	ans := g.Generate(context.Background(), "prompt", selected, IntentDirect)

	if ans.AnswerType != IntentDirect {
		t.Fatalf("answer type = %s, want DIRECT", ans.AnswerType)
	}
	if len(ans.ChunksUsed) != 1 || ans.ChunksUsed[0] != (ChunkRef{Position: 2, DocumentID: "d1", ChunkIndex: 10}) {
		t.Errorf("expected chunk 2 resolved and deduplicated, hallucinated 9 dropped, got %+v", ans.ChunksUsed)
	}
	if ans.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", ans.Confidence)
	}
	if len(ans.SentenceMapping) != 1 || len(ans.SentenceMapping[0].Chunks) != 1 {
		t.Errorf("expected out-of-range sentence chunk dropped, got %+v", ans.SentenceMapping)
	}
}

func TestGenerateResolvesDocumentCoordinates(t *testing.T) {
	selected := selectedChunks(3)
	g := newTestGenerator(t, `{"answer": "x", "answer_type": "DIRECT", "chunks_used": [{"document_id": "d1", "chunk_index": 20}], "confidence": 0.8}`, nil)

	ans := g.Generate(context.Background(), "prompt", selected, IntentDirect)
	if got := positions(ans.ChunksUsed); len(got) != 1 || got[0] != 3 {
		t.Errorf("expected document coordinates to resolve to position 3, got %v", got)
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	g := newTestGenerator(t, "", errors.New("connection refused"))

	ans := g.Generate(context.Background(), "prompt", selectedChunks(2), IntentDirect)

	if ans.AnswerType != AnswerFallback || ans.Confidence != 0 || len(ans.ChunksUsed) != 0 {
		t.Errorf("expected fallback tuple, got %+v", ans)
	}
	if ans.Answer == "" {
		t.Errorf("fallback answer should carry a message")
	}
}

func TestGenerateValidation(t *testing.T) {
	long := strings.Repeat("Nội dung chi tiết về quản lý dự án. ", 20)

	tests := []struct {
		name       string
		raw        string
		selected   int
		wantType   Intent
		wantConf   float64
		wantChunks []int
		wantAnswer string
	}{
		{
			name:       "unknown type with chunks is direct",
			raw:        `{"answer": "Một câu trả lời.", "answer_type": "EXPLANATION", "chunks_used": [1], "confidence": 0.9}`,
			selected:   2,
			wantType:   IntentDirect,
			wantConf:   0.72,
			wantChunks: []int{1},
		},
		{
			name:       "unknown type with table is comparison",
			raw:        `{"answer": "| A | B |\n|---|---|\n| 1 [Chunk 1] | 2 [Chunk 2] |", "answer_type": "TABLE", "chunks_used": [1, 2, 3], "confidence": 0.8}`,
			selected:   3,
			wantType:   IntentCompareSynthesize,
			wantConf:   0.64,
			wantChunks: []int{1, 2, 3},
		},
		{
			name:       "lower case type is accepted",
			raw:        `{"answer": "Có, tài liệu có nhắc.", "answer_type": "existence", "chunks_used": [1], "confidence": 0.6}`,
			selected:   1,
			wantType:   IntentExistence,
			wantConf:   0.6,
			wantChunks: []int{1},
		},
		{
			name:     "fallback is emptied",
			raw:      `{"answer": "Không tìm thấy.", "answer_type": "FALLBACK", "chunks_used": [1], "confidence": 0.8}`,
			selected: 2,
			wantType: AnswerFallback,
		},
		{
			name:       "short fallback phrase downgrades",
			raw:        `{"answer": "Tài liệu không đề cập đến Scrum.", "answer_type": "DIRECT", "chunks_used": [1], "confidence": 0.8}`,
			selected:   2,
			wantType:   AnswerFallback,
			wantAnswer: "Tài liệu không đề cập đến Scrum.",
		},
		{
			name:       "long cited answer survives fallback phrase",
			raw:        `{"answer": "` + long + `Phần này không đề cập đến chi phí, nhưng [Chunk 2] mô tả tiến độ.", "answer_type": "EXPAND", "chunks_used": [], "confidence": 0.6}`,
			selected:   2,
			wantType:   IntentExpand,
			wantConf:   0.6,
			wantChunks: []int{2},
		},
		{
			name:       "confidence below floor",
			raw:        `{"answer": "Có thể là A.", "answer_type": "DIRECT", "chunks_used": [1], "confidence": 0.1}`,
			selected:   2,
			wantType:   AnswerFallback,
			wantAnswer: notFoundMessage,
		},
		{
			name:       "confident but uncited short answer",
			raw:        `{"answer": "Chắc chắn là A.", "answer_type": "DIRECT", "chunks_used": [], "confidence": 0.95}`,
			selected:   2,
			wantType:   AnswerFallback,
			wantAnswer: notFoundMessage,
		},
		{
			name:     "confident but uncited long answer is synthesis",
			raw:      `{"answer": "` + long + `", "answer_type": "EXPAND", "chunks_used": [], "confidence": 0.95}`,
			selected: 2,
			wantType: AnswerSynthesis,
			wantConf: synthesisConfidence,
		},
		{
			name:       "comparison table is topped up to three chunks",
			raw:        `{"answer": "| Tiêu chí | A | B |\n|---|---|---|\n| x | y | z |", "answer_type": "COMPARE_SYNTHESIZE", "chunks_used": [4], "confidence": 0.7}`,
			selected:   5,
			wantType:   IntentCompareSynthesize,
			wantConf:   0.7,
			wantChunks: []int{4, 1, 2},
		},
		{
			name:       "comparison table recovers in-text citations first",
			raw:        `{"answer": "| Tiêu chí | A | B |\n|---|---|---|\n| x | y [Chunk 3] | z [Chunk 5] |", "answer_type": "COMPARE_SYNTHESIZE", "chunks_used": [4], "confidence": 0.7}`,
			selected:   5,
			wantType:   IntentCompareSynthesize,
			wantConf:   0.7,
			wantChunks: []int{4, 3, 5},
		},
		{
			name:       "empty answer",
			raw:        `{"answer": "", "answer_type": "DIRECT", "chunks_used": [1], "confidence": 0.9}`,
			selected:   2,
			wantType:   AnswerFallback,
			wantAnswer: notFoundMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, tt.raw, nil)
			ans := g.Generate(context.Background(), "prompt", selectedChunks(tt.selected), IntentDirect)

			if ans.AnswerType != tt.wantType {
				t.Fatalf("answer type = %s, want %s", ans.AnswerType, tt.wantType)
			}
			if math.Abs(ans.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence = %f, want %f", ans.Confidence, tt.wantConf)
			}
			got := positions(ans.ChunksUsed)
			if fmt.Sprint(got) != fmt.Sprint(tt.wantChunks) {
				t.Errorf("chunks = %v, want %v", got, tt.wantChunks)
			}
			if tt.wantAnswer != "" && ans.Answer != tt.wantAnswer {
				t.Errorf("answer = %q, want %q", ans.Answer, tt.wantAnswer)
			}
		})
	}
}

func TestGenerateLongAnswerCitingMissingChunkFallsBack(t *testing.T) {
	raw := fmt.Sprintf(`{"answer": "%s Xem chunk 7.", "answer_type": "DIRECT", "chunks_used": [], "confidence": 0}`, strings.Repeat("a", 750))
	g := newTestGenerator(t, raw, nil)

	ans := g.Generate(context.Background(), "prompt", selectedChunks(1), IntentDirect)

	if ans.AnswerType != AnswerFallback {
		t.Fatalf("answer type = %s, want FALLBACK", ans.AnswerType)
	}
	if len(ans.ChunksUsed) != 0 || ans.Confidence != 0 {
		t.Errorf("expected emptied fallback, got %+v", ans)
	}
}

func TestGenerateFallbackInvariant(t *testing.T) {
	outputs := []string{
		`{"answer": "x", "answer_type": "FALLBACK", "chunks_used": [1, 2], "confidence": 1}`,
		`{"answer": "x", "answer_type": "TOO_BROAD", "chunks_used": [1], "confidence": 0.5, "sentence_mapping": [{"sentence": "x", "chunks": [1]}]}`,
		`không có thông tin`,
		``,
		`{"answer": "y", "answer_type": "NOPE", "chunks_used": [], "confidence": 0.9}`,
		fmt.Sprintf(`{"answer": "%s Xem chunk 7.", "answer_type": "DIRECT", "chunks_used": [], "confidence": 0}`, strings.Repeat("a", 750)),
	}
	for _, raw := range outputs {
		g := newTestGenerator(t, raw, nil)
		ans := g.Generate(context.Background(), "prompt", selectedChunks(2), IntentDirect)
		if ans.AnswerType.isEmpty() != (len(ans.ChunksUsed) == 0 && ans.Confidence == 0) {
			t.Errorf("invariant violated for %q: %+v", raw, ans)
		}
		if ans.AnswerType.isEmpty() && len(ans.SentenceMapping) != 0 {
			t.Errorf("empty answers must not carry sentence mappings: %+v", ans)
		}
	}
}
