package rag

import (
	"strings"
	"testing"

	"studyqa/internal/storage"
)

func TestBuildPrompt(t *testing.T) {
	page := 3
	c1 := candidate("d1", 0, "COCOMO là mô hình ước lượng.", 0.81)
	c1.Meta.PageNumber = &page
	c1.Meta.Section = "2.1 COCOMO"
	c2 := candidate("d1", 1, "WBS chia nhỏ công việc.", 0.5)

	prompt := BuildPrompt(PromptInput{
		Question:  "so sánh COCOMO và WBS",
		Intent:    IntentCompareSynthesize,
		Chunks:    []*Candidate{c1, c2},
		Documents: []*storage.Document{c1.Document},
		Threshold: 0.4,
	})

	for _, want := range []string{
		"MODE: COMPARE_SYNTHESIZE",
		"markdown",
		`"answer_type"`,
		`"sentence_mapping"`,
		`"sources"`,
		"under 0.40",
		`"answer_type": "FALLBACK"`,
		"[Chunk 1] [d1.pdf] [Trang 3 | 2.1 COCOMO] [Sim:0.81]",
		"[Chunk 2] [d1.pdf] [-] [Sim:0.50]",
		"COCOMO là mô hình ước lượng.",
		"QUESTION: so sánh COCOMO và WBS",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Do not infer meaning") {
		t.Errorf("comparison prompts may connect chunks")
	}
	if !strings.HasSuffix(prompt, "JSON:") {
		t.Errorf("prompt should end with the JSON cue")
	}
	if strings.Index(prompt, "[Chunk 1]") > strings.Index(prompt, "[Chunk 2]") {
		t.Errorf("chunks must be numbered in context order")
	}
}

func TestBuildPromptMultipleDocuments(t *testing.T) {
	a := candidate("a", 0, "x", 0.5)
	b := candidate("b", 0, "y", 0.5)
	prompt := BuildPrompt(PromptInput{
		Question:  "liệt kê tất cả các phần trong cả 2 file",
		Intent:    IntentDocumentOverview,
		Chunks:    []*Candidate{a, b},
		Documents: []*storage.Document{a.Document, b.Document},
		Threshold: 0.25,
	})
	if !strings.Contains(prompt, "- a.pdf (pdf)") || !strings.Contains(prompt, "- b.pdf (pdf)") {
		t.Errorf("expected both documents to be listed")
	}
	if !strings.Contains(prompt, "name the document") {
		t.Errorf("expected per-document instruction")
	}
	if !strings.Contains(prompt, "Do not infer meaning") {
		t.Errorf("non-reasoning prompts must forbid cross-chunk inference")
	}
}

func TestBuildPromptEveryIntentHasMode(t *testing.T) {
	for _, intent := range []Intent{
		IntentDirect, IntentExpand, IntentExistence, IntentCompareSynthesize, IntentSectionOverview,
		IntentDocumentOverview, IntentCodeAnalysis, IntentExerciseGeneration, IntentMultiConceptReasoning,
	} {
		if _, ok := modeInstructions[intent]; !ok {
			t.Errorf("no mode instructions for %s", intent)
		}
	}
}
