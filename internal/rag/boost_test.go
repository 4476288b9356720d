package rag

import (
	"math"
	"strings"
	"testing"

	"studyqa/internal/storage"
)

func candidate(docID string, idx int, content string, sim float64) *Candidate {
	return &Candidate{
		Chunk:      &storage.Chunk{ID: docID + "-" + strings.Repeat("c", idx+1), DocumentID: docID, ChunkIndex: idx, Content: content},
		Document:   &storage.Document{ID: docID, Filename: docID + ".pdf", FileType: storage.FileTypePDF},
		Similarity: sim,
	}
}

func TestBoostKeywordOverlap(t *testing.T) {
	match := candidate("d1", 0, "COCOMO là mô hình ước lượng chi phí phần mềm.", 0.5)
	miss := candidate("d1", 1, "Nội dung không liên quan.", 0.5)

	out := Boost([]*Candidate{miss, match}, "COCOMO ước lượng chi phí", IntentDirect, DefaultTuning())

	if out[0] != match {
		t.Fatalf("expected matching chunk first")
	}
	if match.KeywordMatches == 0 {
		t.Errorf("expected keyword matches to be recorded")
	}
	if match.Similarity <= 0.5 {
		t.Errorf("expected boosted similarity, got %f", match.Similarity)
	}
	if math.Abs(miss.Similarity-0.5) > 1e-9 {
		t.Errorf("non-matching chunk should keep its similarity, got %f", miss.Similarity)
	}
}

func TestBoostKeywordCap(t *testing.T) {
	tuning := DefaultTuning()
	c := candidate("d1", 0, "alpha bravo charlie delta echo foxtrot golf hotel", 0.2)
	Boost([]*Candidate{c}, "alpha bravo charlie delta echo foxtrot golf hotel", IntentDirect, tuning)

	want := 0.2 + tuning.KeywordBoostCap
	if math.Abs(c.Similarity-want) > 1e-9 {
		t.Errorf("expected boost capped at %f, got %f", want, c.Similarity)
	}
}

func TestBoostStopwordsIgnored(t *testing.T) {
	c := candidate("d1", 0, "của và các những", 0.3)
	Boost([]*Candidate{c}, "của và các những", IntentDirect, DefaultTuning())
	if c.KeywordMatches != 0 {
		t.Errorf("expected stop-words to be ignored, got %d matches", c.KeywordMatches)
	}
}

func TestBoostSectionNumber(t *testing.T) {
	plain := candidate("d1", 0, "Giới thiệu chung về lập trình.", 0.6)
	section := candidate("d1", 5, "PHẦN 4: Cú pháp nâng cao\n4.1 Decorator\n4.2 Generator", 0.3)

	out := Boost([]*Candidate{plain, section}, "PHẦN 4 nói về gì?", IntentSectionOverview, DefaultTuning())

	if section.SectionScore != sectionPhraseScore+sectionSubScore {
		t.Errorf("SectionScore = %d, want %d", section.SectionScore, sectionPhraseScore+sectionSubScore)
	}
	if out[0] != section {
		t.Errorf("expected section chunk to rank first")
	}
}

func TestParseQueryIgnoresWordsAfterPhan(t *testing.T) {
	for _, question := range []string{"phần cứng gồm những gì?", "phần lớn là gì", "Chương mở đầu"} {
		if q := parseQuery(question); len(q.sectionTexts) != 0 {
			t.Errorf("parseQuery(%q).sectionTexts = %v, want none", question, q.sectionTexts)
		}
	}
	q := parseQuery("so sánh phần 1 và phần 2")
	if len(q.sectionTexts) != 2 || q.sectionTexts[0] != "phần 1" || q.sectionTexts[1] != "phần 2" {
		t.Errorf("sectionTexts = %v, want [phần 1 phần 2]", q.sectionTexts)
	}
}

func TestBoostExactSubsection(t *testing.T) {
	c := candidate("d1", 0, "3.2 Ước lượng bằng COCOMO", 0.3)
	Boost([]*Candidate{c}, "mục 3.2 trình bày gì", IntentExpand, DefaultTuning())
	if c.SectionScore < exactSubsectionScore {
		t.Errorf("expected exact subsection score, got %d", c.SectionScore)
	}
}

func TestBoostQuotedTerm(t *testing.T) {
	tuning := DefaultTuning()
	tuning.KeywordBoostCap = 1
	quoted := candidate("d1", 0, "the critical path method schedules tasks", 0.3)
	Boost([]*Candidate{quoted}, `what is "critical path"`, IntentDirect, tuning)
	// critical + path + quoted phrase weight
	if quoted.Similarity < 0.3+float64(2+quotedTermWeight)*tuning.KeywordBoost-1e-9 {
		t.Errorf("expected quoted phrase to add weight, got %f", quoted.Similarity)
	}
}

func TestBoostTOCFirst(t *testing.T) {
	high := candidate("d1", 3, "Nội dung chi tiết.", 0.9)
	toc := candidate("d1", 0, "MỤC LỤC\n1. Giới thiệu\n2. Phân tích", 0.01)

	out := Boost([]*Candidate{high, toc}, "Tài liệu gồm những gì", IntentDocumentOverview, DefaultTuning())

	if !toc.IsTOC {
		t.Fatalf("expected TOC chunk to be flagged")
	}
	if out[0] != toc {
		t.Errorf("expected TOC chunk first")
	}
}

func TestBoostMainHeading(t *testing.T) {
	c := candidate("d1", 0, "text", 0.1)
	c.Meta.IsMainSection = true
	Boost([]*Candidate{c}, "unrelated", IntentDirect, DefaultTuning())
	if math.Abs(c.Similarity-(0.1+mainHeadingBoost)) > 1e-9 {
		t.Errorf("expected main heading boost, got %f", c.Similarity)
	}
}

func TestBoostOverviewDensity(t *testing.T) {
	c := candidate("d1", 0, "1.1 Mở đầu\n1.2 Mục tiêu\n1.3 Phạm vi\n1.4 Kết luận", 0.1)
	Boost([]*Candidate{c}, "unrelated", IntentDirect, DefaultTuning())
	if c.Similarity < 0.1+4*densityPerHeading-1e-9 {
		t.Errorf("expected density boost, got %f", c.Similarity)
	}
}

func TestBoostComparisonOnlyForCompare(t *testing.T) {
	content := "COCOMO and WBS are both planning tools"
	direct := candidate("d1", 0, content, 0.1)
	compare := candidate("d1", 0, content, 0.1)

	Boost([]*Candidate{direct}, "cocomo wbs", IntentDirect, DefaultTuning())
	Boost([]*Candidate{compare}, "cocomo wbs", IntentCompareSynthesize, DefaultTuning())

	if compare.Similarity <= direct.Similarity {
		t.Errorf("expected comparison boost, direct=%f compare=%f", direct.Similarity, compare.Similarity)
	}
}

func TestBoostClampsToOne(t *testing.T) {
	c := candidate("d1", 0, "MỤC LỤC\nPHẦN 1 a\nPHẦN 2 b\nPHẦN 3 c\nPHẦN 4 d", 0.9)
	c.Meta.IsMainSection = true
	Boost([]*Candidate{c}, "phần 4", IntentSectionOverview, DefaultTuning())
	if c.Similarity < 0 || c.Similarity > 1 {
		t.Errorf("similarity out of [0,1]: %f", c.Similarity)
	}
}

func TestTokenize(t *testing.T) {
	got := filterStopwords(tokenize("Quản lý dự án: WBS, COCOMO và các kỹ thuật!"))
	want := []string{"quản", "lý", "dự", "án", "wbs", "cocomo", "kỹ", "thuật"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("tokens = %v, want %v", got, want)
	}
}
