package rag

import (
	"regexp"
	"strings"
)

// wordEnd ends a section number. RE2's \b is ASCII-only, so "phần cứng" would
// otherwise read as section C.
const wordEnd = `(?:[^\p{L}\p{N}]|$)`

var (
	// sectionMention matches a named section anywhere in a question, e.g. "phần 4" or "chương II".
	sectionMention = regexp.MustCompile(`(?i)(phần|chương|part|chapter)\s+(\d+|[ivxlc]+)` + wordEnd)
	existenceForm  = regexp.MustCompile(`^có\s.+\skhông\s*\??$`)
)

type intentRule struct {
	intent   Intent
	keywords []string
}

// intentRules are evaluated in order after the section-mention check; the first match wins.
var intentRules = []intentRule{
	{IntentDocumentOverview, []string{
		"tóm tắt", "tổng quan", "nội dung chính", "các phần", "các chương", "mục lục",
		"tài liệu nói về", "overview", "summarize", "summary", "table of contents",
	}},
	{IntentCompareSynthesize, []string{
		"so sánh", "khác nhau", "khác biệt", "giống nhau", "phân biệt", "đối chiếu",
		"compare", "difference between", " vs ", " vs.", "versus",
	}},
	{IntentCodeAnalysis, []string{"đoạn code", "đoạn mã", "mã nguồn", "code", "function", "hàm này", "```"}},
	{IntentExerciseGeneration, []string{"bài tập", "trắc nghiệm", "tạo câu hỏi", "câu hỏi ôn tập", "luyện tập", "quiz", "exercise"}},
	{IntentMultiConceptReasoning, []string{"tại sao", "vì sao", "mối quan hệ", "liên quan", "ảnh hưởng", "why", "relationship"}},
	{IntentExistence, []string{"có đề cập", "có nói về", "có nhắc", "is there", "does it mention"}},
	{IntentExpand, []string{"giải thích", "chi tiết", "liệt kê", "trình bày", "mô tả", "explain", "describe", "list"}},
	{IntentTooBroad, []string{"toàn bộ", "tất cả mọi", "everything"}},
}

// Classify maps a question to an intent. It is pure and total: unmatched questions are DIRECT.
func Classify(question string) Intent {
	q := strings.ToLower(strings.TrimSpace(question))
	if sectionMention.MatchString(q) {
		return IntentSectionOverview
	}
	for _, rule := range intentRules {
		if rule.intent == IntentExistence && existenceForm.MatchString(q) {
			return IntentExistence
		}
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.intent
			}
		}
	}
	return IntentDirect
}

// isReasoning reports whether an intent may combine information across chunks.
func (i Intent) isReasoning() bool {
	return i == IntentMultiConceptReasoning || i == IntentCompareSynthesize
}

// isOverview reports whether an intent needs broad coverage of a document.
func (i Intent) isOverview() bool {
	return i == IntentDocumentOverview || i == IntentSectionOverview
}
