package rag

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"studyqa/internal/contextutil"
	"studyqa/internal/llm"
	"studyqa/internal/metrics"
)

const (
	notFoundMessage         = "Không tìm thấy thông tin liên quan trong tài liệu của bạn."
	generationFailedMessage = "Xin lỗi, hiện không thể tạo câu trả lời từ tài liệu. Vui lòng thử lại sau."

	substantialAnswerRunes = 500
	paradoxConfidence      = 0.7
	synthesisConfidence    = 0.75
	unknownTypePenalty     = 0.8
	minCompareChunks       = 3
)

// fallbackPhrases indicate that the model could not find the answer.
var fallbackPhrases = []string{
	"không tìm thấy", "không có thông tin", "không được đề cập", "không đề cập",
	"không có trong tài liệu", "không thể trả lời", "tài liệu không chứa",
	"not found in", "no information", "not mentioned", "does not contain", "cannot find",
}

// Generator calls the LLM and turns its output into a validated answer.
type Generator struct {
	completer llm.Completer
	tuning    Tuning
}

// NewGenerator creates a Generator.
func NewGenerator(completer llm.Completer, tuning Tuning) *Generator {
	return &Generator{completer: completer, tuning: tuning.withDefaults()}
}

func fallbackAnswer(message string) GeneratedAnswer {
	return GeneratedAnswer{Answer: message, AnswerType: AnswerFallback}
}

// Generate never fails: transport errors and unusable output degrade to a FALLBACK answer.
func (g *Generator) Generate(ctx context.Context, prompt string, selected []*Candidate, intent Intent) GeneratedAnswer {
	logger := contextutil.LoggerFromContext(ctx)

	raw, err := g.completer.Complete(ctx, prompt, llm.CompletionParams{
		MaxTokens:   g.tuning.MaxTokens,
		Temperature: g.tuning.Temperature,
	})
	if err != nil {
		logger.ErrorContext(ctx, "answer generation failed", "error", err)
		return fallbackAnswer(generationFailedMessage)
	}

	parsed, layer := parseResponse(raw)
	logger.DebugContext(ctx, "LLM response parsed", "layer", layer, "raw_length", len(raw))
	if layer != "strict" {
		logger.WarnContext(ctx, "LLM response was not strict JSON", "layer", layer)
	}
	return g.validate(ctx, parsed, selected, intent)
}

// validate normalises a parsed answer. The rules run in a fixed order and each
// reclassification is logged.
func (g *Generator) validate(ctx context.Context, parsed *llmAnswer, selected []*Candidate, intent Intent) GeneratedAnswer {
	logger := contextutil.LoggerFromContext(ctx)
	reclassify := func(from, to Intent, reason string) {
		logger.WarnContext(ctx, "answer reclassified", "from", from, "to", to, "reason", reason)
		metrics.Reclassifications.WithLabelValues(string(from), string(to)).Inc()
	}

	text := strings.TrimSpace(parsed.Answer)
	if text == "" {
		return fallbackAnswer(notFoundMessage)
	}

	ans := GeneratedAnswer{
		Answer:     text,
		AnswerType: Intent(strings.ToUpper(strings.TrimSpace(parsed.AnswerType))),
		ChunksUsed: resolveRefs(parsed.ChunksUsed, selected),
		Confidence: clamp01(float64(parsed.Confidence)),
	}

	if !knownAnswerTypes[ans.AnswerType] {
		coerced := coerceAnswerType(text, len(ans.ChunksUsed) > 0)
		reclassify(ans.AnswerType, coerced, "unknown answer type")
		ans.AnswerType = coerced
		ans.Confidence *= unknownTypePenalty
	}
	if ans.AnswerType.isEmpty() {
		return emptied(ans)
	}

	// Only mentions that resolve to a selected chunk count as citations.
	recovered := recoverRefs(ans.ChunksUsed, text, selected)
	substantial := utf8.RuneCountInString(text) > substantialAnswerRunes && len(recovered) > 0

	if containsFallbackPhrase(text) {
		if !substantial {
			reclassify(ans.AnswerType, AnswerFallback, "fallback phrase")
			ans.AnswerType = AnswerFallback
			return emptied(ans)
		}
		logger.DebugContext(ctx, "fallback phrase ignored in substantial answer")
		ans.ChunksUsed = recovered
	}

	if ans.Confidence < g.tuning.ConfidenceFloor {
		if !substantial {
			reclassify(ans.AnswerType, AnswerFallback, "confidence below floor")
			return fallbackAnswer(notFoundMessage)
		}
		ans.ChunksUsed = recovered
	}

	if ans.Confidence > paradoxConfidence && len(ans.ChunksUsed) == 0 {
		if utf8.RuneCountInString(text) > substantialAnswerRunes {
			reclassify(ans.AnswerType, AnswerSynthesis, "high confidence without citations")
			ans.AnswerType = AnswerSynthesis
			ans.Confidence = synthesisConfidence
		} else {
			reclassify(ans.AnswerType, AnswerFallback, "high confidence without citations")
			return fallbackAnswer(notFoundMessage)
		}
	}

	if ans.AnswerType == IntentCompareSynthesize && markdownTable.MatchString(text) && len(ans.ChunksUsed) < minCompareChunks {
		ans.ChunksUsed = recoverRefs(ans.ChunksUsed, text, selected)
		ans.ChunksUsed = topUpRefs(ans.ChunksUsed, selected, minCompareChunks)
	}

	if len(ans.ChunksUsed) == 0 && ans.Confidence == 0 {
		reclassify(ans.AnswerType, AnswerFallback, "no citations and no confidence")
		return fallbackAnswer(notFoundMessage)
	}

	ans.SentenceMapping = filterMapping(parsed.SentenceMapping, len(selected))
	return ans
}

// emptied enforces the FALLBACK/TOO_BROAD invariant on an answer.
func emptied(ans GeneratedAnswer) GeneratedAnswer {
	ans.ChunksUsed = nil
	ans.SentenceMapping = nil
	ans.Confidence = 0
	return ans
}

// coerceAnswerType maps an unknown answer type to the closest known one by content shape.
func coerceAnswerType(text string, hasChunks bool) Intent {
	switch {
	case markdownTable.MatchString(text):
		return IntentCompareSynthesize
	case headingMarker.MatchString(text):
		return IntentSectionOverview
	case hasChunks:
		return IntentDirect
	default:
		return AnswerFallback
	}
}

func containsFallbackPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range fallbackPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// resolveRefs keeps the chunk references that point into selected, deduplicated,
// with Position, DocumentID and ChunkIndex all filled in.
func resolveRefs(used []chunkUsed, selected []*Candidate) []ChunkRef {
	var out []ChunkRef
	seen := make(map[int]bool)
	for _, u := range used {
		pos := -1
		if u.DocumentID != "" {
			for i, c := range selected {
				if c.Chunk.DocumentID == u.DocumentID && c.Chunk.ChunkIndex == u.ChunkIndex {
					pos = i
					break
				}
			}
		} else if u.Position >= 1 && u.Position <= len(selected) {
			pos = u.Position - 1
		}
		if pos < 0 || seen[pos] {
			continue
		}
		seen[pos] = true
		c := selected[pos]
		out = append(out, ChunkRef{Position: pos + 1, DocumentID: c.Chunk.DocumentID, ChunkIndex: c.Chunk.ChunkIndex})
	}
	return out
}

// recoverRefs adds chunks mentioned in the answer text ("[Chunk 3]") to refs.
func recoverRefs(refs []ChunkRef, text string, selected []*Candidate) []ChunkRef {
	used := make([]chunkUsed, 0, len(refs))
	for _, r := range refs {
		used = append(used, chunkUsed(r))
	}
	for _, m := range chunkMention.FindAllStringSubmatch(text, -1) {
		used = append(used, chunkUsed{Position: firstInt(m[1])})
	}
	return resolveRefs(used, selected)
}

// topUpRefs adds the most similar selected chunks until refs has n entries.
func topUpRefs(refs []ChunkRef, selected []*Candidate, n int) []ChunkRef {
	order := make([]int, len(selected))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return selected[order[a]].Similarity > selected[order[b]].Similarity
	})

	have := make(map[int]bool, len(refs))
	for _, r := range refs {
		have[r.Position] = true
	}
	for _, i := range order {
		if len(refs) >= n {
			break
		}
		if have[i+1] {
			continue
		}
		c := selected[i]
		refs = append(refs, ChunkRef{Position: i + 1, DocumentID: c.Chunk.DocumentID, ChunkIndex: c.Chunk.ChunkIndex})
		have[i+1] = true
	}
	return refs
}

// filterMapping drops sentence attributions to chunks that were not in the context.
func filterMapping(mapping []SentenceMapping, numChunks int) []SentenceMapping {
	out := make([]SentenceMapping, 0, len(mapping))
	for _, m := range mapping {
		if strings.TrimSpace(m.Sentence) == "" {
			continue
		}
		var chunks []int
		for _, n := range m.Chunks {
			if n >= 1 && n <= numChunks {
				chunks = append(chunks, n)
			}
		}
		out = append(out, SentenceMapping{Sentence: m.Sentence, Chunks: chunks})
	}
	return out
}
