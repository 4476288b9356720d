package rag

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"studyqa/internal/contextutil"
	"studyqa/internal/indexer"
	"studyqa/internal/storage"
)

const (
	conceptSimilarity = 0.4
	backfillLookback  = 10
)

var leadingSectionNumber = regexp.MustCompile(`^(\d+)(?:\.\d+)*\b`)

// Selector picks the chunks that form the LLM context.
type Selector struct {
	chunks storage.ChunkStore
	tuning Tuning
}

// NewSelector creates a Selector. chunks is used to back-fill missing section labels.
func NewSelector(chunks storage.ChunkStore, tuning Tuning) *Selector {
	return &Selector{chunks: chunks, tuning: tuning.withDefaults()}
}

// maxChunks is the chunk-count ceiling of the context.
func maxChunks(intent Intent, numDocs int) int {
	n := 15
	switch intent {
	case IntentSectionOverview:
		n = 45
	case IntentDocumentOverview:
		n = 300
	case IntentCompareSynthesize, IntentMultiConceptReasoning:
		n = 25
	case IntentExerciseGeneration:
		n = 20
	}
	return int(float64(n) * docScale(numDocs))
}

// charBudget is the character ceiling of the context and the overrun tolerated for
// chunks forced in by the coverage pre-pass.
func (t Tuning) charBudget(intent Intent, numDocs int) (int, float64) {
	switch intent {
	case IntentDocumentOverview:
		switch {
		case numDocs >= 3:
			return 60000, 1.2
		case numDocs == 2:
			return 55000, 1.1
		default:
			return 50000, 1.05
		}
	case IntentSectionOverview:
		return max(25000, t.MaxContextChars), 1.0
	default:
		return int(float64(t.MaxContextChars) * docScale(numDocs)), 1.0
	}
}

type selection struct {
	picked []*Candidate
	seen   map[chunkKey]bool
	chars  int
}

func (s *selection) add(c *Candidate, n int) {
	s.picked = append(s.picked, c)
	s.seen[c.key()] = true
	s.chars += n
}

// Select returns the ordered context for the prompt. Candidates must be sorted by
// descending boosted similarity. Section labels of the result are back-filled.
func (s *Selector) Select(ctx context.Context, candidates []*Candidate, intent Intent, numDocs int) []*Candidate {
	logger := contextutil.LoggerFromContext(ctx)

	limit := maxChunks(intent, numDocs)
	budget, tolerance := s.tuning.charBudget(intent, numDocs)
	sel := &selection{seen: make(map[chunkKey]bool)}

	forced := 0
	if intent == IntentDocumentOverview {
		hardBudget := int(float64(budget) * tolerance)
		for _, c := range coverage(candidates, numDocs, limit) {
			n := utf8.RuneCountInString(c.Chunk.Content)
			if len(sel.picked) >= limit || sel.chars+n > hardBudget {
				continue
			}
			sel.add(c, n)
			forced++
		}
	}

	priority, regular := partition(candidates, intent)
	for _, c := range append(priority, regular...) {
		if len(sel.picked) >= limit {
			break
		}
		if sel.seen[c.key()] {
			continue
		}
		n := utf8.RuneCountInString(c.Chunk.Content)
		if sel.chars+n > budget {
			break
		}
		sel.add(c, n)
	}

	picked := sel.picked
	if intent.isOverview() {
		sortByDocumentOrder(picked)
	}
	s.backfillSections(ctx, picked)

	logger.InfoContext(ctx, "context selected",
		"intent", intent,
		"selected", len(picked),
		"forced", forced,
		"priority", len(priority),
		"chars", sel.chars,
		"max_chunks", limit,
		"char_budget", budget,
	)
	return picked
}

// partition splits candidates into priority and regular ones, keeping rank order.
func partition(candidates []*Candidate, intent Intent) (priority, regular []*Candidate) {
	for _, c := range candidates {
		concept := intent.isReasoning() && c.KeywordMatches > 0 && c.Similarity > conceptSimilarity
		if c.SectionScore > 0 || concept {
			priority = append(priority, c)
		} else {
			regular = append(regular, c)
		}
	}
	return priority, regular
}

// coverage returns the best chunk of every distinct section of every document and,
// for several documents, the top chunks of each document.
func coverage(candidates []*Candidate, numDocs, limit int) []*Candidate {
	type sectionGroup struct {
		documentID string
		number     string
	}
	var out []*Candidate
	seen := make(map[chunkKey]bool)
	groups := make(map[sectionGroup]bool)
	for _, c := range candidates {
		num := sectionNumberOf(c)
		if num == "" {
			continue
		}
		g := sectionGroup{documentID: c.Chunk.DocumentID, number: num}
		if groups[g] {
			continue
		}
		groups[g] = true
		seen[c.key()] = true
		out = append(out, c)
	}

	if numDocs > 1 {
		floor := max(3, limit/(numDocs*3))
		perDoc := make(map[string]int)
		for _, c := range candidates {
			if seen[c.key()] || perDoc[c.Chunk.DocumentID] >= floor {
				continue
			}
			perDoc[c.Chunk.DocumentID]++
			seen[c.key()] = true
			out = append(out, c)
		}
	}
	return out
}

// sectionNumberOf returns the top-level section number a chunk belongs to, or "".
func sectionNumberOf(c *Candidate) string {
	for _, s := range []string{c.Meta.Section, c.Meta.Heading} {
		if s == "" {
			continue
		}
		if m := sectionMention.FindStringSubmatch(s); m != nil {
			return strings.ToLower(m[2])
		}
		if m := leadingSectionNumber.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	if m := sectionMention.FindStringSubmatch(c.Chunk.Content); m != nil {
		return strings.ToLower(m[2])
	}
	return ""
}

// sortByDocumentOrder groups chunks by document, in order of first appearance, then by chunk index.
func sortByDocumentOrder(cs []*Candidate) {
	order := make(map[string]int)
	for _, c := range cs {
		if _, ok := order[c.Chunk.DocumentID]; !ok {
			order[c.Chunk.DocumentID] = len(order)
		}
	}
	sort.SliceStable(cs, func(i, j int) bool {
		oi, oj := order[cs[i].Chunk.DocumentID], order[cs[j].Chunk.DocumentID]
		if oi != oj {
			return oi < oj
		}
		return cs[i].Chunk.ChunkIndex < cs[j].Chunk.ChunkIndex
	})
}

// backfillSections labels chunks that lie inside a section with the nearest preceding
// heading, looking first at the other selected chunks and then at the stored document.
func (s *Selector) backfillSections(ctx context.Context, selected []*Candidate) {
	logger := contextutil.LoggerFromContext(ctx)

	byDoc := make(map[string][]*Candidate)
	for _, c := range selected {
		byDoc[c.Chunk.DocumentID] = append(byDoc[c.Chunk.DocumentID], c)
	}

	filled := 0
	for _, c := range selected {
		if c.Meta.Section != "" {
			continue
		}
		idx := c.Chunk.ChunkIndex

		var preceding []*storage.Chunk
		for _, other := range byDoc[c.Chunk.DocumentID] {
			if other.Chunk.ChunkIndex < idx {
				ch := *other.Chunk
				ch.Metadata = other.Meta
				preceding = append(preceding, &ch)
			}
		}
		label, heading := bestHeading(preceding, idx)

		if label == "" && s.chunks != nil && idx > 0 {
			stored, err := s.chunks.ListBefore(ctx, c.Chunk.DocumentID, idx, backfillLookback)
			if err != nil {
				logger.WarnContext(ctx, "section back-fill lookup failed", "document_id", c.Chunk.DocumentID, "error", err)
				continue
			}
			label, heading = bestHeading(stored, idx)
		}
		if label == "" {
			continue
		}
		c.Meta.Section = label
		if c.Meta.Heading == "" {
			c.Meta.Heading = heading
		}
		filled++
	}
	if filled > 0 {
		logger.DebugContext(ctx, "section labels back-filled", "count", filled)
	}
}

// bestHeading picks the label of the most suitable preceding chunk: numbered headings
// first, then explicit headings, then short labels, then the nearest one.
func bestHeading(preceding []*storage.Chunk, beforeIndex int) (label, heading string) {
	bestScore := -1
	for _, ch := range preceding {
		l, h := labelOf(ch)
		if l == "" {
			continue
		}
		score := 0
		if leadingSectionNumber.MatchString(l) || sectionMention.MatchString(l) {
			score += 1000
		}
		if h != "" {
			score += 100
		}
		if utf8.RuneCountInString(l) < 60 {
			score += 50
		}
		score += max(0, 50-(beforeIndex-ch.ChunkIndex))
		if score > bestScore {
			bestScore, label, heading = score, l, h
		}
	}
	return label, heading
}

// labelOf returns the section label and heading text a chunk carries, if any.
func labelOf(ch *storage.Chunk) (label, heading string) {
	if ch.Metadata.Section != "" {
		return ch.Metadata.Section, ch.Metadata.Heading
	}
	if ch.Metadata.Heading != "" {
		return ch.Metadata.Heading, ch.Metadata.Heading
	}
	first, _, _ := strings.Cut(strings.TrimSpace(ch.Content), "\n")
	if h, ok := indexer.DetectHeading(first); ok {
		return h.Section, h.Text
	}
	return "", ""
}
