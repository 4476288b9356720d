package rag

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"studyqa/internal/storage"
)

const (
	maxReferences         = 5
	maxOverviewReferences = 10
	previewRunes          = 160
	dominantSectionChunks = 3
)

// ReconcileInput carries what the reconciler needs besides the cited chunks.
type ReconcileInput struct {
	Answer   GeneratedAnswer
	Selected []*Candidate
	Intent   Intent
	// RequestedDocs is the caller's document filter; empty means any document.
	RequestedDocs []string
}

// Reconcile turns the chunks an answer cites into the final reference list.
func Reconcile(in ReconcileInput) []storage.Reference {
	if in.Answer.AnswerType.isEmpty() {
		return []storage.Reference{}
	}

	cited := citedCandidates(in.Answer.ChunksUsed, in.Selected)
	if len(in.RequestedDocs) > 0 {
		allowed := make(map[string]bool, len(in.RequestedDocs))
		for _, id := range in.RequestedDocs {
			allowed[id] = true
		}
		cited = filterCandidates(cited, func(c *Candidate) bool { return allowed[c.Chunk.DocumentID] })
	}
	supporting := len(cited)

	if !in.Intent.isOverview() && distinctDocuments(cited) == 1 {
		cited = narrowToDominantSections(cited)
	}

	sort.SliceStable(cited, func(i, j int) bool { return cited[i].Similarity > cited[j].Similarity })
	cited = dedupe(cited)

	limit := referenceLimit(in.Intent, supporting)
	if len(cited) > limit {
		cited = cited[:limit]
	}

	refs := make([]storage.Reference, 0, len(cited))
	for _, c := range cited {
		refs = append(refs, toReference(c))
	}
	return refs
}

// citedCandidates resolves chunk references against the selected context. Unknown
// references are dropped.
func citedCandidates(used []ChunkRef, selected []*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(used))
	seen := make(map[chunkKey]bool, len(used))
	for _, r := range used {
		var c *Candidate
		if r.DocumentID != "" {
			for _, s := range selected {
				if s.Chunk.DocumentID == r.DocumentID && s.Chunk.ChunkIndex == r.ChunkIndex {
					c = s
					break
				}
			}
		} else if r.Position >= 1 && r.Position <= len(selected) {
			c = selected[r.Position-1]
		}
		if c == nil || seen[c.key()] {
			continue
		}
		seen[c.key()] = true
		out = append(out, c)
	}
	return out
}

func filterCandidates(cs []*Candidate, keep func(*Candidate) bool) []*Candidate {
	out := cs[:0]
	for _, c := range cs {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func distinctDocuments(cs []*Candidate) int {
	docs := make(map[string]bool)
	for _, c := range cs {
		docs[c.Chunk.DocumentID] = true
	}
	return len(docs)
}

// narrowToDominantSections keeps the section with the most supporting chunks when it
// has at least three of them, otherwise the two best supported sections.
func narrowToDominantSections(cs []*Candidate) []*Candidate {
	type group struct {
		section string
		count   int
		best    float64
		first   int
	}
	groups := make(map[string]*group)
	var order []*group
	for i, c := range cs {
		g, ok := groups[c.Meta.Section]
		if !ok {
			g = &group{section: c.Meta.Section, first: i}
			groups[c.Meta.Section] = g
			order = append(order, g)
		}
		g.count++
		if c.Similarity > g.best {
			g.best = c.Similarity
		}
	}
	if len(order) <= 1 {
		return cs
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].best > order[j].best
	})

	keep := order
	if order[0].count >= dominantSectionChunks {
		keep = order[:1]
	} else if len(order) > 2 {
		keep = order[:2]
	}
	sections := make(map[string]bool, len(keep))
	for _, g := range keep {
		sections[g.section] = true
	}
	return filterCandidates(cs, func(c *Candidate) bool { return sections[c.Meta.Section] })
}

// dedupeKey groups PDF citations by page and other citations by section, falling
// back to the chunk itself.
func dedupeKey(c *Candidate) string {
	doc := c.Chunk.DocumentID
	if c.Document != nil && c.Document.FileType == storage.FileTypePDF && c.Meta.PageNumber != nil {
		return fmt.Sprintf("%s|page|%d", doc, *c.Meta.PageNumber)
	}
	if c.Document != nil && c.Document.FileType != storage.FileTypePDF && c.Meta.Section != "" {
		return doc + "|section|" + c.Meta.Section
	}
	return fmt.Sprintf("%s|chunk|%d", doc, c.Chunk.ChunkIndex)
}

// dedupe keeps the first candidate for each key; callers sort by relevance first.
func dedupe(cs []*Candidate) []*Candidate {
	seen := make(map[string]bool, len(cs))
	out := make([]*Candidate, 0, len(cs))
	for _, c := range cs {
		k := dedupeKey(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// referenceLimit caps the citation list. Simple questions with few supporting
// chunks get fewer references.
func referenceLimit(intent Intent, supporting int) int {
	switch intent {
	case IntentDocumentOverview:
		return maxOverviewReferences
	case IntentDirect, IntentExistence:
		switch {
		case supporting <= 2:
			return 2
		case supporting <= 4:
			return 4
		}
	}
	return maxReferences
}

func toReference(c *Candidate) storage.Reference {
	ref := storage.Reference{
		DocumentID:     c.Chunk.DocumentID,
		ChunkID:        c.Chunk.ID,
		ChunkIndex:     c.Chunk.ChunkIndex,
		PageNumber:     c.Meta.PageNumber,
		Section:        c.Meta.Section,
		Score:          c.Similarity,
		ContentPreview: preview(c.Chunk.Content, previewRunes),
	}
	if c.Document != nil {
		ref.DocumentFilename = c.Document.Filename
		ref.DocumentFileType = c.Document.FileType
	}
	return ref
}

// preview collapses whitespace and truncates to n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n-1]) + "…"
}
