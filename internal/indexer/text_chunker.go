package indexer

import (
	"strings"
	"unicode/utf8"

	"studyqa/internal/storage"
)

// TextChunker splits plain text into chunks of at most size runes with overlap.
// Chunks never span pages, and a main-section heading always starts a new chunk.
type TextChunker struct {
	size    int
	overlap int
}

// NewTextChunker creates a chunker. overlap must be smaller than size.
func NewTextChunker(size, overlap int) *TextChunker {
	if overlap >= size {
		overlap = 0
	}
	return &TextChunker{size: size, overlap: overlap}
}

// Chunk implements Chunker.
func (c *TextChunker) Chunk(pages []Page) []Chunk {
	var out []Chunk
	for _, page := range pages {
		out = append(out, c.chunkPage(page)...)
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}

type textChunkBuilder struct {
	lines []string
	runes int
	fresh bool // holds text beyond the carried-over overlap
	meta  storage.ChunkMetadata
}

func (c *TextChunker) chunkPage(page Page) []Chunk {
	var pageNumber *int
	if page.Number > 0 {
		n := page.Number
		pageNumber = &n
	}

	var out []Chunk
	b := &textChunkBuilder{}
	flush := func(carry bool) {
		if b.fresh {
			meta := b.meta
			meta.PageNumber = pageNumber
			out = append(out, Chunk{Content: strings.Join(b.lines, "\n"), Metadata: meta})
		}
		next := &textChunkBuilder{}
		if carry && b.fresh && c.overlap > 0 {
			if tail := overlapTail(strings.Join(b.lines, "\n"), c.overlap); tail != "" {
				next.lines = []string{tail}
				next.runes = utf8.RuneCountInString(tail)
			}
		}
		b = next
	}

	for _, raw := range strings.Split(page.Text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		h, isHeading := DetectHeading(line)
		if isHeading && h.Main && b.fresh {
			flush(false)
		}

		for _, piece := range splitRunes(line, c.size) {
			n := utf8.RuneCountInString(piece)
			if b.runes > 0 && b.runes+1+n > c.size {
				if b.fresh {
					flush(true)
				}
				if b.runes+1+n > c.size {
					// the overlap alone leaves no room for this piece
					b = &textChunkBuilder{}
				}
			}
			b.lines = append(b.lines, piece)
			if b.runes > 0 {
				b.runes++
			}
			b.runes += n
			b.fresh = true
			if isHeading && b.meta.Heading == "" {
				b.meta.Section = h.Section
				b.meta.Heading = h.Text
				b.meta.IsMainSection = h.Main
				b.meta.IsSubsection = h.Subsection
			}
		}
	}
	flush(false)
	return out
}

// splitRunes cuts s into pieces of at most size runes, preferring spaces as cut points.
func splitRunes(s string, size int) []string {
	runes := []rune(s)
	if len(runes) <= size {
		return []string{s}
	}
	var parts []string
	for len(runes) > size {
		cut := size
		for i := size; i > size/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// overlapTail returns roughly the last n runes of s, starting at a word boundary.
func overlapTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return ""
	}
	tail := runes[len(runes)-n:]
	for i, r := range tail {
		if r == ' ' || r == '\n' {
			return strings.TrimSpace(string(tail[i+1:]))
		}
	}
	return strings.TrimSpace(string(tail))
}
