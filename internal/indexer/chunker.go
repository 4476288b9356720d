package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"studyqa/internal/storage"
)

const minChunkSize = 50

// MarkdownChunker chunks markdown content using goldmark AST parsing.
// Each heading starts a chunk; the heading is kept as the chunk's first line.
type MarkdownChunker struct {
	parser  goldmark.Markdown
	size    int
	overlap int
}

// NewMarkdownChunker creates a markdown chunker with a max chunk size in runes.
func NewMarkdownChunker(size, overlap int) *MarkdownChunker {
	if overlap >= size {
		overlap = 0
	}
	return &MarkdownChunker{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
		size:    size,
		overlap: overlap,
	}
}

// Chunk implements Chunker. Markdown has no pages, so page text is concatenated.
func (c *MarkdownChunker) Chunk(pages []Page) []Chunk {
	var parts []string
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	content := []byte(strings.Join(parts, "\n\n"))
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}

	doc := c.parser.Parser().Parse(text.NewReader(content))
	chunks := c.applySizeConstraints(c.buildChunks(doc, content))
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// buildChunks walks the AST and starts a new chunk at every heading.
func (c *MarkdownChunker) buildChunks(doc ast.Node, content []byte) []Chunk {
	var chunks []Chunk
	var b strings.Builder
	var meta storage.ChunkMetadata

	finish := func() {
		if body := strings.TrimSpace(b.String()); body != "" {
			chunks = append(chunks, Chunk{Content: body, Metadata: meta})
		}
		b.Reset()
		meta = storage.ChunkMetadata{}
	}
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			finish()
			headingText := extractTextFromNode(node, content)
			h, ok := DetectHeading(headingText)
			if !ok {
				h = Heading{Section: headingText}
			}
			meta = storage.ChunkMetadata{
				Section:       h.Section,
				Heading:       headingText,
				IsMainSection: h.Main || node.Level == 1,
				IsSubsection:  h.Subsection || node.Level >= 3,
			}
			b.WriteString(strings.Repeat("#", node.Level) + " " + headingText + "\n")
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			b.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil

		case *ast.String:
			b.Write(node.Value)
			return ast.WalkContinue, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			newline()
			b.WriteString("```\n")
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(content))
			}
			newline()
			b.WriteString("```\n")
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			// the first paragraph of a list item continues its "- " marker
			if _, inItem := node.Parent().(*ast.ListItem); !inItem || node.PreviousSibling() != nil {
				newline()
			}
			return ast.WalkContinue, nil

		case *ast.List:
			newline()
			return ast.WalkContinue, nil

		case *ast.ListItem:
			newline()
			b.WriteString("- ")
			return ast.WalkContinue, nil

		case *east.Table:
			newline()
			return ast.WalkContinue, nil

		case *east.TableHeader, *east.TableRow:
			newline()
			b.WriteString(extractTableRowText(node, content))
			b.WriteString("\n")
			if _, header := node.(*east.TableHeader); header {
				b.WriteString(tableSeparator(node))
				b.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	finish()
	return chunks
}

// extractTextFromNode extracts text content from a node and its children.
func extractTextFromNode(n ast.Node, content []byte) string {
	var textBuilder strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			textBuilder.Write(v.Segment.Value(content))
		case *ast.String:
			textBuilder.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(textBuilder.String())
}

// extractTableRowText renders a table row as a markdown row.
func extractTableRowText(row ast.Node, content []byte) string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		cells = append(cells, extractTextFromNode(cell, content))
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

func tableSeparator(header ast.Node) string {
	n := header.ChildCount()
	if n == 0 {
		return ""
	}
	return "|" + strings.Repeat(" --- |", n)
}

// applySizeConstraints merges chunks smaller than minChunkSize into the next
// chunk and splits chunks larger than the max size.
// Size is measured in runes, not bytes.
func (c *MarkdownChunker) applySizeConstraints(chunks []Chunk) []Chunk {
	var result []Chunk
	for i := 0; i < len(chunks); i++ {
		current := chunks[i]
		// a lone short heading is folded into the following section
		if utf8.RuneCountInString(current.Content) < minChunkSize && i+1 < len(chunks) {
			next := chunks[i+1]
			merged := current.Content + "\n\n" + next.Content
			if utf8.RuneCountInString(merged) <= c.size {
				if current.Metadata.Heading == "" {
					current.Metadata = next.Metadata
				}
				current.Content = merged
				i++
			}
		}

		if utf8.RuneCountInString(current.Content) > c.size {
			result = append(result, c.splitChunk(current)...)
		} else {
			result = append(result, current)
		}
	}
	return result
}

// splitChunk splits an oversized chunk at paragraph, line or sentence boundaries,
// falling back to a hard split. Continuation pieces carry the overlap but no heading.
func (c *MarkdownChunker) splitChunk(chunk Chunk) []Chunk {
	runes := []rune(chunk.Content)
	var splits []Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			window := runes[start:end]
			if cut := lastIndexRunes(window, "\n\n"); cut > c.size/2 {
				end = start + cut + 2
			} else if cut := lastIndexRunes(window, "\n"); cut > c.size/2 {
				end = start + cut + 1
			} else if cut := lastIndexRunes(window, ". "); cut > c.size/2 {
				end = start + cut + 2
			}
		}

		piece := Chunk{Content: strings.TrimSpace(string(runes[start:end]))}
		if len(splits) == 0 {
			piece.Metadata = chunk.Metadata
		}
		if piece.Content != "" {
			splits = append(splits, piece)
		}
		if end >= len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return splits
}

// lastIndexRunes is strings.LastIndex measured in runes.
func lastIndexRunes(window []rune, sep string) int {
	s := string(window)
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:idx])
}
