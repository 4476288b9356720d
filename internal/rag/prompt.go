package rag

import (
	"fmt"
	"strings"

	"studyqa/internal/storage"
)

// modeInstructions are the intent-specific parts of the prompt.
var modeInstructions = map[Intent]string{
	IntentDirect: `Answer the question directly and concisely in 1-3 paragraphs.
Quote exact definitions or figures from the chunks when they exist.`,

	IntentExpand: `Give a detailed, well-structured explanation.
Use a numbered or bulleted list when the chunks enumerate items, and keep every item the chunks list.`,

	IntentExistence: `Say clearly whether the documents mention the topic ("Có" / "Không").
If they do, summarise where and what they say in 2-4 sentences. If they do not, use answer_type "FALLBACK".`,

	IntentCompareSynthesize: `Compare the items the question names.
The answer MUST contain a markdown table: a header row with one column per compared item plus a "Tiêu chí" column, and at least 2 data rows.
Every cell must end with its citation, e.g. "... [Chunk 3]". After the table, add a short conclusion.`,

	IntentSectionOverview: `Give an overview of the section the question names.
Start with the section title exactly as written in the chunks, then list EVERY subsection found in the chunks as a numbered breakdown ("4.1 ...", "4.2 ...") with 1-2 sentences each.
Do not skip subsections and do not invent subsections that are not in the chunks.`,

	IntentDocumentOverview: `Give an overview of the whole document.
List EVERY top-level section (PHẦN / CHƯƠNG / Part / numbered heading) in document order as a numbered list with no gaps, with a 1-2 sentence summary each.
Prefer the table of contents chunk when one exists.
When several documents are provided, give a separate overview per document, headed by its filename.`,

	IntentCodeAnalysis: `Analyse the code in the chunks: explain what it does step by step, its inputs and outputs, and any pitfalls.
Reproduce code only as it appears in the chunks, inside markdown code blocks.`,

	IntentExerciseGeneration: `Create practice exercises based only on the chunks: 3-5 questions, each followed by its answer and the chunk it comes from.
Mix multiple-choice and short-answer questions.`,

	IntentMultiConceptReasoning: `Explain the reasoning that connects the concepts the question asks about.
You MAY combine information from several chunks, but every step of the reasoning must cite the chunk it relies on.`,
}

// PromptInput is everything the prompt is built from.
type PromptInput struct {
	Question  string
	Intent    Intent
	Chunks    []*Candidate
	Documents []*storage.Document
	// Threshold is the best-similarity value below which the model must answer FALLBACK.
	Threshold float64
}

// BuildPrompt renders the instruction prompt. Chunks are numbered from 1 in the given order.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are a study assistant. You answer questions strictly from the document chunks provided below.\n\n")

	mode, ok := modeInstructions[in.Intent]
	if !ok {
		mode = modeInstructions[IntentDirect]
	}
	fmt.Fprintf(&b, "MODE: %s\n%s\n\n", in.Intent, mode)

	b.WriteString("OUTPUT FORMAT (mandatory):\n")
	b.WriteString("- Respond with ONE valid JSON object and nothing else. Do not wrap it in markdown code fences.\n")
	b.WriteString(`- Fields: {"answer": string, "answer_type": string, "chunks_used": [chunk numbers], "confidence": number between 0 and 1, "sentence_mapping": [{"sentence": string, "chunks": [chunk numbers]}], "sources": [filenames]}`)
	b.WriteString("\n")
	fmt.Fprintf(&b, "- answer_type is one of: %s.\n", strings.Join(answerTypeNames(), ", "))
	b.WriteString("- chunks_used lists ONLY the numbers N of the [Chunk N] markers you actually used.\n")
	b.WriteString("- Write the answer in the same language as the question. Markdown is allowed inside the answer string.\n\n")

	b.WriteString("HARD RULES:\n")
	b.WriteString("- Never use information that is not in the chunks.\n")
	if !in.Intent.isReasoning() {
		b.WriteString("- Do not infer meaning by connecting chunks that are unrelated to each other.\n")
	}
	fmt.Fprintf(&b, "- If the highest Sim value below is under %.2f, or the chunks do not answer the question, return "+
		`{"answer": "Không tìm thấy thông tin này trong tài liệu.", "answer_type": "FALLBACK", "chunks_used": [], "confidence": 0, "sentence_mapping": [], "sources": []}`+"\n", in.Threshold)
	b.WriteString("- confidence reflects how completely the chunks support the answer.\n\n")

	if len(in.Documents) > 0 {
		b.WriteString("DOCUMENTS:\n")
		for _, d := range in.Documents {
			fmt.Fprintf(&b, "- %s (%s)\n", d.Filename, d.FileType)
		}
		if len(in.Documents) > 1 {
			b.WriteString("Several documents are in scope: name the document (filename) each statement comes from.\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("CHUNKS:\n")
	for i, c := range in.Chunks {
		fmt.Fprintf(&b, "%s\n%s\n\n", chunkMarker(i+1, c), strings.TrimSpace(c.Chunk.Content))
	}

	fmt.Fprintf(&b, "QUESTION: %s\n\nJSON:", strings.TrimSpace(in.Question))
	return b.String()
}

// chunkMarker renders "[Chunk N] [filename] [page/section] [Sim:x.xx]".
func chunkMarker(n int, c *Candidate) string {
	var loc []string
	if c.Meta.PageNumber != nil {
		loc = append(loc, fmt.Sprintf("Trang %d", *c.Meta.PageNumber))
	}
	if c.Meta.Section != "" {
		loc = append(loc, c.Meta.Section)
	}
	if len(loc) == 0 {
		loc = append(loc, "-")
	}
	filename := ""
	if c.Document != nil {
		filename = c.Document.Filename
	}
	return fmt.Sprintf("[Chunk %d] [%s] [%s] [Sim:%.2f]", n, filename, strings.Join(loc, " | "), c.Similarity)
}

func answerTypeNames() []string {
	return []string{
		string(IntentDirect), string(IntentExpand), string(IntentExistence), string(IntentCompareSynthesize),
		string(IntentSectionOverview), string(IntentDocumentOverview), string(IntentCodeAnalysis),
		string(IntentExerciseGeneration), string(IntentMultiConceptReasoning), string(AnswerSynthesis),
		string(AnswerFallback),
	}
}
