package rag

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// llmAnswer is the JSON object the prompt asks for. Field decoding is lenient
// because models return numbers as strings and chunk ids in several shapes.
type llmAnswer struct {
	Answer          string            `json:"answer"`
	AnswerType      string            `json:"answer_type"`
	ChunksUsed      []chunkUsed       `json:"chunks_used"`
	Confidence      flexFloat         `json:"confidence"`
	SentenceMapping []SentenceMapping `json:"sentence_mapping"`
}

// parser is one recovery layer. It reports false when it cannot produce a result.
type parser struct {
	name  string
	parse func(raw string) (*llmAnswer, bool)
}

var parsers = []parser{
	{"strict", parseStrict},
	{"fenced", parseFenced},
	{"braces", parseBraces},
	{"reconstructed", reconstruct},
}

// parseResponse runs the layers in order and returns the first result with the layer name.
// reconstruct never fails, so a result is always returned.
func parseResponse(raw string) (*llmAnswer, string) {
	for _, p := range parsers {
		if a, ok := p.parse(raw); ok {
			return a, p.name
		}
	}
	return &llmAnswer{}, "none"
}

func parseStrict(raw string) (*llmAnswer, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var a llmAnswer
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, false
	}
	if a.Answer == "" && a.AnswerType == "" {
		return nil, false
	}
	return &a, true
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

func parseFenced(raw string) (*llmAnswer, bool) {
	for _, m := range fencedJSON.FindAllStringSubmatch(raw, -1) {
		if a, ok := parseStrict(m[1]); ok {
			return a, true
		}
	}
	return nil, false
}

// parseBraces tries every balanced {...} span, outermost first.
func parseBraces(raw string) (*llmAnswer, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if end := matchBrace(raw, start); end > start {
			if a, ok := parseStrict(raw[start : end+1]); ok {
				return a, true
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var (
	chunkMention  = regexp.MustCompile(`(?i)\bchunks?\s*#?\s*(\d+)`)
	chunksUsedTag = regexp.MustCompile(`(?i)\[?\s*chunks_used\s*:\s*([\d,\s]*)\]?`)
	markdownTable = regexp.MustCompile(`(?m)^\s*\|.+\|\s*\n\s*\|[\s:|-]*-{3,}[\s:|-]*\|?\s*$`)
	headingMarker = regexp.MustCompile(`(?m)^\s*#{1,6}\s+\S`)
	numberedItem  = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	// answerField finds the answer string of a truncated or otherwise broken JSON object.
	answerField   = regexp.MustCompile(`"answer"\s*:\s*"((?:[^"\\]|\\.)*)`)
)

// reconstruct builds a result from free text: chunk mentions become chunks_used, the
// answer type is inferred from the text's shape and each sentence is mapped to the
// nearest preceding chunk mention.
func reconstruct(raw string) (*llmAnswer, bool) {
	text := strings.TrimSpace(raw)
	if m := answerField.FindStringSubmatch(text); m != nil {
		if unquoted, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
			text = strings.TrimSpace(unquoted)
		} else {
			text = strings.TrimSpace(m[1])
		}
	}
	var used []int
	seen := map[int]bool{}
	addUsed := func(n int) {
		if n > 0 && !seen[n] {
			seen[n] = true
			used = append(used, n)
		}
	}

	if m := chunksUsedTag.FindStringSubmatch(text); m != nil {
		for _, f := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || unicode.IsSpace(r) }) {
			n, _ := strconv.Atoi(f)
			addUsed(n)
		}
		text = strings.TrimSpace(chunksUsedTag.ReplaceAllString(text, ""))
	}
	for _, m := range chunkMention.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(m[1])
		addUsed(n)
	}

	a := &llmAnswer{
		Answer:          text,
		AnswerType:      string(inferAnswerType(text, len(used) > 0)),
		SentenceMapping: mapSentences(text),
	}
	for _, n := range used {
		a.ChunksUsed = append(a.ChunksUsed, chunkUsed{Position: n})
	}
	if len(used) > 0 {
		a.Confidence = 0.5
	}
	return a, true
}

// inferAnswerType guesses an answer type from structural markers in the text.
func inferAnswerType(text string, hasChunks bool) Intent {
	switch {
	case markdownTable.MatchString(text):
		return IntentCompareSynthesize
	case headingMarker.MatchString(text) || sectionMention.MatchString(text):
		return IntentSectionOverview
	case numberedItem.MatchString(text) && hasChunks:
		return IntentExpand
	case hasChunks:
		return IntentDirect
	default:
		return AnswerFallback
	}
}

// mapSentences splits text into sentences and attributes each one to the
// nearest chunk mentioned in or before it.
func mapSentences(text string) []SentenceMapping {
	var out []SentenceMapping
	current := 0
	for _, s := range splitSentences(text) {
		if ms := chunkMention.FindAllStringSubmatch(s, -1); len(ms) > 0 {
			current, _ = strconv.Atoi(ms[len(ms)-1][1])
		}
		m := SentenceMapping{Sentence: s}
		if current > 0 {
			m.Chunks = []int{current}
		}
		out = append(out, m)
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		end := r == '\n' || ((r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])))
		if !end {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// chunkUsed decodes a chunks_used entry: 3, "3", "Chunk 3" or {"chunk_index": 3, "document_id": "..."}.
// Entries that cannot be understood decode to the zero value and are dropped later.
type chunkUsed ChunkRef

func (c *chunkUsed) UnmarshalJSON(data []byte) error {
	*c = chunkUsed{}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		c.Position = int(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Position = firstInt(s)
		return nil
	}
	var obj struct {
		DocumentID string   `json:"document_id"`
		ChunkIndex *flexInt `json:"chunk_index"`
		Chunk      *flexInt `json:"chunk"`
		Position   *flexInt `json:"position"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	switch {
	case obj.DocumentID != "" && obj.ChunkIndex != nil:
		c.DocumentID, c.ChunkIndex = obj.DocumentID, int(*obj.ChunkIndex)
	case obj.Chunk != nil:
		c.Position = int(*obj.Chunk)
	case obj.Position != nil:
		c.Position = int(*obj.Position)
	case obj.ChunkIndex != nil:
		c.Position = int(*obj.ChunkIndex)
	}
	return nil
}

func (m *SentenceMapping) UnmarshalJSON(data []byte) error {
	var obj struct {
		Sentence   string          `json:"sentence"`
		Text       string          `json:"text"`
		Chunks     json.RawMessage `json:"chunks"`
		Chunk      json.RawMessage `json:"chunk"`
		ChunkIndex json.RawMessage `json:"chunk_index"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*m = SentenceMapping{}
		return nil
	}
	m.Sentence = obj.Sentence
	if m.Sentence == "" {
		m.Sentence = obj.Text
	}
	m.Chunks = nil
	for _, raw := range []json.RawMessage{obj.Chunks, obj.Chunk, obj.ChunkIndex} {
		if len(raw) == 0 {
			continue
		}
		var list []chunkUsed
		if err := json.Unmarshal(raw, &list); err != nil {
			var one chunkUsed
			_ = json.Unmarshal(raw, &one)
			list = []chunkUsed{one}
		}
		for _, u := range list {
			if u.Position > 0 {
				m.Chunks = append(m.Chunks, u.Position)
			}
		}
		break
	}
	return nil
}

// flexFloat decodes 0.8, "0.8" and "80%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = 0
		return nil
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		*f = 0
		return nil
	}
	if percent {
		v /= 100
	}
	*f = flexFloat(v)
	return nil
}

// flexInt decodes 3 and "3".
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*i = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = flexInt(firstInt(s))
	}
	return nil
}

var digits = regexp.MustCompile(`\d+`)

func firstInt(s string) int {
	n, _ := strconv.Atoi(digits.FindString(s))
	return n
}
