package rag

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	mainHeadingBoost   = 0.5
	tocBoost           = 2.0
	densityPerHeading  = 0.2
	densityMinHeadings = 3
	compareTermBoost   = 0.15
	compareBoostCap    = 0.4

	quotedTermWeight     = 3
	sectionPhraseScore   = 3
	sectionSubScore      = 5
	exactSubsectionScore = 8
	minKeywordRunes      = 3
)

var stopwords = map[string]struct{}{
	// Vietnamese
	"của": {}, "và": {}, "các": {}, "những": {}, "là": {}, "có": {}, "được": {}, "trong": {},
	"cho": {}, "với": {}, "này": {}, "không": {}, "một": {}, "như": {}, "thì": {}, "nào": {},
	"gì": {}, "về": {}, "hãy": {}, "cũng": {}, "đến": {}, "từ": {}, "theo": {}, "khi": {},
	"nói": {}, "bạn": {}, "tôi": {}, "đó": {}, "đâu": {}, "sao": {}, "thế": {}, "nhau": {},
	"giữa": {}, "trên": {}, "dưới": {}, "hay": {}, "hoặc": {}, "nên": {}, "mà": {}, "để": {},
	"tài": {}, "liệu": {}, "file": {},
	// English
	"the": {}, "and": {}, "are": {}, "for": {}, "from": {}, "has": {}, "have": {}, "was": {},
	"were": {}, "with": {}, "what": {}, "which": {}, "this": {}, "that": {}, "does": {}, "how": {},
	"about": {}, "between": {}, "into": {},
}

var (
	quotedTerm        = regexp.MustCompile(`["“”‘’]([^"“”‘’]{2,})["“”‘’]`)
	subsectionNumber  = regexp.MustCompile(`\b\d+\.\d+(?:\.\d+)*\b`)
	headingOccurrence = regexp.MustCompile(`(?im)(?:^|\n)\s*(?:(?:phần|chương|part|chapter)\s+(?:\d+|[ivxlc]+)` + wordEnd + `|\d+\.\d+(?:\.\d+)*\.?\s+\S)`)
	mainHeadingLine   = regexp.MustCompile(`(?i)^\s*#*\s*(?:(?:phần|chương|part|chapter)\s+(?:\d+|[ivxlc]+)` + wordEnd + `|[IVXLC]+[.)]\s)`)
)

// query holds the parsed parts of a question that boost rules look for.
type query struct {
	keywords     []string         // lower-case tokens, stop-words removed
	quoted       []string         // lower-case phrases the user put in quotes
	sectionTexts []string         // the literal "phần n" phrases
	sectionSubs  []*regexp.Regexp // "N." followed by a digit, per section phrase
	subsections  []string         // dotted numbers such as 4.1
}

func parseQuery(question string) query {
	lower := strings.ToLower(question)
	var q query
	seen := map[string]bool{}
	for _, tok := range filterStopwords(tokenize(lower)) {
		if utf8.RuneCountInString(tok) < minKeywordRunes || seen[tok] {
			continue
		}
		seen[tok] = true
		q.keywords = append(q.keywords, tok)
	}
	for _, m := range quotedTerm.FindAllStringSubmatch(lower, -1) {
		q.quoted = append(q.quoted, strings.TrimSpace(m[1]))
	}
	for _, m := range sectionMention.FindAllStringSubmatch(lower, -1) {
		q.sectionTexts = append(q.sectionTexts, m[1]+" "+m[2])
		q.sectionSubs = append(q.sectionSubs, regexp.MustCompile(`\b`+regexp.QuoteMeta(m[2])+`\.\d+`))
	}
	q.subsections = subsectionNumber.FindAllString(lower, -1)
	return q
}

// boostRule returns the additive boost of one heuristic. Rules may record provenance on c.
type boostRule func(c *Candidate, content string, q query, intent Intent, t Tuning) float64

var boostRules = []boostRule{
	keywordRule,
	mainHeadingRule,
	tocRule,
	overviewDensityRule,
	comparisonRule,
}

// Boost re-scores candidates in place and returns them sorted by descending similarity,
// with table-of-contents chunks moved to the front.
func Boost(candidates []*Candidate, question string, intent Intent, t Tuning) []*Candidate {
	q := parseQuery(question)
	for _, c := range candidates {
		content := strings.ToLower(c.Chunk.Content)
		var total float64
		for _, rule := range boostRules {
			total += rule(c, content, q, intent, t)
		}
		c.Similarity = clamp01(c.Similarity + total)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].IsTOC && !candidates[j].IsTOC
	})
	return candidates
}

// keywordRule folds keyword, quoted-term and section-number matches into one capped boost.
func keywordRule(c *Candidate, content string, q query, _ Intent, t Tuning) float64 {
	matches := 0
	for _, kw := range q.keywords {
		if strings.Contains(content, kw) {
			matches++
		}
	}
	c.KeywordMatches = matches

	score := matches
	for _, phrase := range q.quoted {
		if strings.Contains(content, phrase) {
			score += quotedTermWeight
		}
	}
	c.SectionScore = sectionScore(content, q)
	score += c.SectionScore

	return math.Min(t.KeywordBoostCap, float64(score)*t.KeywordBoost)
}

// sectionScore rewards chunks that contain the section the question names.
func sectionScore(content string, q query) int {
	score := 0
	for i, phrase := range q.sectionTexts {
		if !strings.Contains(content, phrase) {
			continue
		}
		score += sectionPhraseScore
		if q.sectionSubs[i].MatchString(content) {
			score += sectionSubScore
		}
	}
	for _, sub := range q.subsections {
		if strings.Contains(content, sub) {
			score += exactSubsectionScore
		}
	}
	return score
}

func mainHeadingRule(c *Candidate, content string, _ query, _ Intent, _ Tuning) float64 {
	if c.Meta.IsMainSection || mainHeadingLine.MatchString(c.Meta.Heading) {
		return mainHeadingBoost
	}
	return 0
}

func tocRule(c *Candidate, content string, _ query, _ Intent, _ Tuning) float64 {
	if strings.Contains(content, "mục lục") || strings.Contains(content, "table of contents") {
		c.IsTOC = true
		return tocBoost
	}
	return 0
}

func overviewDensityRule(_ *Candidate, content string, _ query, _ Intent, _ Tuning) float64 {
	n := len(headingOccurrence.FindAllStringIndex(content, -1))
	if n < densityMinHeadings {
		return 0
	}
	return math.Min(1.0, float64(n)*densityPerHeading)
}

func comparisonRule(_ *Candidate, content string, q query, intent Intent, _ Tuning) float64 {
	if intent != IntentCompareSynthesize {
		return 0
	}
	n := 0
	for _, kw := range q.keywords {
		if strings.Contains(content, kw) {
			n++
		}
	}
	if n < 2 {
		return 0
	}
	return math.Min(compareBoostCap, float64(n)*compareTermBoost)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
