package usecase

import (
	"log/slog"
	"regexp"
	"strings"

	"audit-rag/internal/domain"
)

var sensitivePatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\b\d{6}-\d{7}\b`), "[주민번호]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{5}\b`), "[사업자번호]"},
	{regexp.MustCompile(`\b\d{4}-\d{4}-\d{4}-\d{4}\b`), "[카드번호]"},
	{regexp.MustCompile(`\b\d{2,3}-\d{3,4}-\d{4}\b`), "[전화번호]"},
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Keep word characters and Hangul; everything else becomes a space.
	punctuationRe = regexp.MustCompile(`[^\w\s가-힣]`)
	hangulRe      = regexp.MustCompile(`[가-힣]`)
	wordCharRe    = regexp.MustCompile(`\w`)
)

// Fixed abbreviation dictionary. Expansion happens after lowercasing, so the
// ASCII keys are lowercase.
var abbreviations = []struct{ abbr, full string }{
	{"부가세", "부가가치세"},
	{"종소세", "종합소득세"},
	{"양도세", "양도소득세"},
	{"vat", "부가가치세"},
}

// Compound noise terms are stripped before single stopwords so that e.g.
// "적출사례" disappears as a whole instead of leaving "적출".
var compoundStopwords = []string{
	"적출사례", "조사사례", "적발사례", "세무조사", "세무사례",
}

var stopwords = []string{
	"사례", "사건", "적발", "적출", "조사", "예시", "예제",
	"알려줘", "알려주세요", "찾아줘", "검색", "보여줘", "관련",
	"있어", "있나요", "있습니까", "케이스",
}

var particles = []string{"시", "에", "의", "를", "을", "가", "이", "와", "과", "도"}

var particleRes = buildParticleRes()

var stopwordRes = buildStopwordRes()

func buildStopwordRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(stopwords))
	for _, noise := range stopwords {
		res = append(res, regexp.MustCompile(`(^|\s)`+regexp.QuoteMeta(noise)+`($|\s)`))
	}
	return res
}

func buildParticleRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(particles))
	for _, p := range particles {
		// A particle only counts when it trails a Hangul syllable and is
		// followed by whitespace.
		res = append(res, regexp.MustCompile(`([가-힣])`+regexp.QuoteMeta(p)+`\s+`))
	}
	return res
}

// Normalizer cleans raw user text into the canonical query form. It never
// fails: any issue leaves the original text in place.
type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Run masks sensitive spans, collapses whitespace and punctuation,
// lowercases ASCII, expands abbreviations, and strips stopwords and trailing
// particles.
func (n *Normalizer) Run(qc *domain.QueryContext) {
	text := qc.RawQuery

	masked := maskSensitive(text)

	if lang := detectLanguage(masked); lang != "ko" {
		n.logger.Warn("non_korean_query",
			slog.String("query_id", qc.QueryID),
			slog.String("language", lang))
	}

	normalized := normalizeText(masked)
	expanded := expandAbbreviations(normalized)
	cleaned := removeStopwords(expanded)

	if cleaned == "" {
		// Over-aggressive cleaning must not erase the query.
		cleaned = normalized
	}
	qc.NormalizedQuery = cleaned

	n.logger.Info("query_normalized",
		slog.String("query_id", qc.QueryID),
		slog.String("normalized", cleaned))
}

func maskSensitive(text string) string {
	masked := text
	for _, p := range sensitivePatterns {
		masked = p.re.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

func detectLanguage(text string) string {
	total := len(wordCharRe.FindAllString(text, -1)) + len(hangulRe.FindAllString(text, -1))
	if total == 0 {
		return "unknown"
	}
	korean := len(hangulRe.FindAllString(text, -1))
	if float64(korean)/float64(total) > 0.3 {
		return "ko"
	}
	return "en"
}

func normalizeText(text string) string {
	s := strings.TrimSpace(text)
	s = punctuationRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	return strings.TrimSpace(s)
}

func expandAbbreviations(text string) string {
	s := text
	for _, a := range abbreviations {
		s = strings.ReplaceAll(s, a.abbr, a.full)
	}
	return s
}

func removeStopwords(text string) string {
	s := text
	for _, compound := range compoundStopwords {
		s = strings.ReplaceAll(s, compound, "")
	}
	for _, re := range stopwordRes {
		s = re.ReplaceAllString(s, " ")
	}
	for _, re := range particleRes {
		s = re.ReplaceAllString(s, "$1 ")
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
