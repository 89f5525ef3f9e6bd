package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"audit-rag/internal/domain"
)

var explainMarkers = []string{"설명해", "뭐야", "무엇인지", "정의", "의미", "what is", "explain"}

var (
	codeRe   = regexp.MustCompile(`\b\d{5}\b`)
	quotedRe = regexp.MustCompile(`["'“”‘’「」]([^"'“”‘’「」]+)["'“”‘’「」]`)
	// Capitalized ASCII spans survive normalization only inside quoted
	// segments, but raw queries reach the fallback too.
	capitalizedRe = regexp.MustCompile(`\b[A-Z][A-Za-z]{2,}\b`)
)

// QueryParser classifies intent and extracts slots, preferring the LLM and
// degrading to a rule-based extractor.
type QueryParser struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewQueryParser(llm domain.LLMClient, logger *slog.Logger) *QueryParser {
	return &QueryParser{llm: llm, logger: logger}
}

// Run fills qc.Intent and qc.Slots. It never fails: LLM trouble switches to
// the rule-based extractor with a confidence cap.
func (p *QueryParser) Run(ctx context.Context, qc *domain.QueryContext) {
	query := qc.Query()
	qc.Intent = classifyIntent(query)

	slots, wellFormed, err := p.extractWithLLM(ctx, query)
	fallback := err != nil || !slots.HasAnyMetaSlot()
	if fallback {
		if err != nil {
			p.logger.Warn("slot_extraction_llm_failed",
				slog.String("query_id", qc.QueryID),
				slog.String("error", err.Error()))
		}
		slots = extractSlotsRuleBased(query)
		wellFormed = false
	}

	slots.FreeText = query
	slots.Confidence = slotConfidence(slots, wellFormed, fallback)
	qc.Slots = slots

	p.logger.Info("query_parsed",
		slog.String("query_id", qc.QueryID),
		slog.String("intent", string(qc.Intent)),
		slog.Float64("confidence", slots.Confidence),
		slog.Bool("from_llm", slots.FromLLM))
}

func classifyIntent(query string) domain.Intent {
	lowered := strings.ToLower(query)
	for _, marker := range explainMarkers {
		if strings.Contains(lowered, marker) {
			return domain.IntentExplain
		}
	}
	return domain.IntentCaseLookup
}

// slotConfidence scores how trustworthy the extracted slots are. Fallback
// extraction is capped at 0.5 so thin rule matches cannot pass the router on
// their own.
func slotConfidence(slots domain.Slots, wellFormedJSON, fallback bool) float64 {
	score := 0.0
	if slots.FromLLM && (slots.HasAnyMetaSlot() || len(slots.Entities) > 0) {
		score += 0.3
	}
	if len(slots.Codes) > 0 || len(slots.IndustrySub) > 0 {
		score += 0.2
	}
	if len(slots.DomainTags) > 0 {
		score += 0.2
	}
	if wellFormedJSON {
		score += 0.3
	}
	if fallback {
		score -= 0.2
		if score > 0.5 {
			score = 0.5
		}
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// slotResponse mirrors the JSON shape the extraction prompt demands. flexList
// tolerates the model returning a bare string where a list was asked for.
type slotResponse struct {
	IndustrySub  flexList            `json:"industry_sub"`
	DomainTags   flexList            `json:"domain_tags"`
	Code         flexList            `json:"code"`
	Entities     flexList            `json:"entities"`
	SectionHints map[string]flexList `json:"section_hints"`
}

type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*f = []string{single}
		}
		return nil
	}
	*f = nil
	return nil
}

func (p *QueryParser) extractWithLLM(ctx context.Context, query string) (domain.Slots, bool, error) {
	prompt := buildSlotPrompt(query)

	raw, err := p.llm.Generate(ctx, prompt, true)
	if err != nil {
		return domain.Slots{}, false, fmt.Errorf("generate slots: %w", err)
	}

	var resp slotResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil {
		return domain.Slots{}, false, fmt.Errorf("parse slot json: %w", err)
	}

	hints := map[string][]string{}
	for section, kws := range resp.SectionHints {
		canonical := canonicalSection(section)
		if canonical == "" || len(kws) == 0 {
			continue
		}
		hints[canonical] = append(hints[canonical], kws...)
	}

	return domain.Slots{
		IndustrySub:  dedupe(resp.IndustrySub),
		DomainTags:   dedupe(resp.DomainTags),
		Codes:        dedupe(resp.Code),
		Entities:     dedupe(resp.Entities),
		SectionHints: hints,
		FromLLM:      true,
	}, true, nil
}

func buildSlotPrompt(query string) string {
	var b strings.Builder
	b.WriteString("질문에서 명시된 정보만 JSON으로 추출하세요. 추측 금지.\n\n")
	b.WriteString("질문: " + query + "\n\n")
	b.WriteString("JSON 형식:\n")
	b.WriteString("{\n")
	b.WriteString(`  "industry_sub": [],` + "\n")
	b.WriteString(`  "domain_tags": [],` + "\n")
	b.WriteString(`  "code": [],` + "\n")
	b.WriteString(`  "entities": [],` + "\n")
	b.WriteString(`  "section_hints": {"착안": [], "기법": []}` + "\n")
	b.WriteString("}\n\n")
	b.WriteString("허용 업종: " + strings.Join(sortedKeys(industryVocab), ", ") + "\n")
	b.WriteString("허용 주제: " + strings.Join(sortedKeys(domainTagVocab), ", ") + "\n\n")
	b.WriteString("규칙:\n")
	b.WriteString("- industry_sub와 domain_tags는 위 허용 목록에서만 고르세요\n")
	b.WriteString("- code는 5자리 숫자 코드만 (예: 10501)\n")
	b.WriteString("- entities는 회사명, 인명 등 고유명사\n")
	b.WriteString("- \"착안\", \"조사기법\", \"방법\" 등 단서가 있으면 section_hints에 추가\n")
	b.WriteString("- JSON만 반환하세요.")
	return b.String()
}

// canonicalSection maps prompt-side hint keys to section labels.
func canonicalSection(key string) string {
	switch strings.TrimSpace(key) {
	case "착안", domain.SectionFindings:
		return domain.SectionFindings
	case "기법", domain.SectionTechnique:
		return domain.SectionTechnique
	default:
		return ""
	}
}

func extractSlotsRuleBased(query string) domain.Slots {
	slots := domain.Slots{SectionHints: map[string][]string{}}

	slots.Codes = dedupe(codeRe.FindAllString(query, -1))

	for industry, synonyms := range industryVocab {
		for _, surface := range append([]string{industry}, synonyms...) {
			if strings.Contains(query, surface) {
				slots.IndustrySub = append(slots.IndustrySub, industry)
				break
			}
		}
	}
	sort.Strings(slots.IndustrySub)

	for tag, synonyms := range domainTagVocab {
		for _, surface := range append([]string{tag}, synonyms...) {
			if strings.Contains(query, surface) {
				slots.DomainTags = append(slots.DomainTags, tag)
				break
			}
		}
	}
	sort.Strings(slots.DomainTags)

	for _, match := range quotedRe.FindAllStringSubmatch(query, -1) {
		slots.Entities = append(slots.Entities, strings.TrimSpace(match[1]))
	}
	slots.Entities = append(slots.Entities, capitalizedRe.FindAllString(query, -1)...)
	slots.Entities = dedupe(slots.Entities)

	for section, keywords := range sectionKeywords {
		for _, kw := range keywords {
			if strings.Contains(query, kw) {
				slots.SectionHints[section] = append(slots.SectionHints[section], kw)
			}
		}
	}

	return slots
}

// extractJSONObject trims surrounding prose or fences around the first JSON
// object in an LLM response.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
