package domain

// Section labels carried by every chunk. The two primary sections drive
// stage-2 retrieval; the auxiliary ones only affect presentation order.
const (
	SectionFindings  = "investigation-findings"
	SectionTechnique = "investigation-technique"
	SectionTaxation  = "taxation-logic"
	SectionEvidence  = "evidence-and-risk"
)

// RequiredSections returns the sections stage 2 must cover, derived from the
// parser's section hints when present, otherwise both primary sections.
func RequiredSections(hints map[string][]string) []string {
	var sections []string
	for _, s := range []string{SectionFindings, SectionTechnique} {
		if len(hints[s]) > 0 {
			sections = append(sections, s)
		}
	}
	if len(sections) == 0 {
		return []string{SectionFindings, SectionTechnique}
	}
	return sections
}

var sectionPackOrder = map[string]int{
	SectionTechnique: 1,
	SectionTaxation:  2,
	SectionEvidence:  3,
	SectionFindings:  4,
}

// SectionPackRank orders sections for context packing. Unknown sections sort
// last.
func SectionPackRank(section string) int {
	if r, ok := sectionPackOrder[section]; ok {
		return r
	}
	return 99
}
