package usecase

// Controlled vocabulary for slot extraction and expansion prompts. The
// ingestion side derives the same lists from the corpus; this copy is the
// query-time gazetteer and the prompt vocabulary.

// industryVocab maps canonical industry names to their surface synonyms.
var industryVocab = map[string][]string{
	"제조업":   {"제조", "공장", "생산업"},
	"도소매업":  {"도매업", "소매업", "도소매", "유통업"},
	"건설업":   {"건설", "시공", "토목"},
	"음식점업":  {"음식점", "외식업", "요식업"},
	"부동산업":  {"부동산", "임대업", "부동산임대"},
	"운수업":   {"운송업", "물류업", "화물운송"},
	"금융업":   {"금융", "은행업", "보험업"},
	"정보통신업": {"IT", "소프트웨어", "통신업"},
	"의료업":   {"병원", "의원", "약국"},
	"서비스업":  {"용역업", "서비스"},
}

// domainTagVocab maps canonical audit topics to synonyms. Keys feed the
// expander prompt and the rule-based fallback.
var domainTagVocab = map[string][]string{
	"매출누락":   {"수입금액누락", "매출탈루", "현금매출누락"},
	"가공경비":   {"가공원가", "가공비용", "허위경비"},
	"인건비":    {"가공인건비", "급여", "노무비"},
	"접대비":    {"기업업무추진비"},
	"감가상각비":  {"감가상각", "상각비"},
	"기부금":    {"지정기부금", "법정기부금"},
	"대손충당금":  {"대손금", "대손상각"},
	"미환류소득":  {"기업소득환류", "투자상생협력"},
	"부당행위계산": {"부당행위", "특수관계자거래"},
	"이전가격":   {"정상가격", "국제거래"},
	"합병법인":   {"인수합병", "기업결합", "피합병법인"},
	"대리납부":   {"원천징수", "대리납부의무"},
}

// sectionKeywords maps each primary section to the surface cues that hint at
// it in a query.
var sectionKeywords = map[string][]string{
	"investigation-findings":  {"착안", "발견", "적발", "확인", "검토", "문제점", "의혹", "혐의"},
	"investigation-technique": {"조사기법", "기법", "방법", "절차", "확인방법", "검증", "조사방법", "접근"},
}
