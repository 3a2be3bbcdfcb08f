package screen

import "strings"

// etfCategories is the closed set from spec.md §4.H step 1.
var etfCategories = []string{
	"미국주식", "인도", "일본", "중국", "반도체", "AI", "배당", "채권",
	"2차전지", "방산", "금", "원유", "코스피200", "코스닥150", "기타",
}

// etfKeywords maps each category to the name substrings that imply
// it, grounded on app/services/etf_categories.py's keyword table. An
// ETF can carry more than one label.
var etfKeywords = map[string][]string{
	"미국주식":   {"미국", "나스닥", "S&P", "다우"},
	"인도":     {"인도", "Nifty", "NIFTY"},
	"일본":     {"일본", "니케이", "TOPIX"},
	"중국":     {"중국", "차이나", "항셍", "CSI"},
	"반도체":    {"반도체", "세미콘"},
	"AI":     {"AI", "인공지능"},
	"배당":     {"배당", "고배당"},
	"채권":     {"채권", "국고채", "회사채"},
	"2차전지":   {"2차전지", "배터리"},
	"방산":     {"방산", "국방"},
	"금":      {"금현물", "골드"},
	"원유":     {"원유", "WTI"},
	"코스피200": {"코스피200", "KOSPI200"},
	"코스닥150": {"코스닥150", "KOSDAQ150"},
}

// ClassifyETF applies keyword rules to an ETF name, returning every
// matching category, or ["기타"] when nothing matches.
func ClassifyETF(name string) []string {
	var labels []string
	for _, category := range etfCategories {
		if category == "기타" {
			continue
		}
		for _, kw := range etfKeywords[category] {
			if strings.Contains(name, kw) {
				labels = append(labels, category)
				break
			}
		}
	}
	if len(labels) == 0 {
		return []string{"기타"}
	}
	return labels
}
