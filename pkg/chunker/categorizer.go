package chunker

import "strings"

// CategoryGeneral is the label used when no pattern family wins.
const CategoryGeneral = "general"

type categoryPatterns struct {
	name     string
	patterns []string
}

// Category pattern families, checked in order. A later family must
// score strictly higher to win, so ties keep the earlier family.
var categories = []categoryPatterns{
	{"products", []string{"product", "shop", "store", "catalog", "item", "buy", "price", "cart"}},
	{"services", []string{"service", "solution", "offering", "consulting", "support"}},
	{"documentation", []string{"doc", "guide", "tutorial", "manual", "help", "api", "reference"}},
	{"about", []string{"about", "company", "team", "mission", "history", "who we are"}},
	{"blog", []string{"blog", "article", "post", "news", "update", "insight"}},
	{"contact", []string{"contact", "reach", "location", "phone", "email", "address"}},
	{"pricing", []string{"pric", "cost", "plan", "subscription", "fee", "rate"}},
	{"faq", []string{"faq", "question", "answer", "help", "support"}},
}

// InferCategory maps a page's url, title, headings and breadcrumbs to
// one coarse topical label. Pure and deterministic: occurrence counts
// of each family's patterns over the lowercased concatenation, the
// highest sum wins with ties going to the earlier-listed family, and
// zero matches yield general.
func InferCategory(pageURL, pageTitle string, headings, breadcrumbs []string) string {
	content := strings.ToLower(strings.Join([]string{
		pageURL,
		pageTitle,
		strings.Join(headings, " "),
		strings.Join(breadcrumbs, " "),
	}, " "))

	best := CategoryGeneral
	maxScore := 0

	for _, category := range categories {
		score := 0
		for _, pattern := range category.patterns {
			score += strings.Count(content, pattern)
		}
		if score > maxScore {
			maxScore = score
			best = category.name
		}
	}

	return best
}
