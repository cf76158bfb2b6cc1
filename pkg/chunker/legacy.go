package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// Patterns scrubbing markup remnants and CSS/JS-looking tokens out of
// flattened text before sentence packing.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
	regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
	regexp.MustCompile(`(?s)<!--.*?-->`),
	regexp.MustCompile(`<[^>]+>`),
	regexp.MustCompile(`\{[^}]+\}`),
	regexp.MustCompile(`\$\w+[^;]*;`),
	regexp.MustCompile(`window\.\w+[^;]*;`),
	regexp.MustCompile(`document\.\w+[^;]*;`),
	regexp.MustCompile(`\w+:\s*[^;]*;`),
	regexp.MustCompile(`(?i)\b(important|px|rem|rgba|deg|var|media|function|return|const|let|getElementById|addEventListener|onclick|onload|margin|padding|border|width|height)\b`),
	regexp.MustCompile(`[{}();]`),
}

var (
	attrNoiseRe  = regexp.MustCompile(`(?i)^(class|id|style|href|src|alt|title|width|height|border|margin|padding)$`)
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
	navNoiseRe   = regexp.MustCompile(`(?i)^(click|here|more|info|read|see|view|go|back|next|prev|home|menu|nav|footer|header|login|register|sign|up|in)$`)
	splitRe      = regexp.MustCompile(`[.!?]+`)
)

// Inline structure rewrites applied before tag stripping so lists
// and emphasis survive as plain-text markers.
var structureRewrites = []struct {
	re  *regexp.Regexp
	rep string
}{
	{regexp.MustCompile(`(?i)<li[^>]*>`), "\n• "},
	{regexp.MustCompile(`(?i)</li>`), ""},
	{regexp.MustCompile(`(?i)</?[uo]l[^>]*>`), "\n"},
	{regexp.MustCompile(`(?i)<h[1-6][^>]*>`), "\n\n**"},
	{regexp.MustCompile(`(?i)</h[1-6]>`), "**\n"},
	{regexp.MustCompile(`(?i)<p[^>]*>`), "\n"},
	{regexp.MustCompile(`(?i)</p>`), "\n"},
	{regexp.MustCompile(`(?i)<br[^>]*>`), "\n"},
	{regexp.MustCompile(`(?i)</?(strong|b)[^>]*>`), "**"},
	{regexp.MustCompile(`(?i)</?(em|i)[^>]*>`), "*"},
}

// Legacy is the fallback chunker for pages that yield no structured
// sections: sentence windows bounded by MaxSize, with a two-sentence
// overlap carried into the next window and a [Title - Heading]
// context tag on every chunk.
type Legacy struct {
	MaxSize int
}

func NewLegacy(maxSize int) Legacy {
	if maxSize == 0 {
		maxSize = 1200
	}
	return Legacy{MaxSize: maxSize}
}

func (l Legacy) Chunk(text, pageTitle, sectionHeading string) []string {
	for _, rw := range structureRewrites {
		text = rw.re.ReplaceAllString(text, rw.rep)
	}
	for _, re := range noisePatterns {
		text = re.ReplaceAllString(text, " ")
	}
	text = spaceCollapse(text)

	var sentences []string
	for _, s := range splitRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) > 20 && !attrNoiseRe.MatchString(s) && !digitsOnlyRe.MatchString(s) && !navNoiseRe.MatchString(s) {
			sentences = append(sentences, s)
		}
	}

	prefix := ""
	if pageTitle != "" {
		if sectionHeading != "" {
			prefix = fmt.Sprintf("[%s - %s] ", pageTitle, sectionHeading)
		} else {
			prefix = fmt.Sprintf("[%s] ", pageTitle)
		}
	}

	var chunks []string
	current := ""

	for i, sentence := range sentences {
		potential := sentence
		if current != "" {
			potential = current + ". " + sentence
		}

		if len(potential) > l.MaxSize && current != "" {
			if len(current) > 50 {
				chunks = append(chunks, prefix+strings.TrimSpace(current))
			}

			// Carry the previous two sentences into the next window
			// for continuity across the cut.
			start := i - 2
			if start < 0 {
				start = 0
			}
			overlap := strings.Join(sentences[start:i], ". ")
			if overlap != "" {
				current = overlap + ". " + sentence
			} else {
				current = sentence
			}
		} else {
			current = potential
		}
	}

	if strings.TrimSpace(current) != "" && len(current) > 50 {
		chunks = append(chunks, prefix+strings.TrimSpace(current))
	}

	var out []string
	for _, chunk := range chunks {
		if len(chunk) > 30 {
			out = append(out, chunk)
		}
	}
	return out
}
