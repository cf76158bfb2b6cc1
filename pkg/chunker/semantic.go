package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xhad/sitebot/internal/models"
)

// Boilerplate containers stripped before sectioning.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
	regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`),
	regexp.MustCompile(`(?is)<header[^>]*>.*?</header>`),
	regexp.MustCompile(`(?is)<aside[^>]*>.*?</aside>`),
	regexp.MustCompile(`(?is)<div[^>]*class="[^"]*sidebar[^"]*"[^>]*>.*?</div>`),
	regexp.MustCompile(`(?is)<div[^>]*class="[^"]*advertisement[^"]*"[^>]*>.*?</div>`),
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
}

var (
	headingRe   = regexp.MustCompile(`(?is)<(h[1-6])[^>]*>(.*?)</h[1-6]>`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`\s+`)
	sentenceRe  = regexp.MustCompile(`[^.!?]+[.!?]+`)
	paragraphRe = regexp.MustCompile(`(?i)<p[^>]*>`)
	closePRe    = regexp.MustCompile(`(?i)</p>`)
)

// Semantic splits raw page markup into heading-delimited sections and
// emits bounded chunks carrying the section heading as context.
type Semantic struct {
	MinSize int
	MaxSize int
}

func NewSemantic(minSize, maxSize int) Semantic {
	if minSize == 0 {
		minSize = 50
	}
	if maxSize == 0 {
		maxSize = 1200
	}
	return Semantic{MinSize: minSize, MaxSize: maxSize}
}

// Chunk produces section chunks from a page's raw markup. Empty input
// yields an empty list. With no heading sections at all the page
// falls back to paragraph packing.
func (s Semantic) Chunk(html, pageTitle, pageURL string) []models.SectionChunk {
	cleaned := stripBoilerplate(html)

	var chunks []models.SectionChunk

	sections := splitSections(cleaned)
	for _, sec := range sections {
		text := flattenText(sec.body)
		if len(text) < s.MinSize {
			continue
		}

		if len(text) > s.MaxSize {
			chunks = append(chunks, s.splitSection(text, sec.heading, sec.level, pageTitle, pageURL)...)
			continue
		}

		chunks = append(chunks, models.SectionChunk{
			Text:    fmt.Sprintf("**%s**\n\n%s", sec.heading, text),
			Title:   pageTitle,
			Heading: sec.heading,
			URL:     pageURL,
			Level:   sec.level,
		})
	}

	if len(chunks) == 0 {
		chunks = s.paragraphFallback(cleaned, pageTitle, pageURL)
	}

	return chunks
}

// splitSection breaks an oversized section on sentence boundaries,
// restating the heading with a "(continued)" marker on each split so
// context survives the cut. A single sentence longer than the budget
// is emitted as its own oversized chunk rather than truncated.
func (s Semantic) splitSection(text, heading string, level int, pageTitle, pageURL string) []models.SectionChunk {
	sentences := sentenceRe.FindAllString(text, -1)
	if sentences == nil {
		sentences = []string{text}
	}

	var chunks []models.SectionChunk
	emit := func(body string) {
		if len(body) > s.MinSize {
			chunks = append(chunks, models.SectionChunk{
				Text:    strings.TrimSpace(body),
				Title:   pageTitle,
				Heading: heading,
				URL:     pageURL,
				Level:   level,
			})
		}
	}

	current := fmt.Sprintf("**%s**\n\n", heading)
	for _, sentence := range sentences {
		if len(current)+len(sentence) > s.MaxSize {
			emit(current)
			current = fmt.Sprintf("**%s** (continued)\n\n%s", heading, sentence)
		} else {
			current += sentence
		}
	}
	emit(current)

	return chunks
}

// paragraphFallback handles sectionless pages: paragraphs over 50
// chars packed greedily into max-size chunks.
func (s Semantic) paragraphFallback(html, pageTitle, pageURL string) []models.SectionChunk {
	flat := closePRe.ReplaceAllString(paragraphRe.ReplaceAllString(html, "\n\n"), "")
	flat = spaceCollapse(tagRe.ReplaceAllString(flat, " "))

	var paragraphs []string
	for _, p := range strings.Split(flat, "\n\n") {
		if len(strings.TrimSpace(p)) > 50 {
			paragraphs = append(paragraphs, strings.TrimSpace(p))
		}
	}

	var chunks []models.SectionChunk
	emit := func(body string) {
		if len(body) > s.MinSize {
			chunks = append(chunks, models.SectionChunk{
				Text:  strings.TrimSpace(body),
				Title: pageTitle,
				URL:   pageURL,
			})
		}
	}

	current := ""
	for _, paragraph := range paragraphs {
		if len(current)+len(paragraph) > s.MaxSize && current != "" {
			emit(current)
			current = paragraph
		} else if current == "" {
			current = paragraph
		} else {
			current += "\n\n" + paragraph
		}
	}
	emit(current)

	return chunks
}

type section struct {
	heading string
	level   int
	body    string
}

// splitSections partitions markup into runs delimited by heading
// tags; each run inherits the heading text and level.
func splitSections(html string) []section {
	matches := headingRe.FindAllStringSubmatchIndex(html, -1)
	var sections []section

	for i, m := range matches {
		tag := html[m[2]:m[3]]
		level, _ := strconv.Atoi(tag[1:])
		heading := strings.TrimSpace(tagRe.ReplaceAllString(html[m[4]:m[5]], ""))

		end := len(html)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		sections = append(sections, section{
			heading: heading,
			level:   level,
			body:    html[m[1]:end],
		})
	}

	return sections
}

func stripBoilerplate(html string) string {
	for _, re := range boilerplatePatterns {
		html = re.ReplaceAllString(html, "")
	}
	return html
}

func flattenText(html string) string {
	return spaceCollapse(tagRe.ReplaceAllString(html, " "))
}

func spaceCollapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
