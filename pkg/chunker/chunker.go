// Package chunker splits extracted page content into bounded,
// semantically coherent passages and labels pages with a coarse
// topical category.
package chunker

import "github.com/xhad/sitebot/internal/models"

// Chunker selects between the two strategies by content shape: the
// heading-based semantic strategy when the page markup yields
// sections, the legacy sentence-window strategy otherwise.
type Chunker struct {
	semantic Semantic
	legacy   Legacy
}

func New(minSize, maxSize int) Chunker {
	return Chunker{
		semantic: NewSemantic(minSize, maxSize),
		legacy:   NewLegacy(maxSize),
	}
}

// ChunkPage returns the chunk texts for one crawled page. Structured
// section chunks win when present; the page's flattened text goes
// through the legacy path otherwise.
func (c Chunker) ChunkPage(page models.Page) []string {
	if len(page.Chunks) > 0 {
		texts := make([]string, 0, len(page.Chunks))
		for _, sc := range page.Chunks {
			texts = append(texts, sc.Text)
		}
		return texts
	}

	heading := ""
	if len(page.Headings) > 0 {
		heading = page.Headings[0]
	}
	return c.legacy.Chunk(page.Text, page.Title, heading)
}

// Semantic exposes the structured strategy for the crawler, which
// runs it against raw markup at extraction time.
func (c Chunker) Semantic() Semantic { return c.semantic }
