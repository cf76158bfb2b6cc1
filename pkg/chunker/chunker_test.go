package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/chunker"
)

func TestSemantic_ChunkSections(t *testing.T) {
	s := chunker.NewSemantic(50, 1200)

	html := `
		<nav>Home | About | Contact</nav>
		<h1>Our Products</h1>
		<p>We build widgets for industrial automation. Our flagship widget handles
		high-temperature environments and ships with a five year warranty.</p>
		<h2>Pricing</h2>
		<p>The standard widget costs 99 dollars. Volume discounts apply for orders
		above one hundred units, contact sales for a custom quote.</p>
		<footer>Copyright 2024</footer>
	`

	chunks := s.Chunk(html, "Acme Widgets", "https://acme.test/products")

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "**Our Products**\n\n"))
	assert.Equal(t, "Our Products", chunks[0].Heading)
	assert.Equal(t, 1, chunks[0].Level)
	assert.Equal(t, "Pricing", chunks[1].Heading)
	assert.Equal(t, "Acme Widgets", chunks[1].Title)
	assert.Equal(t, "https://acme.test/products", chunks[1].URL)

	// Boilerplate containers never leak into chunk text.
	for _, c := range chunks {
		assert.NotContains(t, c.Text, "Copyright")
		assert.NotContains(t, c.Text, "Home | About")
	}
}

func TestSemantic_SkipsShortSections(t *testing.T) {
	s := chunker.NewSemantic(50, 1200)

	html := `<h2>Tiny</h2><p>Too short.</p>
		<h2>Long enough</h2>
		<p>This section carries enough prose to clear the minimum size bound and
		therefore survives chunking as a standalone passage.</p>`

	chunks := s.Chunk(html, "T", "u")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Long enough", chunks[0].Heading)
}

func TestSemantic_SplitsOversizedSection(t *testing.T) {
	s := chunker.NewSemantic(50, 200)

	var b strings.Builder
	b.WriteString("<h2>History</h2><p>")
	for i := 0; i < 10; i++ {
		b.WriteString("The company expanded into a new regional market that year. ")
	}
	b.WriteString("</p>")

	chunks := s.Chunk(b.String(), "T", "u")

	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "**History**"))
	for _, c := range chunks[1:] {
		assert.Contains(t, c.Text, "(continued)")
		assert.Equal(t, "History", c.Heading)
	}
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 200+len("**History** (continued)\n\n"))
	}
}

func TestSemantic_OversizedSingleSentenceEmittedWhole(t *testing.T) {
	s := chunker.NewSemantic(50, 100)

	sentence := "This single sentence just keeps going without any terminal punctuation until well past the maximum chunk size so it cannot be split on a sentence boundary at all."
	html := "<h2>Run-on</h2><p>" + sentence + ".</p>"

	chunks := s.Chunk(html, "T", "u")

	require.NotEmpty(t, chunks)
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "cannot be split") {
			found = true
		}
	}
	assert.True(t, found, "oversized sentence should be emitted, not dropped")
}

func TestSemantic_ParagraphFallback(t *testing.T) {
	s := chunker.NewSemantic(50, 1200)

	html := `<p>A page without any heading tags still produces chunks when its
	paragraphs are substantial enough to matter for retrieval purposes.</p>
	<p>short</p>
	<p>Another long paragraph that also exceeds the fifty character floor and
	should be packed together with its sibling above.</p>`

	chunks := s.Chunk(html, "Plain", "https://plain.test/")

	require.NotEmpty(t, chunks)
	assert.Equal(t, "Plain", chunks[0].Title)
	assert.Empty(t, chunks[0].Heading)
	assert.NotContains(t, chunks[0].Text, "short")
}

func TestSemantic_EmptyInput(t *testing.T) {
	s := chunker.NewSemantic(50, 1200)
	assert.Empty(t, s.Chunk("", "T", "u"))
}

func TestLegacy_PrefixAndFiltering(t *testing.T) {
	l := chunker.NewLegacy(1200)

	text := `Our support team answers every ticket within one business day. 42.
	The knowledge base covers installation and troubleshooting in depth for all products.`

	chunks := l.Chunk(text, "Acme", "Support")

	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0], "[Acme - Support] "))
	assert.NotContains(t, chunks[0], "42.")
}

func TestLegacy_OverlapAcrossWindows(t *testing.T) {
	l := chunker.NewLegacy(220)

	var sentences []string
	for i := 0; i < 8; i++ {
		sentences = append(sentences, "Sentence number "+strings.Repeat("x", 40)+" describing feature "+string(rune('a'+i)))
	}
	text := strings.Join(sentences, ". ") + "."

	chunks := l.Chunk(text, "", "")

	require.Greater(t, len(chunks), 1)
	// The last sentence of one window reappears in the next.
	lastSentence := chunks[0][strings.LastIndex(chunks[0], "Sentence number"):]
	assert.Contains(t, chunks[1], strings.TrimSpace(lastSentence))
}

func TestLegacy_StripsScriptNoise(t *testing.T) {
	l := chunker.NewLegacy(1200)

	text := `<script>window.dataLayer = [];</script>
	Our consulting practice helps customers modernize legacy systems with confidence.
	<style>.btn { color: red; }</style>
	Every engagement starts with a free architecture assessment for your whole team.`

	chunks := l.Chunk(text, "Acme", "")

	require.NotEmpty(t, chunks)
	joined := strings.Join(chunks, " ")
	assert.NotContains(t, joined, "dataLayer")
	assert.NotContains(t, joined, "color: red")
}

func TestChunker_PrefersStructuredChunks(t *testing.T) {
	c := chunker.New(50, 1200)

	page := models.Page{
		Title: "Acme",
		Text:  "Fallback text that is long enough to chunk if the structured path were empty.",
		Chunks: []models.SectionChunk{
			{Text: "**Pricing**\n\nThe widget costs 99 dollars."},
		},
	}

	texts := c.ChunkPage(page)

	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Pricing")
}

func TestChunker_FallsBackToLegacy(t *testing.T) {
	c := chunker.New(50, 1200)

	page := models.Page{
		Title:    "Acme",
		Headings: []string{"Overview"},
		Text:     "The platform ingests telemetry from thousands of devices in real time. Dashboards update within seconds of an event arriving at the edge.",
	}

	texts := c.ChunkPage(page)

	require.NotEmpty(t, texts)
	assert.True(t, strings.HasPrefix(texts[0], "[Acme - Overview] "))
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		title    string
		headings []string
		want     string
	}{
		{"pricing page", "https://acme.test/pricing", "Plans and Pricing", []string{"Compare plans", "Cost breakdown"}, "pricing"},
		{"blog post", "https://acme.test/blog/launch", "Launch announcement", []string{"News from the team"}, "blog"},
		{"docs", "https://acme.test/docs/api", "API documentation", []string{"Reference guide", "Tutorial"}, "documentation"},
		{"no signal", "https://acme.test/xyz", "Untitled", nil, "general"},
		{"tie keeps earlier family", "https://acme.test/x", "Product service", nil, "products"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunker.InferCategory(tt.url, tt.title, tt.headings, nil)
			assert.Equal(t, tt.want, got)

			// Same inputs, same answer.
			assert.Equal(t, got, chunker.InferCategory(tt.url, tt.title, tt.headings, nil))
		})
	}
}
