package models

// Bot is the metadata record for one ingested website, keyed by its
// opaque id. Immutable after creation except full deletion.
type Bot struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	CreatedAt   int64    `json:"createdAt"`
	TotalPages  int      `json:"totalPages"`
	TotalChunks int      `json:"totalChunks"`
	ContentHash string   `json:"contentHash"`
	VectorIDs   []string `json:"vectorIds"`
}

// Chunk is the atomic retrieval unit: a bounded passage of page text
// plus its provenance. ChunkIndex values are dense per bot, starting
// at 0, and double as the vector id within the bot's namespace.
type Chunk struct {
	Text       string   `json:"text"`
	URL        string   `json:"url"`
	PageTitle  string   `json:"pageTitle"`
	Heading    string   `json:"heading,omitempty"`
	Category   string   `json:"category"`
	Headings   []string `json:"headings,omitempty"`
	ChunkIndex int      `json:"chunkIndex"`
	BotID      string   `json:"botId"`
	Timestamp  int64    `json:"timestamp"`
}

// Page is one crawled page with its extracted content.
type Page struct {
	URL         string
	Title       string
	Text        string
	Headings    []string
	Breadcrumbs []string
	RawHTML     string
	Category    string
	Chunks      []SectionChunk
}

// SectionChunk is a chunk text with the section metadata the
// semantic chunker attached to it.
type SectionChunk struct {
	Text    string
	Title   string
	Heading string
	URL     string
	Level   int
}

// Posting records one chunk's term frequency inside a lexical
// posting list.
type Posting struct {
	ChunkIndex int `json:"chunkIndex"`
	Frequency  int `json:"frequency"`
}

// Turn is one entry of a conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxHistoryTurns bounds a conversation history to a sliding window;
// the oldest turns are dropped first.
const MaxHistoryTurns = 20

// AppendTurns adds turns to a history and trims it to the window.
func AppendTurns(history []Turn, turns ...Turn) []Turn {
	history = append(history, turns...)
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	return history
}

// CacheEntry is a stored embedding, valid only while the configured
// embedding model matches Model.
type CacheEntry struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Timestamp int64     `json:"timestamp"`
}

// SearchResult is a chunk with the scores the search engine attached
// to it. Score carries the channel-native or reranked score,
// HybridScore the fused one.
type SearchResult struct {
	Chunk
	Score         float64 `json:"score"`
	HybridScore   float64 `json:"hybridScore"`
	SemanticScore float64 `json:"semanticScore"`
	LexicalScore  float64 `json:"lexicalScore"`
}

// Analysis is the query analyzer's verdict on one user turn.
type Analysis struct {
	Language      string `json:"language"`
	IsGreeting    bool   `json:"isGreeting"`
	SearchQuery   string `json:"searchQuery"`
	OriginalQuery string `json:"originalQuery"`
}
