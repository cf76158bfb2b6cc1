// Package lexical maintains the per-bot inverted term index used as
// the lexical half of hybrid search.
package lexical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/internal/types"
)

const topResults = 15

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

type Index struct {
	kv         types.KV
	minTermLen int
}

func New(kv types.KV, minTermLen int) *Index {
	if minTermLen == 0 {
		minTermLen = 3
	}
	return &Index{kv: kv, minTermLen: minTermLen}
}

// Tokenize lowercases, strips non-word characters and drops terms
// under the minimum length.
func (ix *Index) Tokenize(text string) []string {
	words := strings.Fields(nonWordRe.ReplaceAllString(strings.ToLower(text), " "))
	terms := words[:0]
	for _, w := range words {
		if len(w) >= ix.minTermLen {
			terms = append(terms, w)
		}
	}
	return terms
}

// Build writes one posting list per distinct term observed across a
// bot's chunks, in a single pass. A re-ingest fully rebuilds the
// index; it is never updated incrementally.
func (ix *Index) Build(ctx context.Context, botID string, chunks []models.Chunk) error {
	termIndex := make(map[string][]models.Posting)

	for _, chunk := range chunks {
		terms := ix.Tokenize(chunk.Text)

		freq := make(map[string]int, len(terms))
		for _, term := range terms {
			freq[term]++
		}

		for term, count := range freq {
			termIndex[term] = append(termIndex[term], models.Posting{
				ChunkIndex: chunk.ChunkIndex,
				Frequency:  count,
			})
		}
	}

	// Per-term writes are independent; one failure does not abort
	// the rest.
	var failed int
	for term, postings := range termIndex {
		data, err := json.Marshal(postings)
		if err != nil {
			return fmt.Errorf("marshal postings for %q: %w", term, err)
		}
		if err := ix.kv.Put(ctx, lexicalKey(botID, term), string(data), 0); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("lexical build: %d of %d posting writes failed", failed, len(termIndex))
	}
	return nil
}

// Result is a lexical hit before chunk hydration.
type Result struct {
	ChunkIndex   int
	LexicalScore float64
}

// Search sums per-chunk term frequencies across all query terms
// found in the index, normalizes by the query term count, and
// returns the top 15. Terms absent from the index contribute
// nothing; an empty tokenized query returns no results.
func (ix *Index) Search(ctx context.Context, botID, query string) ([]Result, error) {
	terms := ix.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	scores := make(map[int]int)
	for _, term := range terms {
		raw, err := ix.kv.Get(ctx, lexicalKey(botID, term))
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var postings []models.Posting
		if err := json.Unmarshal([]byte(raw), &postings); err != nil {
			return nil, fmt.Errorf("postings for %q: %w", term, types.ErrCorruptRecord)
		}
		for _, p := range postings {
			scores[p.ChunkIndex] += p.Frequency
		}
	}

	results := make([]Result, 0, len(scores))
	for idx, score := range scores {
		results = append(results, Result{
			ChunkIndex:   idx,
			LexicalScore: float64(score) / float64(len(terms)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].LexicalScore > results[j].LexicalScore
	})
	if len(results) > topResults {
		results = results[:topResults]
	}
	return results, nil
}

func lexicalKey(botID, term string) string {
	return fmt.Sprintf("lexical:%s:%s", botID, term)
}
