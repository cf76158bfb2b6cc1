package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/sitebot/pkg/llm"
	"github.com/xhad/sitebot/pkg/retry"
)

func TestHTTPReranker_MapsScoresByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "widget pricing", req.Query)
		assert.Len(t, req.Texts, 3)

		// Out-of-order reply, as cross-encoder services return
		// relevance-sorted results.
		json.NewEncoder(w).Encode([]map[string]any{
			{"index": 2, "score": 0.9},
			{"index": 0, "score": 0.4},
			{"index": 1, "score": 0.1},
		})
	}))
	defer srv.Close()

	r := llm.NewHTTPReranker(srv.URL)
	scores, err := r.Rerank(context.Background(), "widget pricing", []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.1, 0.9}, scores)
}

func TestHTTPReranker_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := llm.NewHTTPReranker(srv.URL)
	r.Retry = retry.Policy{Attempts: 1, Delay: time.Millisecond}

	_, err := r.Rerank(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}

func TestHTTPReranker_NoEndpoint(t *testing.T) {
	r := &llm.HTTPReranker{}
	_, err := r.Rerank(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}
