package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/sitebot/pkg/chunker"
	"github.com/xhad/sitebot/pkg/crawler"
	"github.com/xhad/sitebot/pkg/retry"
)

func testConfig(maxPages, maxDepth int) crawler.Config {
	return crawler.Config{
		MaxPages:          maxPages,
		MaxDepth:          maxDepth,
		RateLimit:         1000,
		Timeout:           5 * time.Second,
		Retry:             retry.Policy{Attempts: 1, Delay: time.Millisecond},
		AllowPrivateHosts: true,
	}
}

func contentPage(title, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body>
		<h1>%s</h1>
		<p>%s</p>
	</body></html>`, title, title, body)
}

const longBody = "This page carries a generous amount of real prose so that the crawler considers it substantive content worth keeping around for indexing and retrieval."

func TestCrawl_FollowsSameOriginLinks(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Home</title></head><body>
			<h1>Welcome Home</h1>
			<p>%s</p>
			<a href="/products">Products</a>
			<a href="%s/docs">Docs</a>
			<a href="https://elsewhere.example/page">External</a>
			<a href="/brochure.pdf">PDF</a>
		</body></html>`, longBody, srv.URL)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentPage("Products", longBody))
	})
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentPage("Docs", longBody))
	})

	c := crawler.New(testConfig(10, 2), chunker.NewSemantic(50, 1200), nil)
	pages, err := c.Crawl(context.Background(), []string{srv.URL + "/"})

	require.NoError(t, err)
	require.Len(t, pages, 3)

	urls := make(map[string]bool)
	for _, p := range pages {
		urls[p.URL] = true
	}
	assert.True(t, urls[srv.URL+"/"])
	assert.True(t, urls[srv.URL+"/products"])
	assert.True(t, urls[srv.URL+"/docs"])
}

func TestCrawl_RespectsPageBudget(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Hub</title></head><body><p>%s</p>
			<a href="/p1">1</a><a href="/p2">2</a><a href="/p3">3</a><a href="/p4">4</a>
		</body></html>`, longBody)
	})
	for i := 1; i <= 4; i++ {
		path := fmt.Sprintf("/p%d", i)
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, contentPage("Page", longBody))
		})
	}

	c := crawler.New(testConfig(2, 3), chunker.NewSemantic(50, 1200), nil)
	pages, err := c.Crawl(context.Background(), []string{srv.URL + "/"})

	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawl_SkipsThinAndRedirectingPages(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Home</title></head><body><p>%s</p>
			<a href="/thin">Thin</a>
			<a href="/away">Away</a>
		</body></html>`, longBody)
	})
	mux.HandleFunc("/thin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>too short</p></body></html>`)
	})
	mux.HandleFunc("/away", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://external.invalid/landing", http.StatusFound)
	})

	c := crawler.New(testConfig(10, 2), chunker.NewSemantic(50, 1200), nil)
	pages, err := c.Crawl(context.Background(), []string{srv.URL + "/"})

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Home", pages[0].Title)
}

func TestCrawl_ProgressCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentPage("Solo", longBody))
	}))
	defer srv.Close()

	var seen []string
	config := testConfig(5, 1)
	config.OnProgress = func(url string) { seen = append(seen, url) }

	c := crawler.New(config, chunker.NewSemantic(50, 1200), nil)
	_, err := c.Crawl(context.Background(), []string{srv.URL + "/"})

	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/"}, seen)
}

func TestCrawl_CategorizesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentPage("Product Catalog", "Browse our product catalog and shop the full item range. "+longBody))
	}))
	defer srv.Close()

	c := crawler.New(testConfig(1, 1), chunker.NewSemantic(50, 1200), nil)
	pages, err := c.Crawl(context.Background(), []string{srv.URL + "/catalog"})

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "products", pages[0].Category)
}

func TestFetchSitemap(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
			<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<url><loc>%s/one</loc></url>
				<url><loc>%s/two</loc></url>
				<url><loc>https://other.example/three</loc></url>
			</urlset>`, srv.URL, srv.URL)
	})

	c := crawler.New(testConfig(10, 2), chunker.NewSemantic(50, 1200), nil)
	seeds := c.FetchSitemap(context.Background(), srv.URL)

	assert.Equal(t, []string{srv.URL + "/one", srv.URL + "/two"}, seeds)
}

func TestFetchSitemap_MissingReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := crawler.New(testConfig(10, 2), chunker.NewSemantic(50, 1200), nil)
	assert.Nil(t, c.FetchSitemap(context.Background(), srv.URL))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url  string
		ok   bool
		name string
	}{
		{"https://example.com", true, "https"},
		{"http://example.com/page", true, "http with path"},
		{"ftp://example.com", false, "ftp scheme"},
		{"https://localhost/x", false, "localhost"},
		{"https://printer.local", false, "mdns suffix"},
		{"http://192.168.1.1/admin", false, "raw ipv4"},
		{"http://[::1]:8080/", false, "bracketed ipv6"},
		{"not a url", false, "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := crawler.ValidateURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
