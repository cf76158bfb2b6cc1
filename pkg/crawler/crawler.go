// Package crawler discovers and extracts website pages: sitemap or
// priority breadth-first link following within depth and page
// budgets, with same-origin safety checks on every fetch.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/chunker"
	"github.com/xhad/sitebot/pkg/retry"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (compatible; SitebotCrawler/1.0)"

// Non-content paths never worth indexing or following.
var skipPathRe = regexp.MustCompile(`/(contact|about|privacy|terms|sitemap|robots|admin|login|wp-admin|wp-login|register|sign)`)

// Paths fetched ahead of the rest of a page's fan-out.
var priorityPathRe = regexp.MustCompile(`(product|service|about|feature|solution|offer|blog|news|article)`)

var skipExtensions = []string{".pdf", ".jpg", ".png", ".gif", ".svg"}

type Config struct {
	MaxPages  int
	MaxDepth  int
	RateLimit float64 // requests per second
	Timeout   time.Duration
	Retry     retry.Policy
	// AllowPrivateHosts permits loopback and intranet targets that
	// ValidateURL would otherwise reject.
	AllowPrivateHosts bool
	// OnProgress is invoked once per fetched page.
	OnProgress func(url string)
}

type Crawler struct {
	config   Config
	client   *http.Client
	limiter  *rate.Limiter
	semantic chunker.Semantic
	logger   *slog.Logger
}

func New(config Config, semantic chunker.Semantic, logger *slog.Logger) *Crawler {
	if config.MaxPages == 0 {
		config.MaxPages = 10
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Crawler{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		semantic: semantic,
		logger:   logger,
	}
}

type queueItem struct {
	url   string
	depth int
}

// Crawl walks the site from the given seeds breadth-first, shallow
// and index-like URLs first, and returns the pages that produced
// more than 100 characters of text. Per-page failures are logged and
// skipped; they never abort the crawl.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) ([]models.Page, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("crawl: no seed URLs")
	}

	origin, err := url.Parse(seeds[0])
	if err != nil {
		return nil, fmt.Errorf("crawl: bad seed: %w", err)
	}

	queue := make([]queueItem, 0, len(seeds))
	for _, s := range seeds {
		queue = append(queue, queueItem{url: s, depth: 1})
	}
	// Shallow heuristic: fewer path segments first, "index" pages
	// ahead of their siblings.
	sort.SliceStable(queue, func(i, j int) bool {
		return seedScore(queue[i].url) < seedScore(queue[j].url)
	})

	visited := make(map[string]bool)
	var pages []models.Page

	for len(queue) > 0 && len(pages) < c.config.MaxPages {
		item := queue[0]
		queue = queue[1:]

		if visited[item.url] || item.depth > c.config.MaxDepth {
			continue
		}
		visited[item.url] = true

		page, links, err := c.fetchAndExtract(ctx, item.url, origin)
		if err != nil {
			c.logger.Debug("page fetch failed", "url", item.url, "error", err)
			continue
		}
		if c.config.OnProgress != nil {
			c.config.OnProgress(item.url)
		}

		if len(page.Text) > 100 {
			pages = append(pages, page)
		}

		if item.depth < c.config.MaxDepth {
			queue = append(queue, c.prioritize(links, visited, item.depth+1)...)
		}
	}

	return pages, nil
}

func seedScore(raw string) int {
	score := strings.Count(raw, "/")
	if strings.Contains(raw, "index") {
		score--
	}
	return score
}

// prioritize sorts a page's outbound links so content-looking paths
// go first and caps the fan-out.
func (c *Crawler) prioritize(links []string, visited map[string]bool, depth int) []queueItem {
	fresh := make([]string, 0, len(links))
	for _, link := range links {
		if !visited[link] {
			fresh = append(fresh, link)
		}
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return linkPriority(fresh[i]) < linkPriority(fresh[j])
	})

	if len(fresh) > 8 {
		fresh = fresh[:8]
	}

	items := make([]queueItem, 0, len(fresh))
	for _, link := range fresh {
		items = append(items, queueItem{url: link, depth: depth})
	}
	return items
}

func linkPriority(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 2
	}
	if priorityPathRe.MatchString(strings.ToLower(u.Path)) {
		return 1
	}
	return 2
}

// fetchAndExtract fetches one page, verifies the post-redirect host
// still matches the origin, and extracts text, title, headings,
// breadcrumbs, outbound links and structured chunks.
func (c *Crawler) fetchAndExtract(ctx context.Context, pageURL string, origin *url.URL) (models.Page, []string, error) {
	if !c.config.AllowPrivateHosts {
		if err := ValidateURL(pageURL); err != nil {
			return models.Page{}, nil, err
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.Page{}, nil, err
	}

	resp, err := retry.Do1(ctx, c.config.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch failed: status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return models.Page{}, nil, err
	}
	defer resp.Body.Close()

	// A link that redirects off-origin must never be indexed as site
	// content.
	if resp.Request != nil && resp.Request.URL.Hostname() != origin.Hostname() {
		return models.Page{}, nil, fmt.Errorf("redirected to external domain: %s", resp.Request.URL.Hostname())
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return models.Page{}, nil, fmt.Errorf("skipping non-HTML content type %q", ct)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Page{}, nil, err
	}

	rawHTML, _ := doc.Html()
	title := strings.TrimSpace(doc.Find("title").First().Text())

	var headings []string
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); len(t) > 3 {
			headings = append(headings, t)
		}
	})

	var breadcrumbs []string
	doc.Find(`.breadcrumb, .breadcrumbs, nav[aria-label="breadcrumb"], .nav-breadcrumb`).Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); len(t) > 3 {
			breadcrumbs = append(breadcrumbs, t)
		}
	})

	links := c.extractLinks(doc, pageURL, origin)

	doc.Find("script, style, noscript, nav, footer, .menu, .navigation").Remove()
	var text strings.Builder
	doc.Find(`p, li, td, th, article, section, main, .description, .summary`).Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); len(t) > 5 {
			text.WriteString(" ")
			text.WriteString(t)
		}
	})

	page := models.Page{
		URL:         pageURL,
		Title:       title,
		Text:        collapseSpace(text.String()),
		Headings:    headings,
		Breadcrumbs: breadcrumbs,
		RawHTML:     rawHTML,
		Chunks:      c.semantic.Chunk(rawHTML, title, pageURL),
	}
	page.Category = chunker.InferCategory(pageURL, title, headings, breadcrumbs)
	if page.Title == "" {
		page.Title = titleFromPath(pageURL)
	}

	return page, links, nil
}

// extractLinks collects same-origin outbound links, dropping
// non-content paths and non-document extensions.
func (c *Crawler) extractLinks(doc *goquery.Document, pageURL string, origin *url.URL) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.Contains(href, "/cdn-cgi/l/email-protection") {
			return
		}

		u, err := url.Parse(href)
		if err != nil {
			return
		}
		u = base.ResolveReference(u)
		if u.Hostname() != origin.Hostname() || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}

		path := strings.ToLower(u.Path)
		if skipPathRe.MatchString(path) {
			return
		}
		for _, ext := range skipExtensions {
			if strings.HasSuffix(path, ext) {
				return
			}
		}

		u.Fragment = ""
		clean := u.String()
		if clean != pageURL && !seen[clean] {
			seen[clean] = true
			links = append(links, clean)
		}
	})

	return links
}

func titleFromPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "Page"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return "Page"
}

func collapseSpace(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
