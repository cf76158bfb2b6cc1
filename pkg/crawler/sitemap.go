package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xhad/sitebot/pkg/retry"
)

const maxSitemapSeeds = 30

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// FetchSitemap reads /sitemap.xml under the origin and returns up to
// 30 same-origin locations. Any failure returns nil seeds: callers
// fall back to the origin URL itself.
func (c *Crawler) FetchSitemap(ctx context.Context, originURL string) []string {
	if !c.config.AllowPrivateHosts {
		if err := ValidateURL(originURL); err != nil {
			return nil
		}
	}

	base, err := url.Parse(originURL)
	if err != nil {
		return nil
	}
	sitemapURL := base.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String()

	body, err := retry.Do1(ctx, c.config.Retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sitemap fetch: status %d", resp.StatusCode)
		}

		return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	})
	if err != nil {
		return nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil
	}

	var seeds []string
	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if strings.HasPrefix(loc, originURL) {
			seeds = append(seeds, loc)
		}
		if len(seeds) == maxSitemapSeeds {
			break
		}
	}
	return seeds
}
