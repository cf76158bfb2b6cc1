package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var ipv4Re = regexp.MustCompile(`^(\d+\.){3}\d+$`)

// ValidateURL rejects non-HTTP(S) schemes and local or private
// hostnames before any fetch is attempted. Applied to the top-level
// create request and to every crawled link.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL: only HTTP/HTTPS protocols allowed")
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" ||
		hostname == "localhost" ||
		strings.HasSuffix(hostname, ".local") ||
		ipv4Re.MatchString(hostname) ||
		strings.HasPrefix(u.Host, "[") {
		return fmt.Errorf("invalid URL: local/private addresses not allowed")
	}

	return nil
}
