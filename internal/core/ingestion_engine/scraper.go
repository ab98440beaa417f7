package ingestion_engine

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/markdave123-py/spacechat/internal/apperr"
)

const (
	// DefaultMinScrapeChars is the shortest page text accepted as content.
	DefaultMinScrapeChars = 50
	maxPageBytes          = 5 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ScrapedPage is the readable text of one fetched page.
type ScrapedPage struct {
	URL   string
	Title string
	Text  string
}

// Scraper fetches a page the way a desktop browser would and reduces it to
// plain text.
type Scraper struct {
	client   *http.Client
	minChars int
}

func NewScraper(client *http.Client, minChars int) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if minChars <= 0 {
		minChars = DefaultMinScrapeChars
	}
	return &Scraper{client: client, minChars: minChars}
}

// Scrape fetches rawURL and returns its text. A 403 answer is reported as
// SITE_BLOCKED; pages with too little text fail with MsgNoMeaningfulText.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*ScrapedPage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.NewExtractionFailed("invalid URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.NewExtractionFailed("invalid URL", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.NewExtractionFailed("failed to fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, apperr.NewSiteBlocked(fmt.Errorf("GET %s: status %d", u.Host, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.NewExtractionFailed(
			fmt.Sprintf("failed to fetch page: status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, apperr.NewExtractionFailed("failed to read page", err)
	}

	raw := strings.ToValidUTF8(string(body), "")
	text := StripHTML(raw)
	if utf8.RuneCountInString(text) < s.minChars {
		return nil, apperr.NewExtractionFailed(apperr.MsgNoMeaningfulText, nil)
	}

	return &ScrapedPage{URL: u.String(), Title: pageTitle(raw), Text: text}, nil
}

// Pre-compiled regular expressions for HTML stripping.
var (
	titleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	// Blocks dropped with their content. Go's regexp has no backreferences,
	// so each element gets its own pattern.
	droppedBlocks = func() []*regexp.Regexp {
		var out []*regexp.Regexp
		for _, tag := range []string{"script", "style", "noscript", "svg", "head", "nav", "header", "footer", "aside"} {
			out = append(out, regexp.MustCompile(`(?is)<`+tag+`\b[^>]*>.*?</`+tag+`\s*>`))
		}
		return out
	}()
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	allTags      = regexp.MustCompile(`<[^>]+>`)
	whitespace   = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// StripHTML reduces an HTML document to its readable text on one line.
func StripHTML(content string) string {
	content = htmlComments.ReplaceAllString(content, " ")
	for _, re := range droppedBlocks {
		content = re.ReplaceAllString(content, " ")
	}
	content = allTags.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	content = whitespace.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

func pageTitle(content string) string {
	m := titleTag.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(html.UnescapeString(m[1]), " "))
}
