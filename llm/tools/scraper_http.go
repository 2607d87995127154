package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/crewflow/internal/tlsutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	maxScrapeBodyBytes = 4 << 20
	maxScrapedLinks    = 50
	scraperUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// HTTPScraper fetches a page over HTTP and extracts its readable text.
// No JavaScript is executed.
type HTTPScraper struct {
	client *http.Client
}

// NewHTTPScraper creates a scraper; timeout defaults to 15s.
func NewHTTPScraper(timeout time.Duration) *HTTPScraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPScraper{client: tlsutil.NewClient(tlsutil.ClientOptions{
		Timeout: timeout,
		Headers: map[string]string{"Accept-Language": "en-US,en;q=0.9"},
	})}
}

// NewHTTPScraperWithClient uses the supplied client.
func NewHTTPScraperWithClient(client *http.Client) *HTTPScraper {
	return &HTTPScraper{client: client}
}

func (s *HTTPScraper) Name() string { return "http" }

// Scrape downloads rawURL and converts it to plain text.
func (s *HTTPScraper) Scrape(ctx context.Context, rawURL string, opts WebScrapeOptions) (*WebScrapeResult, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, errors.New("scrape url is empty")
	}
	base, err := url.Parse(trimmed)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid scrape url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", scraperUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scrape http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body := io.LimitReader(resp.Body, maxScrapeBodyBytes)
	result := &WebScrapeResult{URL: trimmed, ScrapedAt: time.Now()}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		result.Content = collapseBlankLines(string(raw))
	} else {
		doc, err := html.Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		ex := &extractor{base: resp.Request.URL, withLinks: opts.IncludeLinks}
		ex.walk(doc)
		result.Title = strings.TrimSpace(ex.title)
		result.Content = collapseBlankLines(ex.text.String())
		result.Links = ex.links
	}

	result.WordCount = len(strings.Fields(result.Content))
	if opts.MaxLength > 0 && len(result.Content) > opts.MaxLength {
		result.Content = truncateUTF8(result.Content, opts.MaxLength) + "\n[TRUNCATED]"
		result.Truncated = true
	}
	return result, nil
}

// 不包含正文内容的元素
var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Nav: true,
	atom.Header: true, atom.Footer: true, atom.Svg: true, atom.Iframe: true,
	atom.Template: true, atom.Form: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Pre: true,
	atom.Blockquote: true, atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Hr: true,
}

type extractor struct {
	base      *url.URL
	withLinks bool
	title     string
	text      strings.Builder
	links     []ScrapedLink
	seen      map[string]bool
}

func (e *extractor) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			e.text.WriteString(t)
			e.text.WriteByte(' ')
		}
		return
	case html.ElementNode:
		if n.DataAtom == atom.Title {
			if e.title == "" && n.FirstChild != nil {
				e.title = n.FirstChild.Data
			}
			return
		}
		if skippedElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.A && e.withLinks {
			e.addLink(n)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		e.text.WriteByte('\n')
	}
}

func (e *extractor) addLink(n *html.Node) {
	if len(e.links) >= maxScrapedLinks {
		return
	}
	var href string
	for _, a := range n.Attr {
		if a.Key == "href" {
			href = strings.TrimSpace(a.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return
	}
	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	abs := ref.String()
	if e.base != nil {
		abs = e.base.ResolveReference(ref).String()
	}
	if e.seen == nil {
		e.seen = map[string]bool{}
	}
	if e.seen[abs] {
		return
	}
	e.seen[abs] = true
	e.links = append(e.links, ScrapedLink{Text: strings.Join(strings.Fields(nodeText(n)), " "), URL: abs})
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
		b.WriteByte(' ')
	}
	return b.String()
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if t := strings.Join(strings.Fields(line), " "); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
