package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"trusight/apperr"
	"trusight/logger"
)

const (
	minArticleChars = 200
	maxArticleRunes = 20000
	maxPageBytes    = 5 << 20
	fetchTimeout    = 30 * time.Second
	browserUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Article is the readable text of a fetched page.
type Article struct {
	Text     string
	Title    string
	SiteName string
}

type ContentFetcher struct {
	client *http.Client
}

func NewContentFetcher() *ContentFetcher {
	return &ContentFetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// FetchURL downloads rawURL and extracts its article text.
func (f *ContentFetcher) FetchURL(ctx context.Context, rawURL string) (*Article, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, "url must be an absolute http(s) address")
	}

	logger.Log.Infof("[FETCHER] loading %s", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, "invalid url")
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "could not load the page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(apperr.CodeUpstreamStatus, "could not load the page",
			fmt.Errorf("status code %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamTransport, "could not read the page", err)
	}
	logger.Log.Debugf("[FETCHER] %d bytes, content-type %s", len(body), resp.Header.Get("Content-Type"))

	article := f.extract(body, pageURL)
	n := len([]rune(article.Text))
	if n < minArticleChars {
		logger.Log.Warnf("[FETCHER] only %d characters of text at %s", n, pageURL)
		return nil, apperr.Upstream(apperr.CodeUpstreamPayload,
			fmt.Sprintf("not enough text on the page (%d characters), try another link", n), nil)
	}
	if n > maxArticleRunes {
		article.Text = trimRunes(article.Text, maxArticleRunes)
	}

	logger.Log.Infof("[FETCHER] extracted %d characters from %s", len([]rune(article.Text)), pageURL.Host)
	return article, nil
}

// extract tries readability first, then a plain walk of the document.
func (f *ContentFetcher) extract(body []byte, pageURL *url.URL) *Article {
	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		text := normalizeText(parsed.TextContent)
		if len([]rune(text)) >= minArticleChars {
			return &Article{Text: text, Title: strings.TrimSpace(parsed.Title), SiteName: strings.TrimSpace(parsed.SiteName)}
		}
	} else {
		logger.Log.Debugf("[FETCHER] readability failed: %v", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		logger.Log.Warnf("[FETCHER] html parse failed: %v", err)
		return &Article{}
	}
	root := findMainContent(doc)
	if root == nil {
		root = doc
	}
	a := &Article{Text: normalizeText(extractFromNode(root))}
	if t := findTag(doc, "title"); t != nil {
		a.Title = strings.TrimSpace(extractFromNode(t))
	}
	return a
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"svg": true, "canvas": true, "audio": true, "video": true,
	"nav": true, "footer": true, "aside": true, "form": true,
}

var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"div": true, "section": true, "article": true, "main": true,
	"blockquote": true, "li": true, "dt": true, "dd": true,
	"tr": true, "td": true, "th": true, "br": true,
	"figcaption": true,
}

var junkAttrRe = regexp.MustCompile(`(?i)(advertisement|ad-banner|popup|modal|cookie-banner|newsletter|sponsored)`)

func isJunkNode(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "class", "id":
			if junkAttrRe.MatchString(attr.Val) {
				return true
			}
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		}
	}
	return false
}

// findMainContent prefers <article>, then <main>, then a content-like class.
func findMainContent(n *html.Node) *html.Node {
	if a := findTag(n, "article"); a != nil {
		return a
	}
	if m := findTag(n, "main"); m != nil {
		return m
	}
	return findByClass(n, []string{"article-body", "post-content", "entry-content", "story", "content"})
}

func findTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findByClass(n *html.Node, keywords []string) *html.Node {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key != "class" && attr.Key != "id" {
				continue
			}
			val := strings.ToLower(attr.Val)
			for _, kw := range keywords {
				if strings.Contains(val, kw) {
					return n
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, keywords); found != nil {
			return found
		}
	}
	return nil
}

func extractFromNode(root *html.Node) string {
	var sb strings.Builder
	lastByte := func() byte {
		s := sb.String()
		if s == "" {
			return 0
		}
		return s[len(s)-1]
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if skipTags[tag] || isJunkNode(n) {
				return
			}
			if blockTags[tag] && lastByte() != '\n' && lastByte() != 0 {
				sb.WriteByte('\n')
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if blockTags[tag] && lastByte() != '\n' {
				sb.WriteByte('\n')
			}
		case html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text == "" {
				return
			}
			if b := lastByte(); b != 0 && b != '\n' && b != ' ' {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
	}
	walk(root)
	return sb.String()
}

var (
	spaceRe   = regexp.MustCompile(`[ \t\p{Zs}]+`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// normalizeText collapses runs of blanks and drops empty lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	clean := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			clean = append(clean, line)
		}
	}
	return strings.TrimSpace(newlineRe.ReplaceAllString(strings.Join(clean, "\n"), "\n\n"))
}
