package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/moyoez/submitsession/tool"
)

const (
	maxDescriptionLen = 500
	// maxDocumentBytes caps how much of a linked page is parsed.
	maxDocumentBytes = 1 << 20
)

// LinkInspector fetches a page and extracts its title and description.
type LinkInspector struct {
	client *http.Client
}

func NewLinkInspector(client *http.Client) *LinkInspector {
	if client == nil {
		client = tool.GetHttpClient()
	}
	return &LinkInspector{client: client}
}

// Inspect returns the page title (og:title first) and description (og:description first).
func (i *LinkInspector) Inspect(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "submitsession/1.0")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("page returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", "", fmt.Errorf("not an html page: %s", ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", "", fmt.Errorf("parse document: %w", err)
	}

	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("head > title").First().Text())
	}
	description := metaContent(doc, `meta[property="og:description"]`)
	if description == "" {
		description = metaContent(doc, `meta[name="description"]`)
	}
	if r := []rune(description); len(r) > maxDescriptionLen {
		description = string(r[:maxDescriptionLen])
	}
	return title, description, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}
