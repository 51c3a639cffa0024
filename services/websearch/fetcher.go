// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Page is the result of fetching one URL. Content == "" signals failure;
// the reason is in Metadata["error"].
type Page struct {
	URL      string            `json:"url"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Fetcher downloads pages and extracts their readable text. It never
// returns an error from Fetch so one bad URL cannot fail a pipeline run.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	maxBody int64
}

// NewFetcher builds a fetcher with a 30s timeout and a polite outbound
// rate limit shared across all callers.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		maxBody: 2 << 20, // 2 MiB
	}
}

// Fetch downloads pageURL and returns its title and cleaned text. Script,
// style, nav, footer and header subtrees are dropped; main is preferred
// over article over body; whitespace is collapsed.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) Page {
	failed := func(err error) Page {
		slog.Warn("Failed to fetch content", "url", pageURL, "error", err)
		return Page{URL: pageURL, Metadata: map[string]string{"error": err.Error()}}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return failed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return failed(err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	root, err := html.Parse(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return failed(err)
	}

	title, content := extractReadableText(root)
	return Page{
		URL:     pageURL,
		Title:   title,
		Content: content,
		Metadata: map[string]string{
			"content_type": resp.Header.Get("Content-Type"),
			"status_code":  fmt.Sprintf("%d", resp.StatusCode),
		},
	}
}

// FetchMultiple fans the fetches out with bounded concurrency. One URL's
// failure never cancels its siblings; pages that produced no content are
// filtered out.
func (f *Fetcher) FetchMultiple(ctx context.Context, urls []string, maxConcurrent int) []Page {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	pages := make([]Page, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			pages[i] = f.Fetch(ctx, u)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	valid := make([]Page, 0, len(pages))
	for _, p := range pages {
		if p.Content != "" {
			valid = append(valid, p)
		}
	}
	return valid
}

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"noscript": true,
}

// extractReadableText walks the parsed document once, collecting the title
// and the text of the preferred content root.
func extractReadableText(root *html.Node) (title, content string) {
	var titleNode, mainNode, articleNode, bodyNode *html.Node

	var locate func(n *html.Node)
	locate = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if titleNode == nil {
					titleNode = n
				}
			case "main":
				if mainNode == nil {
					mainNode = n
				}
			case "article":
				if articleNode == nil {
					articleNode = n
				}
			case "body":
				if bodyNode == nil {
					bodyNode = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			locate(c)
		}
	}
	locate(root)

	if titleNode != nil {
		title = strings.TrimSpace(nodeText(titleNode))
	}

	contentRoot := root
	switch {
	case mainNode != nil:
		contentRoot = mainNode
	case articleNode != nil:
		contentRoot = articleNode
	case bodyNode != nil:
		contentRoot = bodyNode
	}

	var sb strings.Builder
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(contentRoot)

	content = strings.Join(strings.Fields(sb.String()), " ")
	return title, content
}

// ExtractLinks resolves every anchor href in htmlContent against baseURL
// and returns the deduplicated http(s) links in first-seen order.
func ExtractLinks(htmlContent, baseURL string) []string {
	root, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		slog.Warn("Failed to parse HTML for link extraction", "base_url", baseURL, "error", err)
		return nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attrValue(n, "href"); href != "" {
				if ref, err := url.Parse(href); err == nil {
					abs := base.ResolveReference(ref)
					if (abs.Scheme == "http" || abs.Scheme == "https") && abs.Host != "" {
						if s := abs.String(); !seen[s] {
							seen[s] = true
							links = append(links, s)
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}
