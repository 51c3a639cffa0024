// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// =============================================================================
// Google Programmable Search
// =============================================================================

// GoogleProvider queries the Google Programmable Search JSON API.
type GoogleProvider struct {
	apiKey   string
	engineID string
	endpoint string
	client   *http.Client
}

func NewGoogleProvider(apiKey, engineID string, client *http.Client) *GoogleProvider {
	return &GoogleProvider{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: "https://www.googleapis.com/customsearch/v1",
		client:   client,
	}
}

func (g *GoogleProvider) Name() string { return "google" }

type googleSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *GoogleProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", min(maxResults, 10)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build Google search request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Google search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Google search returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse Google search response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Source:  "google",
		})
	}
	return results, nil
}

// =============================================================================
// DuckDuckGo HTML
// =============================================================================

// DuckDuckGoProvider scrapes the keyless DuckDuckGo HTML endpoint.
type DuckDuckGoProvider struct {
	endpoint string
	client   *http.Client
}

func NewDuckDuckGoProvider(client *http.Client) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		endpoint: "https://html.duckduckgo.com/html/",
		client:   client,
	}
}

func (d *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (d *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build DuckDuckGo request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DuckDuckGo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DuckDuckGo returned %d", resp.StatusCode)
	}

	results := parseDuckDuckGoHTML(resp.Body)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// parseDuckDuckGoHTML pulls results out of the html.duckduckgo.com result
// page: anchors with class result__a carry the title and link, siblings
// with class result__snippet the snippet.
func parseDuckDuckGoHTML(r io.Reader) []Result {
	root, err := html.Parse(r)
	if err != nil {
		return nil
	}

	var results []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				href := attrValue(n, "href")
				title := strings.TrimSpace(nodeText(n))
				if href != "" && title != "" {
					results = append(results, Result{
						Title:  title,
						URL:    decodeDuckDuckGoHref(href),
						Source: "duckduckgo",
					})
				}
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.TrimSpace(nodeText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// decodeDuckDuckGoHref unwraps the uddg redirect parameter when present.
func decodeDuckDuckGoHref(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	if parsed.Scheme == "" {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// =============================================================================
// Deterministic Stub
// =============================================================================

// StubProvider is the terminal provider. It answers deterministically so
// the chain never fails and offline environments stay usable.
type StubProvider struct{}

func (StubProvider) Name() string { return "stub" }

func (StubProvider) Search(_ context.Context, query string, maxResults int) ([]Result, error) {
	sample := []Result{
		{
			Title:   "검색 결과: " + query,
			URL:     "https://example.com/result1",
			Snippet: query + "에 대한 정보를 찾을 수 있습니다.",
			Source:  "stub",
		},
		{
			Title:   query + " 관련 정보",
			URL:     "https://example.com/result2",
			Snippet: query + "와 관련된 다양한 자료들이 있습니다.",
			Source:  "stub",
		},
	}
	if maxResults < len(sample) {
		sample = sample[:maxResults]
	}
	return sample, nil
}
