// Package websearch queries the DuckDuckGo Instant Answer API. It is the
// fallback context source when the local index has nothing relevant.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.duckduckgo.com/"
	defaultTimeout = 10 * time.Second
	userAgent      = "docqa/1.0"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type instantAnswer struct {
	AbstractText  string  `json:"AbstractText"`
	Definition    string  `json:"Definition"`
	RelatedTopics []topic `json:"RelatedTopics"`
}

type topic struct {
	Text   string  `json:"Text"`
	Topics []topic `json:"Topics"`
}

// Search returns up to k snippets for the query. Search never fails the
// caller: network errors, bad statuses and empty answers all come back as an
// empty result, logged but not propagated, so the answering chain can fall
// through to general knowledge.
func (c *Client) Search(ctx context.Context, query string, k int) []string {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		c.log.Error("building search request", "error", err)
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("web search failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("web search failed", "error", fmt.Sprintf("status %d", resp.StatusCode))
		return nil
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		c.log.Error("decoding search response", "error", err)
		return nil
	}

	return collect(answer, k)
}

// collect walks the answer tiers in order of reliability: the abstract first,
// then related topics (flattening one level of nesting), then the dictionary
// definition as a last resort.
func collect(answer instantAnswer, k int) []string {
	var out []string
	if text := strings.TrimSpace(answer.AbstractText); text != "" {
		out = append(out, text)
	}
	for _, t := range answer.RelatedTopics {
		if len(out) >= k {
			return out[:k]
		}
		if text := strings.TrimSpace(t.Text); text != "" {
			out = append(out, text)
			continue
		}
		for _, nested := range t.Topics {
			if len(out) >= k {
				return out[:k]
			}
			if text := strings.TrimSpace(nested.Text); text != "" {
				out = append(out, text)
			}
		}
	}
	if len(out) == 0 {
		if text := strings.TrimSpace(answer.Definition); text != "" {
			out = append(out, text)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}
