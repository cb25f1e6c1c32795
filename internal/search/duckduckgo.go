// ABOUTME: DuckDuckGo instant-answer API search source
// ABOUTME: Maps RelatedTopics entries into search results

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const duckduckgoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGo queries the DuckDuckGo instant-answer API. The API returns
// related topics rather than full web results, which is sufficient for
// context enrichment.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo source with the given per-request timeout.
func NewDuckDuckGo(timeout time.Duration) *DuckDuckGo {
	return &DuckDuckGo{
		endpoint: duckduckgoEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name identifies this source in results and trust configuration.
func (d *DuckDuckGo) Name() string {
	return "DuckDuckGo"
}

// relatedTopic is one entry of the instant-answer response. Category groups
// nest their entries under Topics.
type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

type instantAnswer struct {
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

// Search queries the instant-answer API and flattens related topics into
// results, up to maxResults.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building duckduckgo request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decoding duckduckgo response: %w", err)
	}

	now := time.Now()
	var results []Result
	d.collect(answer.RelatedTopics, &results, maxResults, now)
	return results, nil
}

// collect flattens topics (including nested category groups) into results.
func (d *DuckDuckGo) collect(topics []relatedTopic, results *[]Result, maxResults int, now time.Time) {
	for _, topic := range topics {
		if len(*results) >= maxResults {
			return
		}
		if len(topic.Topics) > 0 {
			d.collect(topic.Topics, results, maxResults, now)
			continue
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}

		title, snippet := splitTopicText(topic.Text)
		*results = append(*results, Result{
			Title:     title,
			URL:       topic.FirstURL,
			Snippet:   snippet,
			Source:    d.Name(),
			Timestamp: now,
		})
	}
}

// splitTopicText divides a topic's text into title and snippet at the first
// " - " separator. Without a separator the whole text serves as both.
func splitTopicText(text string) (title, snippet string) {
	if idx := strings.Index(text, " - "); idx > 0 {
		return text[:idx], text[idx+3:]
	}
	return text, text
}
