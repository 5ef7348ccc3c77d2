package sourcing

import (
	"context"
	"log"
	"strings"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/httpx"
)

// WebSearchClient issues free-text queries against the external search
// endpoint. One attempt per call; failures come back as SearchResponse.Error.
type WebSearchClient struct {
	cfg    config.SearchConfig
	http   *httpx.Client
	logger *log.Logger
}

// NewWebSearchClient creates a client for the configured search endpoint.
func NewWebSearchClient(cfg config.SearchConfig) *WebSearchClient {
	return &WebSearchClient{
		cfg:    cfg,
		http:   httpx.New(cfg.Timeout, 0, 0),
		logger: log.New(log.Writer(), "[WEBSEARCH] ", log.LstdFlags),
	}
}

type webSearchEnvelope struct {
	Data *struct {
		WebPages *struct {
			Value []WebPage `json:"value"`
		} `json:"webPages"`
		Summary string `json:"summary"`
	} `json:"data"`
	Error string `json:"error"`
}

// Search runs one query. Transport and endpoint failures are reported in the
// Error field so callers can continue past individual task failures.
func (c *WebSearchClient) Search(ctx context.Context, query string) SearchResponse {
	count := c.cfg.Count
	if count <= 0 {
		count = 10
	}
	body := map[string]any{"query": query, "summary": true, "count": count}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var env webSearchEnvelope
	if err := c.http.DoJSON(ctx, "POST", c.cfg.Endpoint, headers, body, &env); err != nil {
		c.logger.Printf("search failed for %q: %v", query, err)
		return SearchResponse{Error: err.Error()}
	}
	if env.Error != "" {
		return SearchResponse{Error: env.Error}
	}
	out := SearchResponse{}
	if env.Data != nil {
		out.Summary = env.Data.Summary
		if env.Data.WebPages != nil {
			out.Pages = env.Data.WebPages.Value
		}
	}
	return out
}

// BuildQuery appends the source's keyword template to the base term.
func BuildQuery(base string, source DataSource) string {
	return strings.TrimSpace(base + " " + source.Keywords)
}
