package sourcing

import (
	"context"
	"fmt"
	"log"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/httpx"
)

// StructuredQueryClient runs SQL statements against the internal catalog
// endpoint. Errors never propagate as Go errors: a populated
// QueryResult.Error is the only failure signal, which lets the orchestrator
// continue past failing tasks.
type StructuredQueryClient struct {
	cfg    config.CatalogConfig
	http   *httpx.Client
	logger *log.Logger
}

// NewStructuredQueryClient creates a client for the configured catalog.
func NewStructuredQueryClient(cfg config.CatalogConfig) *StructuredQueryClient {
	return &StructuredQueryClient{
		cfg:    cfg,
		http:   httpx.New(cfg.Timeout, 0, 0),
		logger: log.New(log.Writer(), "[CATALOG] ", log.LstdFlags),
	}
}

type runSQLEnvelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Results []struct {
			Columns []string `json:"columns"`
			Rows    [][]any  `json:"rows"`
		} `json:"results"`
	} `json:"data"`
}

// Run executes one statement. The endpoint encodes tabular data as parallel
// column/row arrays; rows are reshaped into column-keyed maps before return.
func (c *StructuredQueryClient) Run(ctx context.Context, statement string) QueryResult {
	headers := map[string]string{"Accept": "application/json"}
	// In local development a proxy injects the key to dodge CORS preflight;
	// KeyHeader is empty there and set in production.
	if c.cfg.KeyHeader != "" && c.cfg.APIKey != "" {
		headers[c.cfg.KeyHeader] = c.cfg.APIKey
	}
	body := map[string]string{"operation": "run_sql", "statement": statement}

	var env runSQLEnvelope
	url := c.cfg.BaseURL + "/catalog/nl2sql/run_sql"
	if err := c.http.DoJSON(ctx, "POST", url, headers, body, &env); err != nil {
		c.logger.Printf("run_sql failed: %v", err)
		return QueryResult{Error: fmt.Sprintf("query request failed: %v", err)}
	}
	// A non-OK code in the body is a logical error equivalent to a transport
	// failure.
	if env.Code != "" && env.Code != "OK" {
		msg := env.Msg
		if msg == "" {
			msg = "query failed"
		}
		return QueryResult{Error: msg}
	}
	if env.Data == nil || len(env.Data.Results) == 0 {
		return QueryResult{Columns: []string{}, Rows: []map[string]any{}}
	}

	res := env.Data.Results[0]
	rows := make([]map[string]any, 0, len(res.Rows))
	for _, raw := range res.Rows {
		obj := make(map[string]any, len(res.Columns))
		for i, col := range res.Columns {
			if i < len(raw) {
				obj[col] = raw[i]
			}
		}
		rows = append(rows, obj)
	}
	return QueryResult{Columns: res.Columns, Rows: rows}
}
