package sourcing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/procurelab/bidwise/config"
)

func TestStructuredQueryClientReshapesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog/nl2sql/run_sql" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("moi-key"); got != "secret" {
			t.Errorf("key header = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["operation"] != "run_sql" {
			t.Errorf("operation = %q", body["operation"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": "OK",
			"data": map[string]any{
				"results": []map[string]any{{
					"columns": []string{"supplier_name", "win_count"},
					"rows":    [][]any{{"Acme", 3}, {"Globex", 1}},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewStructuredQueryClient(config.CatalogConfig{
		BaseURL:   srv.URL,
		APIKey:    "secret",
		KeyHeader: "moi-key",
		Timeout:   5 * time.Second,
	})
	res := c.Run(context.Background(), "SELECT 1")

	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows", len(res.Rows))
	}
	if res.Rows[0]["supplier_name"] != "Acme" {
		t.Fatalf("row 0 = %+v", res.Rows[0])
	}
	if res.Rows[1]["win_count"] != float64(1) {
		t.Fatalf("row 1 = %+v", res.Rows[1])
	}
}

func TestStructuredQueryClientLogicalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "ERR_SYNTAX", "msg": "syntax error near FROM"})
	}))
	defer srv.Close()

	c := NewStructuredQueryClient(config.CatalogConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	res := c.Run(context.Background(), "SELEC")
	if res.Error != "syntax error near FROM" {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestStructuredQueryClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewStructuredQueryClient(config.CatalogConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	res := c.Run(context.Background(), "SELECT 1")
	if res.Error == "" {
		t.Fatal("transport failure not surfaced as value error")
	}
}

func TestStructuredQueryClientEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "OK"})
	}))
	defer srv.Close()

	c := NewStructuredQueryClient(config.CatalogConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	res := c.Run(context.Background(), "SELECT 1")
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Rows == nil || len(res.Rows) != 0 {
		t.Fatalf("want empty row slice, got %+v", res.Rows)
	}
}

func TestWebSearchClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"webPages": map[string]any{
					"value": []map[string]string{
						{"title": "t1", "url": "https://a", "snippet": "s1"},
					},
				},
				"summary": "overview",
			},
		})
	}))
	defer srv.Close()

	c := NewWebSearchClient(config.SearchConfig{Endpoint: srv.URL, APIKey: "sk-test", Timeout: 5 * time.Second})
	resp := c.Search(context.Background(), "SFP-10G-SR price")
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Summary != "overview" || len(resp.Pages) != 1 || resp.Pages[0].Title != "t1" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWebSearchClientEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "quota exceeded"})
	}))
	defer srv.Close()

	c := NewWebSearchClient(config.SearchConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	resp := c.Search(context.Background(), "anything")
	if resp.Error != "quota exceeded" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestBuildQuery(t *testing.T) {
	src := DataSource{Keywords: "electronic components price quote"}
	if got := BuildQuery("STM32F103C8T6", src); got != "STM32F103C8T6 electronic components price quote" {
		t.Fatalf("got %q", got)
	}
	if got := BuildQuery("STM32F103C8T6", DataSource{}); got != "STM32F103C8T6" {
		t.Fatalf("got %q", got)
	}
}
