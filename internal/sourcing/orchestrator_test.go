package sourcing

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/procurelab/bidwise/config"
)

type fakeSearcher struct {
	calls     []string
	responses map[string]SearchResponse
	fallback  SearchResponse
}

func (f *fakeSearcher) Search(_ context.Context, query string) SearchResponse {
	f.calls = append(f.calls, query)
	if r, ok := f.responses[query]; ok {
		return r
	}
	return f.fallback
}

type fakeQuerier struct {
	calls  []string
	result QueryResult
}

func (f *fakeQuerier) Run(_ context.Context, statement string) QueryResult {
	f.calls = append(f.calls, statement)
	return f.result
}

func pages(n int) []WebPage {
	out := make([]WebPage, n)
	for i := range out {
		out[i] = WebPage{
			Title:   fmt.Sprintf("result %d", i+1),
			URL:     fmt.Sprintf("https://example.com/%d", i+1),
			Snippet: fmt.Sprintf("snippet %d", i+1),
		}
	}
	return out
}

func testCatalog() config.CatalogConfig {
	return config.CatalogConfig{
		BidTable: "procurement.bid_records",
		PriceTab: "procurement.secondary_prices",
	}
}

func TestRunProgressCounter(t *testing.T) {
	search := &fakeSearcher{fallback: SearchResponse{Pages: pages(2)}}
	query := &fakeQuerier{result: QueryResult{Columns: []string{}, Rows: []map[string]any{}}}
	o := NewOrchestrator(search, query, testCatalog(), nil)

	sources := []DataSource{
		{ID: "chipmart", Name: "ChipMart", Kind: KindExternal},
		{ID: "partsbay", Name: "PartsBay", Kind: KindExternal},
		{ID: "secondary", Name: "Secondary prices", Kind: KindInternal, Subkind: InternalSecondaryPrice},
	}
	items := []Item{{Name: "STM32F103C8T6"}, {Name: "ESP32-WROOM-32"}}

	progress := make(chan Progress, 64)
	res := o.Run(context.Background(), RunRequest{Items: items, Sources: sources, Progress: progress})
	close(progress)

	var events []Progress
	for p := range progress {
		events = append(events, p)
	}

	wantTotal := len(sources) * len(items)
	if len(events) != wantTotal {
		t.Fatalf("got %d progress events, want %d", len(events), wantTotal)
	}
	for i, p := range events {
		if p.Current != i+1 {
			t.Fatalf("event %d: current=%d, want %d", i, p.Current, i+1)
		}
		if p.Total != wantTotal {
			t.Fatalf("event %d: total=%d, want %d", i, p.Total, wantTotal)
		}
	}
	// All external events precede all internal events.
	seenInternal := false
	for i, p := range events {
		if p.Stage == StageInternal {
			seenInternal = true
		} else if seenInternal {
			t.Fatalf("event %d: external stage after internal stage", i)
		}
	}
	// Items keep list order inside each source.
	if events[0].ItemName != "STM32F103C8T6" || events[1].ItemName != "ESP32-WROOM-32" {
		t.Fatalf("unexpected item order: %q, %q", events[0].ItemName, events[1].ItemName)
	}

	if res.FormattedText == "" {
		t.Fatal("empty formatted text")
	}
	if !strings.Contains(res.FormattedText, "# Data Source Search Results") {
		t.Fatalf("missing report header:\n%s", res.FormattedText[:120])
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	search := &fakeSearcher{
		responses: map[string]SearchResponse{
			"STM32F103C8T6": {Error: "upstream timeout"},
		},
		fallback: SearchResponse{Pages: pages(1)},
	}
	query := &fakeQuerier{result: QueryResult{Error: "connection refused"}}
	o := NewOrchestrator(search, query, testCatalog(), nil)

	sources := []DataSource{
		{ID: "chipmart", Name: "ChipMart", Kind: KindExternal},
		{ID: "secondary", Name: "Secondary prices", Kind: KindInternal, Subkind: InternalSecondaryPrice},
	}
	items := []Item{{Name: "STM32F103C8T6"}, {Name: "ESP32-WROOM-32"}}

	res := o.Run(context.Background(), RunRequest{Items: items, Sources: sources})

	if !strings.Contains(res.FormattedText, "Search failed: upstream timeout") {
		t.Fatal("failed search not reported in text")
	}
	// The healthy item still produced results and references.
	if !strings.Contains(res.FormattedText, "result 1") {
		t.Fatal("healthy search results missing")
	}
	// The failing internal query degrades to a labeled placeholder.
	if !strings.Contains(res.FormattedText, "placeholder data") {
		t.Fatal("placeholder block missing for failed query")
	}
	found := false
	for _, ref := range res.Sources {
		if ref.SourceName == "ChipMart" && ref.ItemName == "ESP32-WROOM-32" {
			found = true
		}
	}
	if !found {
		t.Fatal("missing reference from the healthy external task")
	}
}

func TestPotentialSupplierTwoPhase(t *testing.T) {
	rows := make([]map[string]any, 7)
	for i := range rows {
		rows[i] = map[string]any{
			SupplierNameColumn: fmt.Sprintf("Supplier %c", 'A'+i),
			"win_count":        float64(7 - i),
		}
	}
	query := &fakeQuerier{result: QueryResult{Columns: []string{SupplierNameColumn, "win_count"}, Rows: rows}}
	search := &fakeSearcher{fallback: SearchResponse{Pages: pages(4)}}
	o := NewOrchestrator(search, query, testCatalog(), nil)

	dims := []Dimension{
		{ID: HistoricalPerformanceDimension, Name: "historical performance"},
		{ID: "market_share", Name: "market share", Keywords: "market share ranking"},
		{ID: "overall_strength", Name: "overall strength", Keywords: "company size strength"},
	}
	source := DataSource{ID: "supplier", Name: "Potential suppliers", Kind: KindInternal, Subkind: InternalPotentialSupplier}

	res := o.Run(context.Background(), RunRequest{
		Items:      []Item{{Name: "SFP-10G-SR"}},
		Sources:    []DataSource{source},
		Dimensions: dims,
	})

	// Phase 1 runs exactly one ranking query.
	if len(query.calls) != 1 {
		t.Fatalf("got %d queries, want 1", len(query.calls))
	}
	if !strings.Contains(query.calls[0], "ORDER BY win_count DESC") {
		t.Fatalf("unexpected ranking statement: %s", query.calls[0])
	}

	// Phase 2: top 5 of 7 suppliers, times the 2 non-historical dimensions.
	wantSearches := maxPhase2Suppliers * 2
	if len(search.calls) != wantSearches {
		t.Fatalf("got %d searches, want %d: %v", len(search.calls), wantSearches, search.calls)
	}
	for _, q := range search.calls {
		if strings.Contains(q, "historical") {
			t.Fatalf("historical dimension searched externally: %q", q)
		}
	}
	if !strings.HasPrefix(search.calls[0], "Supplier A ") {
		t.Fatalf("phase 2 does not start with the top supplier: %q", search.calls[0])
	}

	// References: one phase-1 entry plus 3 kept hits per (supplier, dimension).
	wantRefs := 1 + wantSearches*maxReputationHits
	if len(res.Sources) != wantRefs {
		t.Fatalf("got %d references, want %d", len(res.Sources), wantRefs)
	}
	if !res.Sources[0].Internal() {
		t.Fatalf("phase-1 reference not internal: %q", res.Sources[0].URL)
	}
	if res.Sources[0].QueryResult == nil {
		t.Fatal("phase-1 reference missing query result")
	}
	for _, ref := range res.Sources[1:] {
		if !strings.HasSuffix(ref.SourceName, "-external-search") {
			t.Fatalf("phase-2 reference source %q missing -external-search suffix", ref.SourceName)
		}
	}
}

func TestPotentialSupplierEmptyPhaseOne(t *testing.T) {
	query := &fakeQuerier{result: QueryResult{Columns: []string{SupplierNameColumn}, Rows: []map[string]any{}}}
	search := &fakeSearcher{fallback: SearchResponse{Pages: pages(3)}}
	o := NewOrchestrator(search, query, testCatalog(), nil)

	source := DataSource{ID: "supplier", Name: "Potential suppliers", Kind: KindInternal, Subkind: InternalPotentialSupplier}
	res := o.Run(context.Background(), RunRequest{
		Items:   []Item{{Name: "QSFP-40G"}},
		Sources: []DataSource{source},
	})

	if len(search.calls) != 0 {
		t.Fatalf("phase 2 ran despite empty ranking: %v", search.calls)
	}
	if len(res.Sources) != 1 {
		t.Fatalf("got %d references, want only the phase-1 entry", len(res.Sources))
	}
	if !strings.Contains(res.FormattedText, "external reputation search skipped") {
		t.Fatal("missing data-gap note for skipped phase 2")
	}
}

func TestSecondaryPriceTable(t *testing.T) {
	query := &fakeQuerier{result: QueryResult{
		Columns: []string{"material_desc", "unit", "avg_price"},
		Rows: []map[string]any{
			{"material_desc": "SFP-10G-SR module", "unit": "pc", "avg_price": 125.5},
		},
	}}
	o := NewOrchestrator(&fakeSearcher{}, query, testCatalog(), nil)

	source := DataSource{ID: "secondary", Name: "Secondary prices", Kind: KindInternal, Subkind: InternalSecondaryPrice}
	res := o.Run(context.Background(), RunRequest{
		Items:   []Item{{Name: "SFP-10G-SR"}},
		Sources: []DataSource{source},
	})

	if !strings.Contains(query.calls[0], "procurement.secondary_prices") {
		t.Fatalf("unexpected statement: %s", query.calls[0])
	}
	if !strings.Contains(res.FormattedText, "| SFP-10G-SR module | pc | 125.50 |") {
		t.Fatalf("price row not rendered:\n%s", res.FormattedText)
	}
	if len(res.Sources) != 1 || res.Sources[0].QueryResult == nil {
		t.Fatal("expected one reference carrying the query result")
	}
}

func TestRunEscapesItemNames(t *testing.T) {
	query := &fakeQuerier{result: QueryResult{Columns: []string{}, Rows: []map[string]any{}}}
	o := NewOrchestrator(&fakeSearcher{}, query, testCatalog(), nil)

	source := DataSource{ID: "secondary", Name: "Secondary prices", Kind: KindInternal, Subkind: InternalSecondaryPrice}
	o.Run(context.Background(), RunRequest{
		Items:   []Item{{Name: "O'Brien's part"}},
		Sources: []DataSource{source},
	})

	if !strings.Contains(query.calls[0], "O''Brien''s part") {
		t.Fatalf("quotes not escaped: %s", query.calls[0])
	}
}

func TestExternalResultCap(t *testing.T) {
	search := &fakeSearcher{fallback: SearchResponse{Pages: pages(9), Summary: "market overview"}}
	o := NewOrchestrator(search, &fakeQuerier{}, testCatalog(), nil)

	res := o.Run(context.Background(), RunRequest{
		Items:   []Item{{Name: "RJ45 connector"}},
		Sources: []DataSource{{ID: "chipmart", Name: "ChipMart", Kind: KindExternal}},
	})

	if len(res.Sources) != maxExternalResults {
		t.Fatalf("got %d references, want %d", len(res.Sources), maxExternalResults)
	}
	if !strings.Contains(res.FormattedText, "**Summary**: market overview") {
		t.Fatal("summary missing from block")
	}
	if strings.Contains(res.FormattedText, "result 6") {
		t.Fatal("results past the cap leaked into the block")
	}
}
