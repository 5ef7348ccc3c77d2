package sourcing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/telemetry"
)

const (
	maxExternalResults  = 5  // results kept per external (source, item) search
	maxReputationHits   = 3  // results kept per supplier reputation dimension
	maxPhase2Suppliers  = 5  // suppliers carried into phase-2 reputation search
	defaultPlaceholders = "placeholder data (internal lookup failed)"
)

// Searcher is the web-search dependency of the orchestrator.
type Searcher interface {
	Search(ctx context.Context, query string) SearchResponse
}

// Querier is the structured-query dependency of the orchestrator.
type Querier interface {
	Run(ctx context.Context, statement string) QueryResult
}

// Orchestrator fans one search task out per (source, item) pair, sequenced
// per source, and folds the results into a single report corpus. A failing
// task degrades to an error block; the run itself cannot fail.
type Orchestrator struct {
	search    Searcher
	query     Querier
	catalog   config.CatalogConfig
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// RunRequest carries the inputs of one orchestration run. Progress, when
// non-nil, receives one event per task before the task executes; the
// orchestrator blocks on a slow consumer, so callers must drain.
type RunRequest struct {
	ProjectName string
	Items       []Item
	Sources     []DataSource
	Dimensions  []Dimension
	Progress    chan<- Progress
}

// NewOrchestrator creates an orchestrator over the given clients.
func NewOrchestrator(search Searcher, query Querier, catalog config.CatalogConfig, tele *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		search:    search,
		query:     query,
		catalog:   catalog,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// taskResult is what every (source, item) task yields: exactly one text
// block and zero or more source references, failure included.
type taskResult struct {
	text string
	refs []SourceReference
}

// Run executes the full fan-out. External sources drain before internal
// sources; items keep list order inside each source; the progress counter is
// global and strictly increasing. Once started the run goes to completion.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) Result {
	started := time.Now()

	var external, internal []DataSource
	for _, s := range req.Sources {
		if s.Kind == KindInternal {
			internal = append(internal, s)
		} else {
			external = append(external, s)
		}
	}

	total := (len(external) + len(internal)) * len(req.Items)
	current := 0
	var allRefs []SourceReference

	emit := func(p Progress) {
		if req.Progress != nil {
			req.Progress <- p
		}
	}

	var externalBlocks []SourceBlocks
	for _, source := range external {
		blocks := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			current++
			emit(Progress{Stage: StageExternal, SourceName: source.Name, ItemName: item.Name, Current: current, Total: total})

			res := o.searchExternalItem(ctx, source, item)
			blocks = append(blocks, res.text)
			allRefs = append(allRefs, res.refs...)
		}
		externalBlocks = append(externalBlocks, SourceBlocks{Source: source, Blocks: blocks})
	}

	dimensionNames := make([]string, 0, len(req.Dimensions))
	for _, d := range req.Dimensions {
		dimensionNames = append(dimensionNames, d.Name)
	}

	var internalBlocks []SourceBlocks
	for _, source := range internal {
		blocks := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			current++
			p := Progress{Stage: StageInternal, SourceName: source.Name, ItemName: item.Name, Current: current, Total: total}
			if source.Subkind == InternalPotentialSupplier {
				p.Dimension = strings.Join(dimensionNames, ", ")
			}
			emit(p)

			var res taskResult
			switch source.Subkind {
			case InternalProcurementProject:
				res = o.procurementProjectTask(source, item)
			case InternalPotentialSupplier:
				res = o.potentialSupplierTask(ctx, source, item, req.Dimensions)
			case InternalSecondaryPrice:
				res = o.secondaryPriceTask(ctx, source, item)
			default:
				res = taskResult{text: fmt.Sprintf("#### %s\nUnknown internal source kind %q\n", item.Name, source.Subkind)}
			}
			blocks = append(blocks, res.text)
			allRefs = append(allRefs, res.refs...)
		}
		internalBlocks = append(internalBlocks, SourceBlocks{Source: source, Blocks: blocks})
	}

	text := FormatReport(req.ProjectName, req.Items, externalBlocks, internalBlocks, req.Dimensions)
	o.logger.Printf("run complete: %d tasks, %d references, %v", total, len(allRefs), time.Since(started))
	return Result{FormattedText: text, Sources: allRefs}
}

// searchExternalItem runs one web search for a (source, item) pair and keeps
// the top results. Errors yield a failure block, never an aborted run.
func (o *Orchestrator) searchExternalItem(ctx context.Context, source DataSource, item Item) taskResult {
	started := time.Now()
	query := BuildQuery(item.Name, source)
	resp := o.search.Search(ctx, query)
	o.recordSearch(source.Name, item.Name, started, resp.Error == "", len(resp.Pages))

	if resp.Error != "" {
		return taskResult{text: fmt.Sprintf("#### %s\nSearch failed: %s\n", item.Name, resp.Error)}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#### %s\n", item.Name)
	if resp.Summary != "" {
		fmt.Fprintf(&b, "**Summary**: %s\n\n", resp.Summary)
	}
	if len(resp.Pages) == 0 {
		b.WriteString("No results found\n")
		return taskResult{text: b.String()}
	}

	var refs []SourceReference
	for i, page := range resp.Pages {
		if i >= maxExternalResults {
			break
		}
		fmt.Fprintf(&b, "%d. **%s**\n   %s\n   Source: %s\n\n", i+1, page.Title, page.Snippet, page.URL)
		refs = append(refs, SourceReference{
			Title:      page.Title,
			URL:        page.URL,
			Snippet:    page.Snippet,
			SourceName: source.Name,
			ItemName:   item.Name,
		})
	}
	return taskResult{text: b.String(), refs: refs}
}

// procurementProjectTask emits the fixed-shape historical-record block. The
// backing system is an external collaborator; the block carries placeholder
// records until it is wired in.
func (o *Orchestrator) procurementProjectTask(source DataSource, item Item) taskResult {
	var b strings.Builder
	fmt.Fprintf(&b, "#### %s\n**Data source**: %s\n\n", item.Name, internalDescription(source.Subkind))
	b.WriteString("**Historical procurement records**:\n")
	b.WriteString("- 2024 Q3 project: 500 units at 128.50 each, supplier: Huawei Technologies Co., Ltd.\n")
	b.WriteString("- 2024 Q2 project: 300 units at 132.00 each, supplier: ZTE Corporation\n")
	b.WriteString("- 2024 Q1 project: 200 units at 135.80 each, supplier: FiberHome Telecommunication Technologies\n\n")

	return taskResult{
		text: b.String(),
		refs: []SourceReference{{
			Title:      item.Name + " - historical procurement records",
			URL:        InternalScheme + "procurement-project",
			Snippet:    "Historical procurement projects: quantities, award prices, suppliers",
			SourceName: source.Name,
			ItemName:   item.Name,
		}},
	}
}

// secondaryPriceTask queries the secondary-procurement price table and
// renders the rows as a Markdown table, falling back to a labeled
// placeholder dataset when the query fails.
func (o *Orchestrator) secondaryPriceTask(ctx context.Context, source DataSource, item Item) taskResult {
	started := time.Now()
	res := o.query.Run(ctx, SecondaryPriceStatement(o.catalog.PriceTab, item.Name))
	o.recordSearch(source.Name, item.Name, started, res.Error == "", len(res.Rows))

	if res.Error != "" {
		o.logger.Printf("secondary price query failed for %q: %s", item.Name, res.Error)
		var b strings.Builder
		fmt.Fprintf(&b, "#### %s\n**Data source**: %s\n\n", item.Name, internalDescription(source.Subkind))
		fmt.Fprintf(&b, "Query failed (%s), showing %s\n\n", res.Error, defaultPlaceholders)
		b.WriteString("**Secondary procurement price history**:\n")
		b.WriteString("| Period | Channel | Unit price | Quantity | Total |\n")
		b.WriteString("|---|---|---|---|---|\n")
		b.WriteString("| 2024-10 | framework agreement | 125.00 | 1000 | 125,000 |\n")
		b.WriteString("| 2024-08 | competitive bid | 128.50 | 500 | 64,250 |\n")
		b.WriteString("| 2024-06 | single source | 130.00 | 200 | 26,000 |\n\n")
		return taskResult{
			text: b.String(),
			refs: []SourceReference{{
				Title:      item.Name + " - secondary procurement prices (placeholder)",
				URL:        InternalScheme + "secondary-price",
				Snippet:    "Secondary procurement price history: channel, price, quantity",
				SourceName: source.Name,
				ItemName:   item.Name,
			}},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### [%s] secondary procurement prices\n\n> Data from the internal secondary-procurement price library\n\n", item.Name)
	b.WriteString(FormatQueryResultMarkdown(res, "Secondary procurement prices", "Historical secondary-procurement price data"))

	ref := SourceReference{
		Title:      item.Name + " - secondary procurement prices (internal data)",
		URL:        InternalScheme + "secondary-price",
		Snippet:    fmt.Sprintf("Internal price library lookup, %d price records found", len(res.Rows)),
		SourceName: source.Name,
		ItemName:   item.Name,
	}
	if len(res.Columns) > 0 {
		resCopy := res
		ref.QueryResult = &resCopy
	}
	return taskResult{text: b.String(), refs: []SourceReference{ref}}
}

// potentialSupplierTask runs the two-phase lookup: an internal ranking of
// historical bid performance, then external reputation searches for the top
// suppliers across the selected dimensions.
func (o *Orchestrator) potentialSupplierTask(ctx context.Context, source DataSource, item Item, dimensions []Dimension) taskResult {
	dims := dimensions
	if len(dims) == 0 {
		dims = DefaultDimensions()
	}
	var externalDims []Dimension
	for _, d := range dims {
		if d.ID != HistoricalPerformanceDimension {
			externalDims = append(externalDims, d)
		}
	}
	dimNames := make([]string, 0, len(dims))
	for _, d := range dims {
		dimNames = append(dimNames, d.Name)
	}

	// Phase 1: rank suppliers from historical bid records.
	started := time.Now()
	res := o.query.Run(ctx, HistoricalPerformanceStatement(o.catalog.BidTable, item.Name))
	o.recordSearch(source.Name, item.Name, started, res.Error == "", len(res.Rows))

	if res.Error != "" {
		o.logger.Printf("supplier ranking query failed for %q: %s", item.Name, res.Error)
		return o.supplierPlaceholder(source, item, res.Error)
	}

	suppliers := supplierNames(res)

	var b strings.Builder
	fmt.Fprintf(&b, "### [%s] potential supplier recommendation\n\n", item.Name)
	fmt.Fprintf(&b, "> Evaluation dimensions: %s\n\n---\n\n", strings.Join(dimNames, ", "))
	b.WriteString("## 1. Internal data analysis (historical performance)\n\n")
	b.WriteString("> Data from the internal procurement database\n\n")
	b.WriteString(FormatQueryResultMarkdown(res, "Historical performance", "Past delivery quality and award history per supplier"))

	phase1Ref := SourceReference{
		Title:      item.Name + " - historical performance (internal data)",
		URL:        InternalScheme + "potential-supplier-history",
		Snippet:    fmt.Sprintf("Historical performance from the internal procurement database, %d suppliers found", len(suppliers)),
		SourceName: "internal database",
		ItemName:   item.Name,
	}
	if len(res.Columns) > 0 {
		resCopy := res
		phase1Ref.QueryResult = &resCopy
	}
	refs := []SourceReference{phase1Ref}

	// Phase 2: external reputation searches for the top suppliers.
	if len(suppliers) > 0 && len(externalDims) > 0 {
		top := suppliers
		if len(top) > maxPhase2Suppliers {
			top = top[:maxPhase2Suppliers]
		}
		b.WriteString("\n---\n\n## 2. External market information\n\n")
		fmt.Fprintf(&b, "> Public web information for the top %d ranked suppliers\n\n", len(top))
		for i, supplier := range top {
			text, supplierRefs := o.searchSupplierReputation(ctx, supplier, externalDims)
			fmt.Fprintf(&b, "### %d. %s\n\n%s\n", i+1, supplier, text)
			refs = append(refs, supplierRefs...)
		}
	} else if len(externalDims) > 0 {
		b.WriteString("\n---\n\n## 2. External market information\n\n")
		b.WriteString("No suppliers found in the internal database; external reputation search skipped\n\n")
	}

	return taskResult{text: b.String(), refs: refs}
}

// searchSupplierReputation runs one web search per evaluation dimension for a
// supplier, keeping the top hits per dimension.
func (o *Orchestrator) searchSupplierReputation(ctx context.Context, supplier string, dims []Dimension) (string, []SourceReference) {
	var b strings.Builder
	var refs []SourceReference
	fmt.Fprintf(&b, "#### %s\n\n", supplier)

	for _, dim := range dims {
		query := strings.TrimSpace(supplier + " " + dim.Keywords)
		if dim.Keywords == "" {
			query = supplier + " " + dim.Name
		}

		started := time.Now()
		resp := o.search.Search(ctx, query)
		o.recordSearch(dim.Name+"-external-search", supplier, started, resp.Error == "", len(resp.Pages))

		if resp.Error != "" {
			fmt.Fprintf(&b, "**%s**: search failed - %s\n\n", dim.Name, resp.Error)
			continue
		}

		fmt.Fprintf(&b, "**%s**\n", dim.Name)
		if resp.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", resp.Summary)
		}
		if len(resp.Pages) == 0 {
			b.WriteString("No relevant information found\n\n")
			continue
		}
		for i, page := range resp.Pages {
			if i >= maxReputationHits {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n   %s\n\n", i+1, page.Title, page.Snippet)
			refs = append(refs, SourceReference{
				Title:      page.Title,
				URL:        page.URL,
				Snippet:    page.Snippet,
				SourceName: dim.Name + "-external-search",
				ItemName:   supplier,
			})
		}
	}
	return b.String(), refs
}

// supplierPlaceholder is the degraded outcome when the phase-1 query fails.
func (o *Orchestrator) supplierPlaceholder(source DataSource, item Item, cause string) taskResult {
	var b strings.Builder
	fmt.Fprintf(&b, "### [%s] potential supplier recommendation\n\n", item.Name)
	fmt.Fprintf(&b, "**Data source**: %s\n\n", internalDescription(source.Subkind))
	fmt.Fprintf(&b, "Query failed (%s), showing %s\n\n", cause, defaultPlaceholders)
	b.WriteString("**Potential suppliers**:\n")
	b.WriteString("| Supplier | Type | Rating | Partnership | Contact |\n")
	b.WriteString("|---|---|---|---|---|\n")
	b.WriteString("| Shenzhen Keda Electronics Co., Ltd. | distributor | A | 3 years | 0755-12345678 |\n")
	b.WriteString("| Shanghai Ruixin Microelectronics Co., Ltd. | manufacturer | AAA | 5 years | 021-87654321 |\n")
	b.WriteString("| Beijing Zhongke Chuangxin Technology Co., Ltd. | distributor | AA | 2 years | 010-56781234 |\n\n")

	return taskResult{
		text: b.String(),
		refs: []SourceReference{{
			Title:      item.Name + " - potential suppliers (placeholder)",
			URL:        InternalScheme + "potential-supplier",
			Snippet:    "Potential supplier data: company type, rating, partnership history",
			SourceName: source.Name,
			ItemName:   item.Name,
		}},
	}
}

// supplierNames pulls the supplier column out of the phase-1 rows in order.
func supplierNames(res QueryResult) []string {
	var out []string
	for _, row := range res.Rows {
		if name, ok := row[SupplierNameColumn].(string); ok && name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (o *Orchestrator) recordSearch(source, item string, started time.Time, success bool, results int) {
	if o.telemetry == nil {
		return
	}
	o.telemetry.RecordSearchEvent(telemetry.SearchEvent{
		Source:   source,
		Item:     item,
		Duration: time.Since(started),
		Success:  success,
		Results:  results,
	})
}

// DefaultDimensions is the evaluation dimension set used when the caller
// selects none.
func DefaultDimensions() []Dimension {
	return []Dimension{
		{ID: HistoricalPerformanceDimension, Name: "historical performance"},
		{ID: "market_share", Name: "market share", Keywords: "market share industry ranking market position"},
		{ID: "overall_strength", Name: "overall strength", Keywords: "company size registered capital certifications strength"},
		{ID: "key_capability", Name: "key capability", Keywords: "technical capability R&D production capacity core competitiveness"},
	}
}

func internalDescription(kind InternalKind) string {
	switch kind {
	case InternalProcurementProject:
		return "historical procurement project data"
	case InternalPotentialSupplier:
		return "potential supplier library data"
	case InternalSecondaryPrice:
		return "secondary procurement price history"
	default:
		return "internal data"
	}
}
