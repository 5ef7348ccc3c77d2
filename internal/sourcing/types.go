package sourcing

// SourceKind separates web-search sources from structured internal endpoints.
type SourceKind string

const (
	KindExternal SourceKind = "external"
	KindInternal SourceKind = "internal"
)

// InternalKind is the sub-kind of an internal data source.
type InternalKind string

const (
	InternalProcurementProject InternalKind = "procurement_project"
	InternalPotentialSupplier  InternalKind = "potential_supplier"
	InternalSecondaryPrice     InternalKind = "secondary_price"
)

// InternalScheme prefixes SourceReference URLs that point at internal
// structured data rather than navigable web pages.
const InternalScheme = "internal://"

// Item is one line item of a sourcing request. Immutable once a run starts.
type Item struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
}

// DataSource is one selectable data source. The orchestrator receives only
// the enabled subset; selection state lives in the UI.
type DataSource struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Kind     SourceKind   `json:"kind"`
	Subkind  InternalKind `json:"subkind,omitempty"`
	Keywords string       `json:"keywords,omitempty"`
}

// Dimension is one supplier evaluation dimension, relevant to the
// potential-supplier source.
type Dimension struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Keywords string `json:"keywords,omitempty"`
}

// HistoricalPerformanceDimension is covered by the phase-1 database query and
// therefore excluded from external reputation searches.
const HistoricalPerformanceDimension = "historical_performance"

// QueryResult is the value-level outcome of one structured query. A populated
// Error is the only failure signal; zero rows with no error is a successful
// empty result.
type QueryResult struct {
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// WebPage is one ranked result from the web-search endpoint.
type WebPage struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResponse is the value-level outcome of one web search.
type SearchResponse struct {
	Pages   []WebPage `json:"pages,omitempty"`
	Summary string    `json:"summary,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// SourceReference is a normalized citation surfaced to the user. QueryResult
// is present only for structured internal results and renders as a table.
type SourceReference struct {
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Snippet     string       `json:"snippet"`
	SourceName  string       `json:"sourceName"`
	ItemName    string       `json:"itemName,omitempty"`
	QueryResult *QueryResult `json:"queryResult,omitempty"`
}

// Internal reports whether the reference points at internal structured data.
func (r SourceReference) Internal() bool {
	return len(r.URL) >= len(InternalScheme) && r.URL[:len(InternalScheme)] == InternalScheme
}

// Stage tags a progress event with the half of the run it belongs to.
type Stage string

const (
	StageExternal Stage = "external"
	StageInternal Stage = "internal"
)

// Progress is one fan-out progress event. Current is a 1-based strictly
// increasing counter across the whole run; Total is fixed at run start.
type Progress struct {
	Stage      Stage  `json:"stage"`
	SourceName string `json:"sourceName"`
	ItemName   string `json:"itemName"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Dimension  string `json:"dimension,omitempty"`
}

// Result is the aggregated outcome of a full orchestration run.
type Result struct {
	FormattedText string            `json:"formattedText"`
	Sources       []SourceReference `json:"sources"`
}

// ExtractResult is what the item extractor derives from a transcript.
type ExtractResult struct {
	ProjectName string `json:"projectName,omitempty"`
	Items       []Item `json:"items"`
}

// Turn is one prior conversation turn handed to the extractor.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
