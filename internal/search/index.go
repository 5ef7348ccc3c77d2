package search

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/procurelab/bidwise/internal/sourcing"
)

// Hit is one citation matched by a full-text query.
type Hit struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Snippet    string  `json:"snippet"`
	SourceName string  `json:"sourceName"`
	ItemName   string  `json:"itemName,omitempty"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// citationDoc is the indexed shape of one reference.
type citationDoc struct {
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	SourceName string `json:"sourceName"`
	ItemName   string `json:"itemName"`
}

// CitationIndex keeps a per-conversation in-memory full-text index over the
// source references collected by sourcing runs, so earlier citations stay
// searchable across turns.
type CitationIndex struct {
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	meta    map[string]map[string]sourcing.SourceReference
}

// NewCitationIndex creates an empty index registry.
func NewCitationIndex() *CitationIndex {
	return &CitationIndex{
		indexes: make(map[string]bleve.Index),
		meta:    make(map[string]map[string]sourcing.SourceReference),
	}
}

// Add indexes the references of one run under the conversation.
func (ci *CitationIndex) Add(conversationID string, refs []sourcing.SourceReference) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	idx, ok := ci.indexes[conversationID]
	if !ok {
		var err error
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		ci.indexes[conversationID] = idx
		ci.meta[conversationID] = make(map[string]sourcing.SourceReference)
	}

	for _, ref := range refs {
		docID := fmt.Sprintf("%s|%s|%s", ref.SourceName, ref.ItemName, ref.URL)
		ci.meta[conversationID][docID] = ref
		doc := citationDoc{
			Title:      ref.Title,
			Snippet:    ref.Snippet,
			SourceName: ref.SourceName,
			ItemName:   ref.ItemName,
		}
		if err := idx.Index(docID, doc); err != nil {
			return fmt.Errorf("index citation: %w", err)
		}
	}
	return nil
}

// Search runs a full-text query over a conversation's citations and returns
// the top k hits. An unknown conversation yields no hits.
func (ci *CitationIndex) Search(conversationID, q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	ci.mu.RLock()
	idx, ok := ci.indexes[conversationID]
	meta := ci.meta[conversationID]
	ci.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil, err
	}

	var out []Hit
	for i, hit := range res.Hits {
		ref, ok := meta[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{
			Title:      ref.Title,
			URL:        ref.URL,
			Snippet:    ref.Snippet,
			SourceName: ref.SourceName,
			ItemName:   ref.ItemName,
			Score:      hit.Score,
			Rank:       i + 1,
		})
	}
	return out, nil
}

// Drop removes a conversation's index, releasing its memory.
func (ci *CitationIndex) Drop(conversationID string) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if idx, ok := ci.indexes[conversationID]; ok {
		_ = idx.Close()
	}
	delete(ci.indexes, conversationID)
	delete(ci.meta, conversationID)
}
