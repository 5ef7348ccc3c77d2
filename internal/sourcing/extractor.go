package sourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/procurelab/bidwise/internal/llm"
)

const extractPromptTemplate = `Extract the procurement project name and every product model / line item from the conversation below.

Conversation:
%s

Return a single JSON object with these fields:
- projectName: the procurement project name if one is mentioned (e.g. "2024 network equipment tender"), otherwise omit it or use an empty string
- items: an array of product models, each with:
  - name: the product model name (required)
  - quantity: the quantity if stated

Return only the JSON object, no other text. If no items are found return {"items": []}.

Example:
{"projectName": "2024 network equipment tender", "items": [{"name": "STM32F103C8T6", "quantity": "100"}, {"name": "ESP32-WROOM-32"}]}`

// Extractor derives a project name and item list from a conversation
// transcript with one low-temperature LLM call, memoized per conversation.
// Re-extraction never happens automatically; callers must Invalidate first.
type Extractor struct {
	provider llm.Provider
	model    string
	logger   *log.Logger

	mu    sync.Mutex
	cache map[string]ExtractResult
}

// NewExtractor creates an extractor using the given model key.
func NewExtractor(provider llm.Provider, model string) *Extractor {
	return &Extractor{
		provider: provider,
		model:    model,
		logger:   log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
		cache:    make(map[string]ExtractResult),
	}
}

// Extract returns the memoized result for the conversation, calling the model
// only on the first request. Failures degrade to an empty item list and are
// cached like any other outcome.
func (e *Extractor) Extract(ctx context.Context, conversationID string, transcript []Turn) ExtractResult {
	e.mu.Lock()
	if cached, ok := e.cache[conversationID]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	result := e.extract(ctx, transcript)

	e.mu.Lock()
	// First writer wins so concurrent callers observe one stable result.
	if cached, ok := e.cache[conversationID]; ok {
		result = cached
	} else {
		e.cache[conversationID] = result
	}
	e.mu.Unlock()
	return result
}

// Invalidate drops the cached result for a conversation.
func (e *Extractor) Invalidate(conversationID string) {
	e.mu.Lock()
	delete(e.cache, conversationID)
	e.mu.Unlock()
}

func (e *Extractor) extract(ctx context.Context, transcript []Turn) ExtractResult {
	var summary strings.Builder
	for _, turn := range transcript {
		role := "User"
		if turn.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&summary, "%s: %s\n\n", role, turn.Content)
	}

	temp := 0.1
	prompt := fmt.Sprintf(extractPromptTemplate, summary.String())
	content, _, err := e.provider.Generate(ctx,
		[]llm.Message{{Role: "user", Content: prompt}},
		e.model,
		llm.Options{Temperature: &temp, MaxTokens: 2048})
	if err != nil {
		e.logger.Printf("extraction call failed: %v", err)
		return ExtractResult{Items: []Item{}}
	}

	result, err := parseExtractResponse(content)
	if err != nil {
		e.logger.Printf("extraction parse failed: %v", err)
		return ExtractResult{Items: []Item{}}
	}
	return result
}

// parseExtractResponse tolerates markdown fences and chatter around the JSON:
// the first balanced JSON object wins, with a fallback to the legacy bare
// item-array shape.
func parseExtractResponse(content string) (ExtractResult, error) {
	if obj := firstJSONObject(content); obj != "" {
		var parsed struct {
			ProjectName string `json:"projectName"`
			Items       []Item `json:"items"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			return ExtractResult{ProjectName: parsed.ProjectName, Items: keepNamed(parsed.Items)}, nil
		}
	}

	// Legacy shape: a bare array of items.
	if start := strings.Index(content, "["); start >= 0 {
		if end := strings.LastIndex(content, "]"); end > start {
			var items []Item
			if err := json.Unmarshal([]byte(content[start:end+1]), &items); err == nil {
				return ExtractResult{Items: keepNamed(items)}, nil
			}
		}
	}
	return ExtractResult{}, fmt.Errorf("no JSON object in response")
}

func firstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func keepNamed(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Name) != "" {
			out = append(out, it)
		}
	}
	return out
}
