package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/chat"
	"github.com/procurelab/bidwise/internal/docparse"
	"github.com/procurelab/bidwise/internal/llm"
	"github.com/procurelab/bidwise/internal/search"
	"github.com/procurelab/bidwise/internal/sourcing"
	"github.com/procurelab/bidwise/internal/store"
	"github.com/procurelab/bidwise/internal/telemetry"
)

// SourcingHandler exposes the fan-out run, item extraction, chat streaming
// and citation search endpoints.
type SourcingHandler struct {
	Store     *store.Store
	Orch      *sourcing.Orchestrator
	Extractor *sourcing.Extractor
	Chat      *chat.Manager
	Citations *search.CitationIndex
	Docs      *docparse.Registry
	Telemetry *telemetry.Telemetry
	Config    *config.Config
	Logger    *log.Logger
}

func (h *SourcingHandler) Register(api *echo.Group, convs *echo.Group) {
	api.GET("/sources", h.listSources)
	api.POST("/generation/stop", h.stopGeneration)
	convs.POST("/:id/extract", h.extract)
	convs.POST("/:id/runs/stream", h.streamRun)
	convs.POST("/:id/chat/stream", h.streamChat)
	convs.GET("/:id/citations", h.searchCitations)
}

// ListSources
//
//	@Summary	List configured data sources and evaluation dimensions
//	@Tags		sourcing
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}
//	@Router		/api/sources [get]
func (h *SourcingHandler) listSources(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"sources":    catalogSources(h.Config.Search),
		"dimensions": catalogDimensions(h.Config.Search),
	})
}

// Extract
//
//	@Summary	Extract procurement items from a conversation
//	@Tags		sourcing
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ExtractRequest	true	"Extraction options"
//	@Success	200		{object}	sourcing.ExtractResult
//	@Failure	404		{object}	HTTPError
//	@Router		/api/conversations/{id}/extract [post]
func (h *SourcingHandler) extract(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := h.Store.GetConversation(ctx, id, userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Force {
		h.Extractor.Invalidate(id)
	}

	msgs, err := h.Store.ListMessages(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	turns := transcript(msgs)
	if req.Document != "" {
		text := req.Document
		if req.DocumentName != "" && h.Docs != nil {
			text, err = h.Docs.Parse(ctx, req.DocumentName, strings.NewReader(req.Document))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		turns = append(turns, sourcing.Turn{Role: "user", Content: text})
	}
	return c.JSON(http.StatusOK, h.Extractor.Extract(ctx, id, turns))
}

// StreamRun
//
//	@Summary	Run a multi-source search fan-out, streaming progress
//	@Description	Emits progress events per task, then one done event with the full result
//	@Tags		sourcing
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	text/event-stream
//	@Param		payload	body		SourcingRunRequest	true	"Run parameters"
//	@Success	200		{string}	string
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/conversations/{id}/runs/stream [post]
func (h *SourcingHandler) streamRun(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := h.Store.GetConversation(ctx, id, userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	var req SourcingRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	items := req.Items
	projectName := req.ProjectName
	if len(items) == 0 {
		msgs, err := h.Store.ListMessages(ctx, id)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		extracted := h.Extractor.Extract(ctx, id, transcript(msgs))
		items = extracted.Items
		if projectName == "" {
			projectName = extracted.ProjectName
		}
	}
	if len(items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no items to search; provide items or discuss them first")
	}

	sources := selectSources(h.Config.Search, req.SourceIDs)
	if len(sources) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no data sources selected")
	}
	dims := selectDimensions(h.Config.Search, req.DimensionIDs)

	flusher, err := sseStart(c)
	if err != nil {
		return err
	}

	started := time.Now()
	progress := make(chan sourcing.Progress, 32)
	results := make(chan sourcing.Result, 1)
	go func() {
		defer close(progress)
		results <- h.Orch.Run(ctx, sourcing.RunRequest{
			ProjectName: projectName,
			Items:       items,
			Sources:     sources,
			Dimensions:  dims,
			Progress:    progress,
		})
	}()

	sendFailed := false
	for p := range progress {
		if sendFailed {
			continue
		}
		if err := sseSend(c, flusher, "progress", p); err != nil {
			// Client gone; keep draining so the run finishes and the result
			// is still persisted below.
			sendFailed = true
		}
	}
	res := <-results

	// The request context is canceled once the client disconnects; the
	// finished run is persisted regardless.
	persistCtx := context.WithoutCancel(ctx)
	sourcesJSON, _ := json.Marshal(res.Sources)
	if _, err := h.Store.AddMessage(persistCtx, store.Message{
		ConversationID: id,
		Role:           "assistant",
		Content:        res.FormattedText,
		Status:         store.MessageStatusCompleted,
		Sources:        sourcesJSON,
	}); err != nil {
		h.Logger.Printf("persist run result: %v", err)
	}
	if h.Citations != nil {
		if err := h.Citations.Add(id, res.Sources); err != nil {
			h.Logger.Printf("index citations: %v", err)
		}
	}
	if h.Telemetry != nil {
		h.Telemetry.RecordRunEvent(telemetry.RunEvent{
			ConversationID: id,
			Items:          len(items),
			Sources:        len(sources),
			StartTime:      started,
			EndTime:        time.Now(),
			Success:        true,
		})
	}

	return sseSend(c, flusher, "done", res)
}

// StreamChat
//
//	@Summary	Stream an assistant completion
//	@Description	Emits delta events; a stopped generation keeps its partial content
//	@Tags		sourcing
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	text/event-stream
//	@Success	200	{string}	string
//	@Failure	404	{object}	HTTPError
//	@Failure	409	{object}	HTTPError
//	@Router		/api/conversations/{id}/chat/stream [post]
func (h *SourcingHandler) streamChat(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := h.Store.GetConversation(ctx, id, userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	var req ChatStreamRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}

	if _, err := h.Store.AddMessage(ctx, store.Message{
		ConversationID: id,
		Role:           "user",
		Content:        req.Content,
		Status:         store.MessageStatusCompleted,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	msgs, err := h.Store.ListMessages(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	gen, err := h.Chat.Start(ctx, history, req.Model)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	flusher, sseErr := sseStart(c)
	if sseErr != nil {
		h.Chat.Stop()
		return sseErr
	}

	for d := range gen.Deltas() {
		if err := sseSend(c, flusher, "delta", d); err != nil {
			break
		}
	}
	out := gen.Outcome()

	status := store.MessageStatusCompleted
	switch out.Status {
	case chat.StatusStopped:
		status = store.MessageStatusStopped
	case chat.StatusFailed:
		status = store.MessageStatusFailed
	}
	if out.Content != "" || status != store.MessageStatusFailed {
		var sourcesJSON json.RawMessage
		if len(req.Sources) > 0 {
			sourcesJSON, _ = json.Marshal(req.Sources)
		}
		if _, err := h.Store.AddMessage(context.WithoutCancel(ctx), store.Message{
			ConversationID: id,
			Role:           "assistant",
			Content:        out.Content,
			Reasoning:      out.Reasoning,
			Status:         status,
			Sources:        sourcesJSON,
		}); err != nil {
			h.Logger.Printf("persist chat result: %v", err)
		}
	}
	return sseSend(c, flusher, "done", out)
}

// StopGeneration
//
//	@Summary	Stop the in-flight generation
//	@Tags		sourcing
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	map[string]bool
//	@Router		/api/generation/stop [post]
func (h *SourcingHandler) stopGeneration(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"stopped": h.Chat.Stop()})
}

// SearchCitations
//
//	@Summary	Full-text search over a conversation's collected citations
//	@Tags		sourcing
//	@Security	BearerAuth
//	@Produce	json
//	@Param		q	query		string	true	"Query"
//	@Param		k	query		int		false	"Max hits (default 10)"
//	@Success	200	{array}		search.Hit
//	@Failure	400	{object}	HTTPError
//	@Router		/api/conversations/{id}/citations [get]
func (h *SourcingHandler) searchCitations(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	if _, err := h.Store.GetConversation(c.Request().Context(), id, userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	hits, err := h.Citations.Search(id, q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}

// sseStart switches the response into event-stream mode.
func sseStart(c echo.Context) (http.Flusher, error) {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	return flusher, nil
}

func sseSend(c echo.Context, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp := c.Response()
	if _, err := resp.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// catalogSources maps the configured source entries to orchestrator inputs.
func catalogSources(cfg config.SearchConfig) []sourcing.DataSource {
	out := make([]sourcing.DataSource, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		out = append(out, sourcing.DataSource{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     sourcing.SourceKind(s.Kind),
			Subkind:  sourcing.InternalKind(s.Subkind),
			Keywords: s.Keywords,
		})
	}
	return out
}

func catalogDimensions(cfg config.SearchConfig) []sourcing.Dimension {
	if len(cfg.Dimensions) == 0 {
		return sourcing.DefaultDimensions()
	}
	out := make([]sourcing.Dimension, 0, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		out = append(out, sourcing.Dimension{ID: d.ID, Name: d.Name, Keywords: d.Keywords})
	}
	return out
}

// selectSources resolves the requested IDs against the catalog, keeping the
// selection order. Unknown IDs and duplicates are dropped; an empty ID list
// selects the full catalog.
func selectSources(cfg config.SearchConfig, ids []string) []sourcing.DataSource {
	all := catalogSources(cfg)
	if len(ids) == 0 {
		return all
	}
	byID := make(map[string]sourcing.DataSource, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	var out []sourcing.DataSource
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok && !seen[id] {
			out = append(out, s)
			seen[id] = true
		}
	}
	return out
}

func selectDimensions(cfg config.SearchConfig, ids []string) []sourcing.Dimension {
	all := catalogDimensions(cfg)
	if len(ids) == 0 {
		return all
	}
	byID := make(map[string]sourcing.Dimension, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}
	var out []sourcing.Dimension
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok && !seen[id] {
			out = append(out, d)
			seen[id] = true
		}
	}
	return out
}
