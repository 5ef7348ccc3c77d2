package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/procurelab/bidwise/internal/search"
	"github.com/procurelab/bidwise/internal/sourcing"
	"github.com/procurelab/bidwise/internal/store"
)

type ConversationsHandler struct {
	Store     *store.Store
	Citations *search.CitationIndex
}

func (h *ConversationsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.rename)
	g.DELETE("/:id", h.remove)
	g.GET("/:id/messages", h.messages)
}

// CreateConversation
//
//	@Summary	Create a conversation
//	@Tags		conversations
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ConversationCreateRequest	true	"Conversation payload"
//	@Success	201		{object}	map[string]string
//	@Failure	400		{object}	HTTPError
//	@Router		/api/conversations [post]
func (h *ConversationsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req ConversationCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	title := req.Title
	if title == "" {
		title = "New sourcing conversation"
	}
	id, err := h.Store.CreateConversation(c.Request().Context(), userID, title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// ListConversations
//
//	@Summary	List conversations
//	@Tags		conversations
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}	store.Conversation
//	@Router		/api/conversations [get]
func (h *ConversationsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	convs, err := h.Store.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	return c.JSON(http.StatusOK, convs)
}

func (h *ConversationsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	conv, err := h.Store.GetConversation(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) rename(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req ConversationRenameRequest
	if err := c.Bind(&req); err != nil || req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	if err := h.Store.RenameConversation(c.Request().Context(), c.Param("id"), userID, req.Title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *ConversationsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	if err := h.Store.DeleteConversation(c.Request().Context(), id, userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Citations != nil {
		h.Citations.Drop(id)
	}
	return c.NoContent(http.StatusOK)
}

// Messages
//
//	@Summary	List conversation messages
//	@Tags		conversations
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}	MessageResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/conversations/{id}/messages [get]
func (h *ConversationsHandler) messages(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	if _, err := h.Store.GetConversation(c.Request().Context(), id, userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	msgs, err := h.Store.ListMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Reasoning: m.Reasoning,
			Status:    m.Status,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
		if len(m.Sources) > 0 {
			_ = json.Unmarshal(m.Sources, &resp.Sources)
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

// transcript converts stored messages to extractor turns.
func transcript(msgs []store.Message) []sourcing.Turn {
	out := make([]sourcing.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, sourcing.Turn{Role: m.Role, Content: m.Content})
	}
	return out
}
