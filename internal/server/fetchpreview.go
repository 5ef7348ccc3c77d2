package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/procurelab/bidwise/internal/fetch"
	"github.com/procurelab/bidwise/internal/sourcing"
)

// FetchHandler renders a cited web page headlessly and returns its readable
// content, so buyers can inspect a citation without leaving the app.
type FetchHandler struct {
	Fetcher fetch.Fetcher
	Enabled bool
}

func (h *FetchHandler) Register(g *echo.Group) {
	g.POST("/preview", h.preview)
}

// Preview
//
//	@Summary	Fetch a readable preview of a cited page
//	@Tags		fetch
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		FetchPreviewRequest	true	"Page URL"
//	@Success	200		{object}	fetch.Preview
//	@Failure	400		{object}	HTTPError
//	@Failure	502		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/fetch/preview [post]
func (h *FetchHandler) preview(c echo.Context) error {
	if !h.Enabled {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "page preview disabled")
	}
	var req FetchPreviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url required")
	}
	// Internal references point at structured data, not navigable pages.
	if strings.HasPrefix(url, sourcing.InternalScheme) {
		return echo.NewHTTPError(http.StatusBadRequest, "internal references have no page preview")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return echo.NewHTTPError(http.StatusBadRequest, "only http(s) urls supported")
	}

	preview, err := h.Fetcher.Fetch(c.Request().Context(), url)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, preview)
}
