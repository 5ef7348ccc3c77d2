package server

import (
	"net/http"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/store"
)

// WatchesHandler manages recurring price watches on procurement items.
type WatchesHandler struct {
	Store  *store.Store
	Config *config.Config
}

func (h *WatchesHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.DELETE("/:id", h.remove)
	g.GET("/:id/samples", h.samples)
}

// CreatePriceWatch
//
//	@Summary	Create a recurring price watch for an item
//	@Tags		watches
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		PriceWatchCreateRequest	true	"Watch payload"
//	@Success	201		{object}	map[string]string
//	@Failure	400		{object}	HTTPError
//	@Router		/api/watches [post]
func (h *WatchesHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req PriceWatchCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.ItemName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "itemName required")
	}
	cron := req.ScheduleCron
	if cron == "" {
		cron = h.Config.Watch.DefaultCron
		if cron == "" {
			cron = "@daily"
		}
	}
	if cron != "@daily" && cron != "@hourly" {
		if _, err := cronexpr.Parse(cron); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cron expression")
		}
	}
	id, err := h.Store.CreatePriceWatch(c.Request().Context(), userID, req.ItemName, cron)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *WatchesHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	watches, err := h.Store.ListPriceWatches(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if watches == nil {
		watches = []store.PriceWatch{}
	}
	return c.JSON(http.StatusOK, watches)
}

func (h *WatchesHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeletePriceWatch(c.Request().Context(), c.Param("id"), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *WatchesHandler) samples(c echo.Context) error {
	samples, err := h.Store.ListPriceSamples(c.Request().Context(), c.Param("id"), 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if samples == nil {
		samples = []store.PriceSample{}
	}
	return c.JSON(http.StatusOK, samples)
}
