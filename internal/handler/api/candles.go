// Package api exposes the HTTP read surface over stored footprint candles.
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"orderflow/internal/domain/models"
	"orderflow/internal/usecase"
	xhttp "orderflow/pkg/http"
	xlogger "orderflow/pkg/logger"
)

// CandlesHandler implements Echo-based HTTP handlers over the candle service.
type CandlesHandler struct {
	logger  *xlogger.Logger
	candles *usecase.CandleService
}

func NewCandlesHandler(logger *xlogger.Logger, candles *usecase.CandleService) *CandlesHandler {
	return &CandlesHandler{logger: logger, candles: candles}
}

func (h *CandlesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/candles", h.Candles)
	g.GET("/candles/latest", h.Latest)
	g.GET("/candles/range", h.Range)
	g.GET("/candles/gaps", h.Gaps)
	e.GET("/healthz", h.Health)
}

type candlesRequest struct {
	Exchange string `query:"exchange" validate:"required"`
	Symbol   string `query:"symbol" validate:"required"`
	Interval string `query:"interval" default:"1m"`
	Start    string `query:"start"`
	End      string `query:"end"`
}

func (h *CandlesHandler) Candles(c echo.Context) error {
	req := &candlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	start := xhttp.ParseTimeDefault(req.Start, time.Time{})
	end := xhttp.ParseTimeDefault(req.End, time.Time{})

	candles, err := h.candles.Candles(c.Request().Context(), req.Exchange, req.Symbol, models.Interval(req.Interval), start, end)
	if err != nil {
		h.logger.Error("candles query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, candles, int64(len(candles)))
}

type latestRequest struct {
	Exchange string `query:"exchange" validate:"required"`
	Symbol   string `query:"symbol" validate:"required"`
	Interval string `query:"interval" default:"1m"`
}

func (h *CandlesHandler) Latest(c echo.Context) error {
	req := &latestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	candle, err := h.candles.Latest(c.Request().Context(), req.Exchange, req.Symbol, models.Interval(req.Interval))
	if err != nil {
		h.logger.Error("latest candle query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if candle == nil {
		return xhttp.NotFoundResponse(c, "no candles for series")
	}
	return xhttp.SuccessResponse(c, candle)
}

type rangeRequest struct {
	Exchange string `query:"exchange" validate:"required"`
	Symbol   string `query:"symbol" validate:"required"`
}

func (h *CandlesHandler) Range(c echo.Context) error {
	req := &rangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ranges, err := h.candles.Range(c.Request().Context(), req.Exchange, req.Symbol)
	if err != nil {
		h.logger.Error("range query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, ranges)
}

type gapsRequest struct {
	Exchange    string `query:"exchange" validate:"required"`
	Symbol      string `query:"symbol" validate:"required"`
	Interval    string `query:"interval" default:"1m"`
	ThresholdMs int64  `query:"threshold_ms" default:"60000" validate:"gt=0"`
}

func (h *CandlesHandler) Gaps(c echo.Context) error {
	req := &gapsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	gaps, err := h.candles.Gaps(c.Request().Context(), req.Exchange, req.Symbol,
		models.Interval(req.Interval), time.Duration(req.ThresholdMs)*time.Millisecond)
	if err != nil {
		h.logger.Error("gaps query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, gaps, int64(len(gaps)))
}

func (h *CandlesHandler) Health(c echo.Context) error {
	if err := h.candles.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
