package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/stats"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	Storage          string `json:"storage"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(c echo.Context) error {
	storage := "disabled"
	if s.store != nil {
		storage = "ok"
		if err := s.store.Ping(c.Request().Context()); err != nil {
			// Mirror writes are best effort, so the service stays healthy
			storage = "unavailable"
		}
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: s.registry.Len(),
		Storage:          storage,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleListExperiments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"experiments": s.registry.List(),
	})
}

// CreateExperimentRequest is the body of POST /api/experiments. Config
// fields only apply when the experiment does not exist yet.
type CreateExperimentRequest struct {
	ID string `json:"id"`
	experiment.Config
}

func (s *Server) handleCreateExperiment(c echo.Context) error {
	var req CreateExperimentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	if err := req.Config.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	exp := s.registry.GetOrCreate(req.ID, &req.Config)
	return c.JSON(http.StatusOK, exp)
}

func (s *Server) handleGetExperiment(c echo.Context) error {
	exp, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Experiment not found")
	}
	return c.JSON(http.StatusOK, exp)
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// handleUpdateStatus answers 204 for unknown experiments too; the update is
// simply ignored.
func (s *Server) handleUpdateStatus(c echo.Context) error {
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}

	status, err := experiment.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.registry.UpdateStatus(c.Param("id"), status)
	return c.NoContent(http.StatusNoContent)
}

type VariantResponse struct {
	ExperimentID string             `json:"experiment_id"`
	UserID       string             `json:"user_id"`
	Variant      experiment.Variant `json:"variant"`
}

func (s *Server) handleGetVariant(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id parameter required")
	}

	id := c.Param("id")
	variant := s.engine.GetVariant(c.Request().Context(), id, userID)

	return c.JSON(http.StatusOK, VariantResponse{
		ExperimentID: id,
		UserID:       userID,
		Variant:      variant,
	})
}

type ConversionRequest struct {
	UserID     string         `json:"user_id"`
	Variant    string         `json:"variant"`
	EventType  string         `json:"event_type,omitempty"`
	EventValue *float64       `json:"event_value,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ConversionResponse struct {
	ID          string    `json:"id"`
	ConvertedAt time.Time `json:"converted_at"`
}

func (s *Server) handleTrackConversion(c echo.Context) error {
	var req ConversionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}

	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	variant, err := experiment.ParseVariant(req.Variant)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conv := s.ledger.TrackConversion(c.Param("id"), req.UserID, variant, experiment.Event{
		EventType: req.EventType,
		Value:     req.EventValue,
		Metadata:  req.Metadata,
	})

	return c.JSON(http.StatusAccepted, ConversionResponse{ID: conv.ID, ConvertedAt: conv.ConvertedAt})
}

func (s *Server) handleListConversions(c echo.Context) error {
	conversions := s.ledger.Conversions(c.Param("id"))
	if conversions == nil {
		conversions = []experiment.Conversion{}
	}
	return c.JSON(http.StatusOK, map[string]any{"conversions": conversions})
}

type ResultsResponse struct {
	experiment.Results
	Analysis *stats.Analysis `json:"analysis"`
}

func (s *Server) handleResults(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.registry.Lookup(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Experiment not found")
	}

	res, err := s.ledger.Results(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to compute results").SetInternal(err)
	}

	return c.JSON(http.StatusOK, ResultsResponse{
		Results:  res,
		Analysis: stats.Analyze(res),
	})
}
