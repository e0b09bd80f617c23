package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/sanduku/internal/history"
	"github.com/jkaninda/sanduku/internal/runner"
)

// RunRequest is the JSON body for POST /v1/runs.
type RunRequest struct {
	TestPaths []string `json:"test_paths"`
}

// RunResponse is the JSON response for POST /v1/runs.
// The result fields mirror the classifier output verbatim.
type RunResponse struct {
	ID            string `json:"id,omitempty"` // Set when history is enabled.
	Status        string `json:"status"`
	Passed        int    `json:"passed"`
	Failed        int    `json:"failed"`
	Errors        int    `json:"errors"`
	Output        string `json:"output"`
	Message       string `json:"message,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	CorrelationID string `json:"correlation_id"`
}

func (g *Gateway) handleRunSubmit(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if len(req.TestPaths) == 0 {
		return c.AbortBadRequest("test_paths is required")
	}

	correlationID := newCorrelationID()
	g.logger.Info("http run submitted",
		slog.String("client_id", c.GetString("clientID")),
		slog.String("correlation_id", correlationID),
		slog.Int("test_paths", len(req.TestPaths)),
	)

	start := time.Now()
	result := g.runs.Run(c.Context(), req.TestPaths)
	duration := time.Since(start)

	resp := RunResponse{
		Status:        string(result.Status),
		Passed:        result.Passed,
		Failed:        result.Failed,
		Errors:        result.Errors,
		Output:        result.Output,
		Message:       result.Message,
		DurationMS:    duration.Milliseconds(),
		CorrelationID: correlationID,
	}

	if g.store != nil {
		rec, err := g.store.Record(c.Context(), req.TestPaths, g.config.RunnerImage, duration, result)
		if err != nil {
			// The run itself succeeded; history is best-effort.
			g.logger.Warn("recording run failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
		} else {
			resp.ID = rec.ID
		}
	}

	return c.OK(resp)
}

func (g *Gateway) handleRunList(c *okapi.Context) error {
	limit := 0
	if raw := c.Request().URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.AbortBadRequest("limit must be a non-negative integer")
		}
		limit = n
	}

	recs, err := g.store.List(c.Context(), limit)
	if err != nil {
		g.logger.Error("listing runs failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing runs failed")
	}
	return c.OK(recs)
}

func (g *Gateway) handleRunGet(c *okapi.Context) error {
	id := c.Param("id")
	rec, err := g.store.Get(c.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "run not found"})
	}
	if err != nil {
		g.logger.Error("loading run failed", slog.String("run_id", id), slog.String("error", err.Error()))
		return c.AbortInternalServerError("loading run failed")
	}
	return c.OK(rec)
}

// Compile-time check that the plain executor satisfies the gateway surface.
var _ TestRunner = (*runner.Executor)(nil)
