package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/sanduku/internal/fileops"
	"github.com/jkaninda/sanduku/internal/pathguard"
)

// FileReadResponse is the JSON response for GET /v1/files.
type FileReadResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileWriteRequest is the JSON body for POST /v1/files.
type FileWriteRequest struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

// ListResponse is the JSON response for GET /v1/ls.
type ListResponse struct {
	Path    string   `json:"path"`
	Entries []string `json:"entries"`
}

func (g *Gateway) handleFileRead(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	path := c.Request().URL.Query().Get("path")
	if path == "" {
		return c.AbortBadRequest("path query parameter is required")
	}

	content, err := g.files.Read(path)
	if err != nil {
		return fileError(c, path, err)
	}
	return c.OK(FileReadResponse{Path: path, Content: content})
}

func (g *Gateway) handleFileWrite(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req FileWriteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Path == "" {
		return c.AbortBadRequest("path is required")
	}

	g.logger.Info("http file write",
		slog.String("client_id", c.GetString("clientID")),
		slog.String("path", req.Path),
		slog.Bool("overwrite", req.Overwrite),
	)

	// The result carries its own status field; failed writes are a normal
	// outcome, not an HTTP error.
	result := g.files.Write(req.Path, req.Content, req.Overwrite)
	return c.OK(result)
}

func (g *Gateway) handleList(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	query := c.Request().URL.Query()
	path := query.Get("path")
	if path == "" {
		path = "."
	}
	recursive := query.Get("recursive") == "true"

	entries, err := g.files.List(path, recursive)
	if err != nil {
		return fileError(c, path, err)
	}
	if entries == nil {
		entries = []string{}
	}
	return c.OK(ListResponse{Path: path, Entries: entries})
}

// fileError maps file operation errors to appropriate HTTP responses.
func fileError(c *okapi.Context, path string, err error) error {
	switch {
	case errors.Is(err, pathguard.ErrUnsafePath):
		return c.JSON(http.StatusBadRequest, okapi.M{"error": "invalid or unsafe path: " + path})
	case errors.Is(err, fileops.ErrNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "file not found: " + path})
	case errors.Is(err, fileops.ErrNotDirectory):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "directory not found: " + path})
	case errors.Is(err, fileops.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, okapi.M{"error": "permission denied: " + path})
	default:
		return c.AbortInternalServerError("file operation failed")
	}
}
