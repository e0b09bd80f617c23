package httpapi

import (
	"log/slog"

	"github.com/jkaninda/okapi"
)

// GitAddRequest is the JSON body for POST /v1/git/add.
type GitAddRequest struct {
	Paths []string `json:"paths"`
}

// GitCommitRequest is the JSON body for POST /v1/git/commit.
type GitCommitRequest struct {
	Message string `json:"message"`
}

func (g *Gateway) handleGitInit(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}
	return c.OK(g.git.Init(c.Context()))
}

func (g *Gateway) handleGitAdd(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req GitAddRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	return c.OK(g.git.Add(c.Context(), req.Paths))
}

func (g *Gateway) handleGitCommit(c *okapi.Context) error {
	if err := g.rateLimit(c); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req GitCommitRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	g.logger.Info("http git commit",
		slog.String("client_id", c.GetString("clientID")),
	)
	return c.OK(g.git.Commit(c.Context(), req.Message))
}
