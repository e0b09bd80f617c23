// Package httpapi implements the HTTP API gateway for Sanduku.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Per-client rate limiting via token bucket
//   - Request body size limits (default 1 MB)
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/sanduku/internal/fileops"
	"github.com/jkaninda/sanduku/internal/gateway"
	"github.com/jkaninda/sanduku/internal/gitops"
	"github.com/jkaninda/sanduku/internal/history"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/ratelimit"
	"github.com/jkaninda/sanduku/internal/runner"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// FileService is the confined file surface the gateway exposes.
type FileService interface {
	Read(path string) (string, error)
	Write(path, content string, overwrite bool) fileops.WriteResult
	List(path string, recursive bool) ([]string, error)
}

// TestRunner executes confined test runs.
type TestRunner interface {
	Run(ctx context.Context, testPaths []string) runner.Result
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → client name. Empty = unauthenticated.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.
	RunnerImage    string            // Reported in run records.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	files   FileService
	runs    TestRunner
	git     *gitops.Service // nil = git endpoints disabled.
	store   *history.Store  // nil = history endpoints disabled.
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server
	okapi   *okapi.Okapi
	group   *okapi.Group
}

var _ gateway.Gateway = (*Gateway)(nil)

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, files FileService, runs TestRunner, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		files:   files,
		runs:    runs,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithGit attaches version-control endpoints to the gateway.
func (g *Gateway) WithGit(svc *gitops.Service) *Gateway {
	g.git = svc
	return g
}

// WithHistory attaches run-history endpoints to the gateway.
func (g *Gateway) WithHistory(store *history.Store) *Gateway {
	g.store = store
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Sanduku",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	// Test run endpoints.
	g.group.Post("/runs", g.handleRunSubmit,
		okapi.DocSummary("Run tests in an isolated container"),
		okapi.DocTags("Runs"),
		okapi.DocRequestBody(RunRequest{}),
		okapi.DocResponse(RunResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	if g.store != nil {
		g.group.Get("/runs", g.handleRunList,
			okapi.DocSummary("List recent test runs"),
			okapi.DocTags("Runs"),
			okapi.DocResponse([]history.RunRecord{}),
		)
		g.group.Get("/runs/{id}", g.handleRunGet,
			okapi.DocSummary("Get a test run by ID"),
			okapi.DocTags("Runs"),
			okapi.DocPathParam("id", "string", "Run ID (UUID)"),
			okapi.DocResponse(history.RunRecord{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		)
	}

	// File endpoints.
	g.group.Get("/files", g.handleFileRead,
		okapi.DocSummary("Read a file inside the project root"),
		okapi.DocTags("Files"),
		okapi.DocResponse(FileReadResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/files", g.handleFileWrite,
		okapi.DocSummary("Write a file inside the project root"),
		okapi.DocTags("Files"),
		okapi.DocRequestBody(FileWriteRequest{}),
		okapi.DocResponse(fileops.WriteResult{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/ls", g.handleList,
		okapi.DocSummary("List a directory inside the project root"),
		okapi.DocTags("Files"),
		okapi.DocResponse(ListResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Version control endpoints (only if git service is configured).
	if g.git != nil {
		g.group.Post("/git/init", g.handleGitInit,
			okapi.DocSummary("Initialize a git repository in the project root"),
			okapi.DocTags("Git"),
			okapi.DocResponse(gitops.Result{}),
		)
		g.group.Post("/git/add", g.handleGitAdd,
			okapi.DocSummary("Stage files in the project repository"),
			okapi.DocTags("Git"),
			okapi.DocRequestBody(GitAddRequest{}),
			okapi.DocResponse(gitops.Result{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
		g.group.Post("/git/commit", g.handleGitCommit,
			okapi.DocSummary("Commit staged changes"),
			okapi.DocTags("Git"),
			okapi.DocRequestBody(GitCommitRequest{}),
			okapi.DocResponse(gitops.Result{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // Runs are synchronous and can be slow.
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// HealthResponse is the JSON response for liveness probes.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key against the configured set and stores
// the mapped client name on the context. When no keys are configured the
// gateway is open, intended for loopback-only deployments.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("clientID", "anonymous")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		clientID := ""
		for key, name := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				clientID = name
			}
		}
		if clientID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("clientID", clientID)
		return next(c)
	}
}

// rateLimit consumes one token for the calling client.
func (g *Gateway) rateLimit(c *okapi.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Allow(c.GetString("clientID"))
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
