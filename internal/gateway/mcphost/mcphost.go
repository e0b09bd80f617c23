// Package mcphost exposes Sanduku's confined tools over the Model Context
// Protocol so coding agents can call them via stdio.
//
// Result conventions follow the tool contract, not Go error values:
// read_file renders failures as "Error: ..." text, write_file and the git
// tools render {"status","message"} JSON, and run_tests always renders a
// classified result object. Handlers never return a protocol-level error
// for a rejected input.
package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/sanduku/internal/fileops"
	"github.com/jkaninda/sanduku/internal/gitops"
	"github.com/jkaninda/sanduku/internal/pathguard"
	"github.com/jkaninda/sanduku/internal/runner"
)

// FileService is the confined file surface exposed as MCP tools.
type FileService interface {
	Read(path string) (string, error)
	Write(path, content string, overwrite bool) fileops.WriteResult
	List(path string, recursive bool) ([]string, error)
}

// TestRunner executes confined test runs.
type TestRunner interface {
	Run(ctx context.Context, testPaths []string) runner.Result
}

// Host wires the tool surface into an MCP server.
type Host struct {
	files  FileService
	runs   TestRunner
	git    *gitops.Service // nil = git tools not registered.
	logger *slog.Logger
	server *server.MCPServer
}

// New creates a Host with the file and runner tools registered.
func New(files FileService, runs TestRunner, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		files:  files,
		runs:   runs,
		logger: logger,
		server: server.NewMCPServer("sanduku", "0.1.0"),
	}
	h.registerFileTools()
	h.registerRunnerTool()
	return h
}

// WithGit registers the version-control tools.
func (h *Host) WithGit(svc *gitops.Service) *Host {
	h.git = svc
	h.registerGitTools()
	return h
}

// ServeStdio serves MCP over stdin/stdout until the stream closes.
func (h *Host) ServeStdio() error {
	h.logger.Info("mcp server starting on stdio")
	return server.ServeStdio(h.server)
}

func (h *Host) registerFileTools() {
	h.server.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the content of a file inside the project root. Relative paths only."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file within the project.")),
	), h.handleReadFile)

	h.server.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Write content to a file inside the project root, creating parent directories as needed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file within the project.")),
		mcp.WithString("content", mcp.Required(), mcp.Description("The content to write.")),
		mcp.WithBoolean("overwrite", mcp.Description("Overwrite an existing file. Defaults to false.")),
	), h.handleWriteFile)

	h.server.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List files and directories inside the project root."),
		mcp.WithString("path", mcp.Description("Relative path to the directory. Defaults to the project root.")),
		mcp.WithBoolean("recursive", mcp.Description("List contents recursively. Defaults to false.")),
	), h.handleListDirectory)
}

func (h *Host) registerRunnerTool() {
	h.server.AddTool(mcp.NewTool("run_tests",
		mcp.WithDescription("Run tests inside an isolated container with no network access. "+
			"Returns a classified result: PASS, FAIL, or ERROR."),
		mcp.WithArray("test_paths", mcp.Required(),
			mcp.Description("Relative paths to test files or directories within the project."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), h.handleRunTests)
}

func (h *Host) registerGitTools() {
	h.server.AddTool(mcp.NewTool("git_init",
		mcp.WithDescription("Initialize a git repository in the project root if one does not exist."),
	), h.handleGitInit)

	h.server.AddTool(mcp.NewTool("git_add",
		mcp.WithDescription("Stage files in the project repository. Relative paths only."),
		mcp.WithArray("paths", mcp.Required(),
			mcp.Description("Relative paths to stage. Use \".\" to stage everything."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), h.handleGitAdd)

	h.server.AddTool(mcp.NewTool("git_commit",
		mcp.WithDescription("Commit staged changes in the project repository."),
		mcp.WithString("commit_message", mcp.Required(), mcp.Description("The commit message.")),
	), h.handleGitCommit)
}

// --- Handlers ---

func (h *Host) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultText("Error: path is required"), nil
	}

	content, err := h.files.Read(path)
	if err != nil {
		return mcp.NewToolResultText(readErrorText(path, err)), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (h *Host) handleWriteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return statusResult(fileops.WriteResult{Status: fileops.WriteFailure, Message: "path is required"})
	}
	content, err := req.RequireString("content")
	if err != nil {
		return statusResult(fileops.WriteResult{Status: fileops.WriteFailure, Message: "content is required"})
	}
	overwrite := req.GetBool("overwrite", false)

	h.logger.InfoContext(ctx, "mcp write_file",
		slog.String("path", path),
		slog.Bool("overwrite", overwrite),
	)
	return statusResult(h.files.Write(path, content, overwrite))
}

func (h *Host) handleListDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", ".")
	recursive := req.GetBool("recursive", false)

	entries, err := h.files.List(path, recursive)
	if err != nil {
		return statusResult(map[string]string{
			"status":  "failure",
			"message": listErrorMessage(path, err),
		})
	}
	if entries == nil {
		entries = []string{}
	}
	return statusResult(entries)
}

func (h *Host) handleRunTests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := req.GetStringSlice("test_paths", nil)

	h.logger.InfoContext(ctx, "mcp run_tests", slog.Int("test_paths", len(paths)))

	result := h.runs.Run(ctx, paths)
	return statusResult(result)
}

func (h *Host) handleGitInit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return statusResult(h.git.Init(ctx))
}

func (h *Host) handleGitAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := req.GetStringSlice("paths", nil)
	return statusResult(h.git.Add(ctx, paths))
}

func (h *Host) handleGitCommit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("commit_message")
	if err != nil {
		return statusResult(gitops.Result{Status: gitops.StatusFailure, Message: "commit message cannot be empty"})
	}
	return statusResult(h.git.Commit(ctx, message))
}

// --- Rendering ---

// readErrorText renders read failures in the "Error: ..." text convention.
func readErrorText(path string, err error) string {
	switch {
	case errors.Is(err, pathguard.ErrUnsafePath):
		return fmt.Sprintf("Error: invalid or unsafe path specified: %s", path)
	case errors.Is(err, fileops.ErrNotFound):
		return fmt.Sprintf("Error: file not found: %s", path)
	case errors.Is(err, fileops.ErrPermissionDenied):
		return fmt.Sprintf("Error: permission denied when reading file: %s", path)
	default:
		return fmt.Sprintf("Error: an unexpected error occurred while reading file %q: %v", path, err)
	}
}

// listErrorMessage renders list failures in the status/message convention.
func listErrorMessage(path string, err error) string {
	switch {
	case errors.Is(err, pathguard.ErrUnsafePath):
		return fmt.Sprintf("invalid or unsafe path specified: %s", path)
	case errors.Is(err, fileops.ErrNotDirectory):
		return fmt.Sprintf("path is not a directory: %s", path)
	case errors.Is(err, fileops.ErrPermissionDenied):
		return fmt.Sprintf("permission denied when listing directory: %s", path)
	default:
		return fmt.Sprintf("an unexpected error occurred listing directory %q: %v", path, err)
	}
}

// statusResult serializes a payload to JSON text content.
func statusResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
