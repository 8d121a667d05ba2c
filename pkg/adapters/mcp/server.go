// Package mcp exposes the Orchestrator as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/internal/presentation/graph"
	switchboardhttp "github.com/aretw0/switchboard/pkg/adapters/http"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Resource URIs.
const (
	GraphURI        = "switchboard://graph"
	GraphMermaidURI = "switchboard://graph.mmd"
)

// Orchestrator is the part of *switchboard.Orchestrator the server needs.
type Orchestrator = switchboardhttp.Orchestrator

// Server wraps the Orchestrator and exposes it as an MCP Server.
type Server struct {
	orc       Orchestrator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(orc Orchestrator, opts ...Option) *Server {
	s := &Server{
		orc:    orc,
		logger: logging.NewNop(),
		mcpServer: server.NewMCPServer("switchboard-mcp", strings.TrimSpace(switchboard.Version),
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, true),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message as a user and get the reply of the agent graph."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Stable user id, e.g. a phone number")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's message")),
	), s.handleSendMessage)

	s.mcpServer.AddTool(mcp.NewTool("inspect_session",
		mcp.WithDescription("Return the stored conversation state of a user."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User id")),
	), s.handleInspect)

	s.mcpServer.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Forget a user. Their next message starts a fresh conversation."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User id")),
	), s.handleReset)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Describe the agent graph: nodes, allowed handoffs, default and error edges."),
		mcp.WithString("format", mcp.Description("json (default) or mermaid")),
	), s.handleGetGraph)
}

func (s *Server) handleSendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := strings.TrimSpace(req.GetString("user_id", ""))
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}
	input := req.GetString("message", "")
	msg, err := runner.SanitizeInput(input)
	if err != nil {
		s.logger.Warn("MCP send_message: input rejected", "err", err, "size", len(input))
		return mcp.NewToolResultError(fmt.Sprintf("input rejected: %v", err)), nil
	}

	reply, err := s.orc.Turn(ctx, userID, msg)
	if err != nil {
		s.logger.Error("MCP send_message: turn failed", "user_id", userID, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}
	return jsonResult(reply)
}

func (s *Server) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}
	st, err := s.orc.Inspect(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", userID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	return jsonResult(st)
}

func (s *Server) handleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}
	if err := s.orc.Reset(ctx, userID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("session %q reset", userID)), nil
}

func (s *Server) handleGetGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch req.GetString("format", "json") {
	case "mermaid":
		return mcp.NewToolResultText(graph.GenerateMermaid(s.orc.Graph(), nil)), nil
	case "json", "":
		return jsonResult(switchboardhttp.DescribeGraph(s.orc.Graph()))
	default:
		return mcp.NewToolResultError("'format' must be json or mermaid"), nil
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Agent Graph",
		mcp.WithResourceDescription("Nodes and edges of the agent graph"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(switchboardhttp.DescribeGraph(s.orc.Graph()))
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: GraphURI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource(GraphMermaidURI, "Agent Graph (Mermaid)",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: GraphMermaidURI, MIMEType: "text/plain", Text: graph.GenerateMermaid(s.orc.Graph(), nil)},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
