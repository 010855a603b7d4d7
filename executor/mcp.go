package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jcqin2022/AIAssistant/tool"
)

const mcpInitTimeout = 10 * time.Second

// MCPClient is the subset of the mcp-go client used to bridge server tools.
type MCPClient interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCPServer describes an MCP server launched over stdio.
type MCPServer struct {
	Name    string   `koanf:"name"`
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	Env     []string `koanf:"env"`
}

// MCPSession is a started MCP client whose tools can be registered as
// capabilities.
type MCPSession struct {
	name   string
	client MCPClient
	closer func() error
}

// NewMCPSession wraps an already initialized client.
func NewMCPSession(name string, c MCPClient) *MCPSession {
	return &MCPSession{name: name, client: c, closer: func() error { return nil }}
}

// ConnectMCP starts the server process and performs the MCP handshake.
func ConnectMCP(ctx context.Context, server MCPServer, clientVersion string) (*MCPSession, error) {
	if server.Command == "" {
		return nil, fmt.Errorf("mcp server %q: command is required", server.Name)
	}

	c, err := client.NewStdioMCPClient(server.Command, server.Env, server.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: %w", server.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp server %q: start: %w", server.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "aiassistant", Version: clientVersion}
	if _, err := c.Initialize(initCtx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp server %q: initialize: %w", server.Name, err)
	}

	return &MCPSession{name: server.Name, client: c, closer: c.Close}, nil
}

// Name returns the configured server name.
func (s *MCPSession) Name() string { return s.name }

// Tools lists the server's tools as capabilities.
func (s *MCPSession) Tools(ctx context.Context) ([]tool.Tool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: list tools: %w", s.name, err)
	}

	tools := make([]tool.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		params, err := mcpSchema(t)
		if err != nil {
			return nil, fmt.Errorf("mcp tool %q: %w", t.Name, err)
		}
		tools = append(tools, &mcpTool{
			name:        t.Name,
			description: t.Description,
			parameters:  params,
			client:      s.client,
		})
	}
	return tools, nil
}

// Close terminates the server connection.
func (s *MCPSession) Close() error { return s.closer() }

type mcpTool struct {
	name        string
	description string
	parameters  map[string]any
	client      MCPClient
}

func (t *mcpTool) Name() string               { return t.name }
func (t *mcpTool) Description() string        { return t.description }
func (t *mcpTool) Parameters() map[string]any { return t.parameters }

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", &tool.ToolError{Tool: t.name, Message: err.Error(), Code: tool.CodeExecution, Details: err}
	}
	if res == nil {
		return "", tool.NewToolError(t.name, "empty result", tool.CodeExecution)
	}

	text := mcpText(res.Content)
	if res.IsError {
		return "", tool.NewToolError(t.name, text, tool.CodeExecution)
	}
	if text == "" && res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", &tool.ToolError{Tool: t.name, Message: err.Error(), Code: tool.CodeDecode, Details: err}
		}
		text = string(raw)
	}
	return text, nil
}

func mcpSchema(t mcp.Tool) (map[string]any, error) {
	var raw []byte
	if t.RawInputSchema != nil {
		raw = t.RawInputSchema
	} else {
		var err error
		if raw, err = json.Marshal(t.InputSchema); err != nil {
			return nil, err
		}
	}

	schema := map[string]any{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	if schema == nil {
		return nil, errors.New("input schema is null")
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"].(map[string]any); !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

func mcpText(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch c := item.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
