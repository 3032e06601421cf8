package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tinyagi/tinyagi/internal/config"
)

// mcpRPCTimeout bounds a single MCP initialize/tool-call round trip
// (spec: "MCP RPC defaults: 30-90 s"). 60 s splits the difference.
const mcpRPCTimeout = 60 * time.Second

// debuggerURLToolName is the tool a browser-channel MCP server is
// expected to expose: given no arguments, it returns the CDP debugger
// URL of a browser session it manages on the caller's behalf.
const debuggerURLToolName = "get_debugger_url"

// connectMCP attaches to a remote browser exposed over an MCP channel
// (spec §4.I "harness.browser.mcp_channel"): a stdio MCP server is
// started for cfg.MCPChannel, asked for its debugger URL via a single
// tool call, then rod attaches to that URL exactly as the CDP path
// does. Grounded on the teacher's internal/mcp/manager_connect.go
// connectServer/createClient handshake (initialize, then one RPC),
// generalized from tool-discovery to a single well-known tool call.
func connectMCP(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	if cfg.MCPChannel == "" {
		return nil, fmt.Errorf("browser mcp provider requested but no mcp_channel configured")
	}

	rpcCtx, cancel := context.WithTimeout(ctx, mcpRPCTimeout)
	defer cancel()

	client, err := mcpclient.NewStdioMCPClient(cfg.MCPChannel, nil)
	if err != nil {
		return nil, fmt.Errorf("start mcp channel %q: %w", cfg.MCPChannel, err)
	}
	defer func() {
		if err != nil {
			_ = client.Close()
		}
	}()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "tinyagi", Version: "1.0.0"}
	if _, err = client.Initialize(rpcCtx, initReq); err != nil {
		return nil, fmt.Errorf("mcp channel %q initialize: %w", cfg.MCPChannel, err)
	}

	callReq := mcpgo.CallToolRequest{}
	callReq.Params.Name = debuggerURLToolName
	result, err := client.CallTool(rpcCtx, callReq)
	if err != nil {
		return nil, fmt.Errorf("mcp channel %q call %s: %w", cfg.MCPChannel, debuggerURLToolName, err)
	}
	debuggerURL, err := mcpTextResult(result)
	if err != nil {
		return nil, fmt.Errorf("mcp channel %q: %w", cfg.MCPChannel, err)
	}

	browser := rod.New().ControlURL(debuggerURL)
	if err = browser.Connect(); err != nil {
		return nil, fmt.Errorf("mcp debugger did not become ready: %w", err)
	}

	return &Session{Browser: browser, DebuggerURL: debuggerURL, mcpClient: client}, nil
}

// mcpTextResult extracts the sole text content block from a tool call
// result, the shape a well-behaved get_debugger_url tool returns.
func mcpTextResult(result *mcpgo.CallToolResult) (string, error) {
	if result == nil || len(result.Content) == 0 {
		return "", fmt.Errorf("empty tool result")
	}
	if tc, ok := mcpgo.AsTextContent(result.Content[0]); ok {
		return tc.Text, nil
	}
	return "", fmt.Errorf("unexpected tool result content type")
}
