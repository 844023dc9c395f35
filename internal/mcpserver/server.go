package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Riftpay tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("riftpay", "1.0.0")
	client := NewRiftpayClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCheckWallet, h.HandleCheckWallet)
	s.AddTool(ToolCreateRift, h.HandleCreateRift)
	s.AddTool(ToolGetRift, h.HandleGetRift)
	s.AddTool(ToolListRifts, h.HandleListRifts)
	s.AddTool(ToolAdvanceRift, h.HandleAdvanceRift)
	s.AddTool(ToolReleaseFunds, h.HandleReleaseFunds)
	s.AddTool(ToolOpenDispute, h.HandleOpenDispute)
	s.AddTool(ToolRiftTimeline, h.HandleRiftTimeline)
	s.AddTool(ToolWithdraw, h.HandleWithdraw)
	s.AddTool(ToolPlatformInfo, h.HandlePlatformInfo)

	return s
}
