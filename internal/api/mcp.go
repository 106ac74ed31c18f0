package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wpulier/twin/internal/persona"
	"github.com/wpulier/twin/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. It reuses the HTTP
// layer's interfaces so both surfaces share one set of semantics.
type MCPDeps struct {
	Store   *storage.Store
	Replier Replier

	// ContextTurns bounds the history a twin_chat reply is conditioned on.
	ContextTurns int
}

// NewMCPServer exposes twins over MCP: listing, personas, chat, and the
// conversation log. Chat drains the reply stream to completion since MCP
// tool results are not streamed.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"twin",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("twin — digital twins synthesized from a bio and film/music taste. Use list_twins to discover ids."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_twins",
			mcp.WithDescription("List all twins with their ids and names."),
		),
		mcpListTwins(deps),
	)

	s.AddTool(
		mcp.NewTool("get_persona",
			mcp.WithDescription("Return a twin's synthesized persona as JSON."),
			mcp.WithString("twin_id", mcp.Description("Twin id"), mcp.Required()),
		),
		mcpGetPersona(deps),
	)

	s.AddTool(
		mcp.NewTool("twin_chat",
			mcp.WithDescription("Send a message to a twin and return its complete reply. Both turns are recorded in the conversation log."),
			mcp.WithString("twin_id", mcp.Description("Twin id"), mcp.Required()),
			mcp.WithString("message", mcp.Description("Message to send"), mcp.Required()),
		),
		mcpTwinChat(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_turns",
			mcp.WithDescription("Return the most recent conversation turns for a twin."),
			mcp.WithString("twin_id", mcp.Description("Twin id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum turns to return (default 10)")),
		),
		mcpRecentTurns(deps),
	)

	return s
}

func mcpListTwins(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		twins, err := deps.Store.ListTwins()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list twins: %v", err)), nil
		}

		type twinSummary struct {
			ID               string `json:"id"`
			Name             string `json:"name"`
			SpotifyConnected bool   `json:"spotify_connected"`
		}
		summaries := make([]twinSummary, len(twins))
		for i, t := range twins {
			summaries[i] = twinSummary{ID: t.ID, Name: t.Name, SpotifyConnected: t.SpotifyRefreshToken != ""}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal twins: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPersona(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		twinID, err := req.RequireString("twin_id")
		if err != nil {
			return mcpError("twin_id is required"), nil
		}

		twin, err := deps.Store.GetTwin(twinID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("twin not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load twin: %v", err)), nil
		}
		if twin.PersonaJSON == "" {
			return mcpError("twin has no persona yet"), nil
		}
		return mcpText(twin.PersonaJSON), nil
	}
}

func mcpTwinChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		twinID, err := req.RequireString("twin_id")
		if err != nil {
			return mcpError("twin_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		twin, err := deps.Store.GetTwin(twinID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("twin not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load twin: %v", err)), nil
		}

		var p persona.Persona
		if err := json.Unmarshal([]byte(twin.PersonaJSON), &p); err != nil {
			return mcpError(fmt.Sprintf("stored persona is unreadable: %v", err)), nil
		}

		history, err := deps.Store.RecentTurns(twin.ID, deps.ContextTurns)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load history: %v", err)), nil
		}

		reply, err := deps.Replier.Reply(ctx, twin.Name, p, history, message)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to open reply: %v", err)), nil
		}
		defer reply.Close()

		if _, err := deps.Store.AppendTurn(twin.ID, storage.SpeakerUser, message); err != nil {
			return mcpError(fmt.Sprintf("failed to save message: %v", err)), nil
		}

		var streamErr error
		for {
			_, err := reply.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				streamErr = err
				break
			}
		}

		if streamErr != nil && !reply.Received() {
			return mcpError(fmt.Sprintf("reply failed: %v", streamErr)), nil
		}
		if _, err := deps.Store.AppendTurn(twin.ID, storage.SpeakerTwin, reply.Text()); err != nil {
			return mcpError(fmt.Sprintf("reply generated but not saved: %v", err)), nil
		}
		return mcpText(reply.Text()), nil
	}
}

func mcpRecentTurns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		twinID, err := req.RequireString("twin_id")
		if err != nil {
			return mcpError("twin_id is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		turns, err := deps.Store.RecentTurns(twinID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load turns: %v", err)), nil
		}

		out := make([]turnResponse, len(turns))
		for i, t := range turns {
			out[i] = toTurnResponse(t)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal turns: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
