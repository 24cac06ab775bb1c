// Package mcpserver exposes the copilot backend as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"log"

	"github.com/jwulff/copilot/internal/chat"
	"github.com/jwulff/copilot/internal/db"
	"github.com/jwulff/copilot/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SessionFetcher reports the current login.
type SessionFetcher interface {
	Fetch(ctx context.Context) session.Session
}

// History reads archived conversations.
type History interface {
	Conversations(limit int) ([]db.Conversation, error)
	Turns(conversationID string) ([]db.Turn, error)
}

// Bridge holds the dependencies the tools call into.
type Bridge struct {
	Chat     *chat.Controller
	Sessions SessionFetcher
	History  History // nil disables the history tool
}

// New builds an MCP server with every tool registered.
func New(b *Bridge, version string) *server.MCPServer {
	s := server.NewMCPServer("copilot", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Ask the research assistant a question about the uploaded documents"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to ask")),
	), b.handleAsk)

	s.AddTool(mcp.NewTool("upload",
		mcp.WithDescription("Upload local files (pdf, txt, images) for the assistant to ingest"),
		mcp.WithArray("paths", mcp.Required(),
			mcp.Description("Absolute paths of the files to upload"),
			mcp.Items(map[string]any{"type": "string"})),
	), b.handleUpload)

	s.AddTool(mcp.NewTool("whoami",
		mcp.WithDescription("Report which account the backend session belongs to"),
	), b.handleWhoami)

	if b.History != nil {
		s.AddTool(mcp.NewTool("history",
			mcp.WithDescription("List archived conversations, or show one conversation's turns"),
			mcp.WithString("conversation_id", mcp.Description("Conversation to show; omit to list")),
			mcp.WithNumber("limit", mcp.Description("Maximum conversations to list (default 20)")),
		), b.handleHistory)
	}

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(b *Bridge, version string) error {
	log.Println("[MCP]: serving on stdio")
	return server.ServeStdio(New(b, version))
}

func (b *Bridge) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q, ok := b.Chat.Begin(query)
	if !ok {
		return mcp.NewToolResultError("query must not be empty"), nil
	}
	reply := b.Chat.Ask(ctx, q)
	b.Chat.Complete(reply)
	if reply.Err != nil {
		return mcp.NewToolResultError(reply.Text()), nil
	}
	return mcp.NewToolResultText(reply.Text()), nil
}

func (b *Bridge) handleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := req.GetStringSlice("paths", nil)
	return mcp.NewToolResultText(b.Chat.Upload(ctx, paths)), nil
}

func (b *Bridge) handleWhoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s := b.Sessions.Fetch(ctx)
	if !s.Authenticated() {
		return mcp.NewToolResultText("Not logged in"), nil
	}
	return mcp.NewToolResultText(s.Banner()), nil
}

func (b *Bridge) handleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("conversation_id", ""); id != "" {
		turns, err := b.History.Turns(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read conversation: %v", err)), nil
		}
		return mcp.NewToolResultText(chat.FormatTurns(turns)), nil
	}

	convs, err := b.History.Conversations(req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list conversations: %v", err)), nil
	}
	return mcp.NewToolResultText(chat.FormatConversations(convs)), nil
}
