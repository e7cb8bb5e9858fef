// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Local Native tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/localnative/localnative/internal/command"
	"github.com/localnative/localnative/internal/notes"
	"github.com/localnative/localnative/internal/store"
)

const referenceURI = "localnative://commands"

// Server wraps the MCP server with Local Native tools.
type Server struct {
	mcp    *server.MCPServer
	engine *command.Engine
	notes  *notes.Service
}

// New creates a new MCP server with all Local Native tools registered.
func New(engine *command.Engine) *Server {
	s := &Server{engine: engine, notes: engine.Notes()}

	s.mcp = server.NewMCPServer(
		"Local Native",
		store.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by whitespace-separated terms. Every term must match "+
			"title, url, tags or description. Optional from/to (YYYY-MM-DD) narrow by day."),
		mcp.WithString("query", mcp.Description("Search terms (empty lists everything)")),
		mcp.WithString("from", mcp.Description("First day to include, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Last day to include, YYYY-MM-DD")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 10)")),
		mcp.WithNumber("offset", mcp.Description("Page offset (default 0)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read a single note by its uuid4."),
		mcp.WithString("uuid4", mcp.Required(), mcp.Description("Note identity")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("insert_note",
		mcp.WithDescription("Capture a new bookmark note. Tags are normalized and deduplicated."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Page title")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithString("tags", mcp.Description("Comma or space separated tags")),
		mcp.WithString("description", mcp.Description("Short description")),
		mcp.WithString("comments", mcp.Description("Free-form comments")),
		mcp.WithString("annotations", mcp.Description("Text annotations")),
		mcp.WithBoolean("is_public", mcp.Description("Mark the note public")),
	), s.insertNote)

	s.mcp.AddTool(mcp.NewTool("insert_image_note",
		mcp.WithDescription("Capture a note whose annotations are a PNG image. "+
			"The image is a data:image/png;base64 URI or an http(s) URL."),
		mcp.WithString("image", mcp.Required(), mcp.Description("data: URI or http(s) URL of a PNG")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Page title")),
		mcp.WithString("url", mcp.Description("Page URL")),
		mcp.WithString("tags", mcp.Description("Comma or space separated tags")),
		mcp.WithString("description", mcp.Description("Short description")),
		mcp.WithString("comments", mcp.Description("Free-form comments")),
		mcp.WithBoolean("is_public", mcp.Description("Mark the note public")),
	), s.insertImageNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by rowid. Deleting a missing rowid is not an error."),
		mcp.WithNumber("rowid", mcp.Required(), mcp.Description("Row id of the note")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("Tag histogram for notes matching an optional query, most used first."),
		mcp.WithString("query", mcp.Description("Optional search terms")),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("timeline",
		mcp.WithDescription("Per-day note counts for notes matching an optional query."),
		mcp.WithString("query", mcp.Description("Optional search terms")),
	), s.timeline)

	s.mcp.AddTool(mcp.NewTool("sync_via_attach",
		mcp.WithDescription("Merge another Local Native store file into this one in both directions."),
		mcp.WithString("uri", mcp.Required(), mcp.Description("Path of the other localnative.sqlite3")),
	), s.syncViaAttach)

	s.mcp.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Run a raw command envelope, e.g. {\"action\":\"select\",\"limit\":5,\"offset\":0}. "+
			"Read the command reference first via get_command_reference or the "+referenceURI+" resource."),
		mcp.WithString("command", mcp.Required(), mcp.Description("JSON command text")),
	), s.runCommand)

	s.mcp.AddTool(mcp.NewTool("get_command_reference",
		mcp.WithDescription("Returns the Local Native command envelope reference."),
	), s.getCommandReference)

	s.mcp.AddResource(
		mcp.NewResource(referenceURI, "Command Reference",
			mcp.WithResourceDescription("Command envelope, result shape and query rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReferenceResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.notes.Result(ctx, notes.Params{
		Query:  req.GetString("query", ""),
		From:   req.GetString("from", ""),
		To:     req.GetString("to", ""),
		Limit:  int64(req.GetInt("limit", 10)),
		Offset: int64(req.GetInt("offset", 0)),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("uuid4")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.GetByUUID4(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n), nil
}

func (s *Server) insertNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := req.RequireString("title"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := req.RequireString("url"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n := noteFromArgs(req)
	n.Annotations = []byte(req.GetString("annotations", ""))

	created, err := s.notes.Insert(ctx, n)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(created), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rowid, err := req.RequireInt("rowid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.notes.Delete(ctx, int64(rowid)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", rowid)), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.notes.HistogramByTag(ctx, req.GetString("query", ""), "", "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(notes.SortTags(counts)), nil
}

func (s *Server) timeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := s.notes.HistogramByDay(ctx, req.GetString("query", ""), "", "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(days), nil
}

func (s *Server) syncViaAttach(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.notes.SyncViaAttach(ctx, uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) runCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch out := s.engine.Execute(ctx, []byte(text)).(type) {
	case command.ErrorResponse:
		return mcp.NewToolResultError(out.Error), nil
	default:
		return jsonResult(out), nil
	}
}

func (s *Server) getCommandReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CommandReference), nil
}

func (s *Server) readReferenceResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      referenceURI,
			MIMEType: "text/markdown",
			Text:     CommandReference,
		},
	}, nil
}
