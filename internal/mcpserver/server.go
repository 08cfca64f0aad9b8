// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes vault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vaultd/internal/index"
	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/noteservice"
)

const (
	noteFormatURI     = "vaultd://note-format"
	noteChangedMethod = "core.note_changed"
)

// Server wraps the MCP server with vault tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *noteservice.Service
	logger *slog.Logger
}

// New creates a new MCP server with all vault tools registered.
func New(svc *noteservice.Service, logger *slog.Logger) *Server {
	s := &Server{svc: svc, logger: logger}

	s.mcp = server.NewMCPServer(
		"vaultd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Rebuild the index from every note in the vault."),
	), s.reindex)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally filtered. All given filters must match."),
		mcp.WithString("status", mcp.Description("One of Open, InProgress, Done, Blocked")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; a task must carry all of them")),
		mcp.WithString("text_search", mcp.Description("Case-insensitive substring of title or description")),
		mcp.WithString("touched_since", mcp.Description("YYYY-MM-DD; tasks updated or closed on or after this day")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("task_detail",
		mcp.WithDescription("Return a task with its mentions and the log entries that reference it."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id, e.g. T-2025-001")),
	), s.taskDetail)

	s.mcp.AddTool(mcp.NewTool("items_for_tag",
		mcp.WithDescription("Return every task and log entry carrying the tag."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag without the leading #")),
	), s.itemsForTag)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every known tag."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("notes_in_range",
		mcp.WithDescription("List dated notes within an inclusive date range."),
		mcp.WithString("start", mcp.Required(), mcp.Description("YYYY-MM-DD")),
		mcp.WithString("end", mcp.Required(), mcp.Description("YYYY-MM-DD")),
	), s.notesInRange)

	s.mcp.AddTool(mcp.NewTool("weekly_summary",
		mcp.WithDescription("Summarize new tasks, completed tasks, notes and top tags within a date range."),
		mcp.WithString("start", mcp.Required(), mcp.Description("YYYY-MM-DD")),
		mcp.WithString("end", mcp.Required(), mcp.Description("YYYY-MM-DD")),
	), s.weeklySummary)

	s.mcp.AddTool(mcp.NewTool("open_daily",
		mcp.WithDescription("Return the daily note for a date, creating it from the template if needed."),
		mcp.WithString("date", mcp.Required(), mcp.Description("YYYY-MM-DD")),
	), s.openDaily)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Vault-relative path of the note (e.g. daily/2025-03-15.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("write_note",
		mcp.WithDescription("Replace the content of an existing note. "+
			"Content MUST follow the note format contract. Read it first via "+
			"the get_note_contract tool or the "+noteFormatURI+" resource."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Vault-relative path of an indexed note")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full Markdown content")),
		mcp.WithString("if_match", mcp.Description("Checksum the note must still have for the write to apply")),
	), s.writeNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format contract. "+
			"Call this before writing notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown note format recognized by the indexer."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// Serve runs the MCP protocol over in/out until in closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp: serving")
	return stdio.Listen(ctx, in, out)
}

// NotifyChange tells connected clients that a note changed on disk.
func (s *Server) NotifyChange(kind index.ChangeKind, id models.NoteID) {
	s.mcp.SendNotificationToAllClients(noteChangedMethod, map[string]any{
		"kind":    string(kind),
		"note_id": string(id),
	})
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func parseRange(req mcp.CallToolRequest) (models.DateRange, error) {
	rawStart, err := req.RequireString("start")
	if err != nil {
		return models.DateRange{}, err
	}
	rawEnd, err := req.RequireString("end")
	if err != nil {
		return models.DateRange{}, err
	}
	start, err := models.ParseDate(rawStart)
	if err != nil {
		return models.DateRange{}, err
	}
	end, err := models.ParseDate(rawEnd)
	if err != nil {
		return models.DateRange{}, err
	}
	return models.DateRange{Start: start, End: end}, nil
}

func (s *Server) reindex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.ReindexAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter models.TaskFilter

	if raw := req.GetString("status", ""); raw != "" {
		st, err := models.ParseTaskStatus(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Status = &st
	}
	for _, tag := range strings.Split(req.GetString("tags", ""), ",") {
		if tag = strings.TrimPrefix(strings.TrimSpace(tag), "#"); tag != "" {
			filter.Tags = append(filter.Tags, tag)
		}
	}
	if text := req.GetString("text_search", ""); text != "" {
		filter.TextSearch = &text
	}
	if raw := req.GetString("touched_since", ""); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.TouchedSince = &d
	}

	return jsonResult(s.svc.ListTasks(ctx, filter))
}

func (s *Server) taskDetail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.TaskDetail(ctx, models.TaskID(id))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (s *Server) itemsForTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.ItemsForTag(ctx, strings.TrimPrefix(tag, "#")))
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags := s.svc.ListTags(ctx)
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	return mcp.NewToolResultText(strings.Join(tags, "\n")), nil
}

func (s *Server) notesInRange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := parseRange(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.NotesInRange(ctx, r))
}

func (s *Server) weeklySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := parseRange(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.WeeklySummary(ctx, r))
}

func (s *Server) openDaily(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.OpenDaily(ctx, d)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.ReadNote(ctx, models.NoteID(id))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) writeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.WriteNote(ctx, models.NoteID(id), content, req.GetString("if_match", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %s (checksum %s)", note.ID, note.Checksum)), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
