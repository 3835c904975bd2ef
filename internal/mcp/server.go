package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"notehub/internal/comments"
	"notehub/internal/models"
	"notehub/internal/notes"
	"notehub/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes the note index as read-only MCP tools. Visibility follows
// the same rules as the web index.
type Server struct {
	users    store.UserStore
	notes    *notes.Repository
	comments *comments.Ledger
}

func NewMCPServer(users store.UserStore, repo *notes.Repository, ledger *comments.Ledger) *Server {
	return &Server{users: users, notes: repo, comments: ledger}
}

func (s *Server) listNotesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, err := request.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError("username is required"), nil
	}
	search := request.GetString("search", "")

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError("user not found"), nil
	} else if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	visible, err := s.notes.ListVisible(ctx, user.ID, search)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if len(visible) == 0 {
		return mcp.NewToolResultText("No notes found."), nil
	}

	var lines []string
	for _, n := range visible {
		lines = append(lines, formatNote(n))
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d notes:\n%s", len(visible), strings.Join(lines, "\n"))), nil
}

func (s *Server) listCommentsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError("note_id is required"), nil
	}
	noteID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid note_id: %v", err)), nil
	}

	if _, err := s.notes.Get(ctx, noteID); errors.Is(err, notes.ErrNoteNotFound) {
		return mcp.NewToolResultError("note not found"), nil
	} else if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	list, err := s.comments.ListForNote(ctx, noteID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No comments on this note."), nil
	}

	var lines []string
	for _, c := range list {
		rating := "unrated"
		if c.Rating != nil {
			rating = fmt.Sprintf("rating %d", *c.Rating)
		}
		lines = append(lines, fmt.Sprintf("[%s] user %d, %s: %s", c.CreatedAt.Format(time.RFC3339), c.UserID, rating, c.Text))
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d comments:\n%s", len(list), strings.Join(lines, "\n"))), nil
}

func formatNote(n models.Note) string {
	shared := "public"
	if len(n.SharedWith) > 0 {
		shared = "shared with " + models.JoinIDList(n.SharedWith)
	}
	return fmt.Sprintf("#%d %s (category %s, tags %q, %s)", n.ID, n.Filename, n.Category, models.JoinTags(n.Tags), shared)
}

// Handler returns the streamable HTTP transport for the tools.
func (s *Server) Handler() *server.StreamableHTTPServer {
	mcpServer := server.NewMCPServer("notehub", "1.0.0")

	listNotes := mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes a user can see. With a search term, every note whose filename, category or tags contain it is returned."),
		mcp.WithString("username", mcp.Required(), mcp.Description("The user to list notes for")),
		mcp.WithString("search", mcp.Description("Optional search term")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	listComments := mcp.NewTool("list_comments",
		mcp.WithDescription("List the comments and ratings on a note, oldest first."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Numeric note id")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	mcpServer.AddTool(listNotes, s.listNotesHandler)
	mcpServer.AddTool(listComments, s.listCommentsHandler)

	return server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true))
}
