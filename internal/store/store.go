package store

import (
	"context"
	"errors"

	"notehub/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert or update violates a unique constraint.
	ErrDuplicate = errors.New("duplicate")
)

type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, username, passwordHash *string) error
}

type NoteStore interface {
	CreateNote(ctx context.Context, n *models.Note) (int64, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	// ListNotes returns every note in insertion order.
	ListNotes(ctx context.Context) ([]models.Note, error)
}

type CommentStore interface {
	// CreateComment checks that the note exists and inserts the comment in
	// one transaction. It returns ErrNotFound for an unknown note.
	CreateComment(ctx context.Context, c *models.Comment) (int64, error)
	GetComments(ctx context.Context, noteID int64) ([]models.Comment, error)
	GetCommentsByNoteIDs(ctx context.Context, noteIDs []int64) (map[int64][]models.Comment, error)
}

// Store defines the interface for all database operations
type Store interface {
	UserStore
	NoteStore
	CommentStore

	Close() error
}
