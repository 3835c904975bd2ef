package comments

import (
	"context"
	"errors"
	"strings"

	"notehub/internal/models"
	"notehub/internal/notes"
	"notehub/internal/store"

	"github.com/rs/zerolog"
)

// Ledger records comments on notes. Comments are never edited.
type Ledger struct {
	comments store.CommentStore
	logger   zerolog.Logger
}

func NewLedger(comments store.CommentStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		comments: comments,
		logger:   logger.With().Str("component", "comments").Logger(),
	}
}

// AddComment stores a comment on noteID. The rating is kept as given, with
// no range check.
func (l *Ledger) AddComment(ctx context.Context, noteID, userID int64, text string, rating *int) (*models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.Required("comment_text")
	}

	c := &models.Comment{NoteID: noteID, UserID: userID, Text: text, Rating: rating}
	if _, err := l.comments.CreateComment(ctx, c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notes.ErrNoteNotFound
		}
		return nil, err
	}

	l.logger.Info().Int64("comment_id", c.ID).Int64("note_id", noteID).Int64("user_id", userID).Msg("comment added")
	return c, nil
}

func (l *Ledger) ListForNote(ctx context.Context, noteID int64) ([]models.Comment, error) {
	return l.comments.GetComments(ctx, noteID)
}

// Attach loads comments for every note in one query.
func (l *Ledger) Attach(ctx context.Context, ns []models.Note) error {
	if len(ns) == 0 {
		return nil
	}
	ids := make([]int64, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	byNote, err := l.comments.GetCommentsByNoteIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range ns {
		ns[i].Comments = byNote[ns[i].ID]
	}
	return nil
}
