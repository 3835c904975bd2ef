// Package notes holds the note index: uploads and the visibility and search
// rules that decide which notes a user sees.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io"

	"notehub/internal/blob"
	"notehub/internal/models"
	"notehub/internal/store"

	"github.com/rs/zerolog"
)

var ErrNoteNotFound = errors.New("note not found")

// BlobStore persists raw file bytes by name.
type BlobStore interface {
	Save(name string, r io.Reader) (string, error)
	Remove(name string) error
	Overwrites() bool
}

type UploadInput struct {
	UserID     int64
	Filename   string
	Category   string
	Tags       []string
	SharedWith []int64
}

func (in UploadInput) Validate() error {
	if in.Filename == "" {
		return models.Required("file")
	}
	if _, err := blob.CleanName(in.Filename); err != nil {
		return &models.ValidationError{Field: "file", Message: "must be a plain file name"}
	}
	if in.Category == "" {
		return models.Required("category")
	}
	return nil
}

type Repository struct {
	notes  store.NoteStore
	blobs  BlobStore
	logger zerolog.Logger
}

func NewRepository(notes store.NoteStore, blobs BlobStore, logger zerolog.Logger) *Repository {
	return &Repository{
		notes:  notes,
		blobs:  blobs,
		logger: logger.With().Str("component", "notes").Logger(),
	}
}

// Upload stores the blob, then the metadata row. The blob is removed again
// if the row cannot be written, unless the blob store overwrites in place.
func (r *Repository) Upload(ctx context.Context, in UploadInput, content io.Reader) (*models.Note, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	stored, err := r.blobs.Save(in.Filename, content)
	if err != nil {
		return nil, err
	}

	n := &models.Note{
		UserID:     in.UserID,
		Filename:   stored,
		Category:   in.Category,
		Tags:       in.Tags,
		SharedWith: in.SharedWith,
	}
	if _, err := r.notes.CreateNote(ctx, n); err != nil {
		if r.blobs.Overwrites() {
			return nil, fmt.Errorf("saving note: %w", err)
		}
		if rmErr := r.blobs.Remove(stored); rmErr != nil {
			r.logger.Error().Err(rmErr).Str("filename", stored).Msg("removing orphaned blob")
		}
		return nil, fmt.Errorf("saving note: %w", err)
	}

	r.logger.Info().
		Int64("note_id", n.ID).
		Int64("user_id", n.UserID).
		Str("filename", stored).
		Int("shared_with", len(n.SharedWith)).
		Msg("note uploaded")
	return n, nil
}

// ListVisible returns the notes userID may browse, in insertion order.
//
// A non-empty query searches filename, category and tags across every note
// and ignores SharedWith. Without a query only notes visible to userID are
// returned.
func (r *Repository) ListVisible(ctx context.Context, userID int64, query string) ([]models.Note, error) {
	all, err := r.notes.ListNotes(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.Note, 0, len(all))
	for _, n := range all {
		if query != "" {
			if n.Matches(query) {
				result = append(result, n)
			}
			continue
		}
		if n.VisibleTo(userID) {
			result = append(result, n)
		}
	}
	return result, nil
}

func (r *Repository) Get(ctx context.Context, noteID int64) (*models.Note, error) {
	n, err := r.notes.GetNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	return n, err
}
