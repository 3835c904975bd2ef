package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"notehub/internal/models"
	"notehub/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New("sqlite3", filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"./notehub.db", "./notehub.db?_foreign_keys=on"},
		{"file:notehub.db?cache=shared", "file:notehub.db?cache=shared&_foreign_keys=on"},
		{"./notehub.db?_fk=1", "./notehub.db?_fk=1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteDSN(tt.in), tt.in)
	}
}

func TestForeignKeysSurviveReconnect(t *testing.T) {
	s := newTestStore(t)
	// drop the pooled connection so the next query dials a fresh one
	s.db.SetMaxIdleConns(0)
	s.db.SetMaxIdleConns(1)

	for i := 0; i < 2; i++ {
		var on int
		require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on)
		s.db.SetConnMaxLifetime(time.Nanosecond)
		time.Sleep(time.Millisecond)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateUser(ctx, "alice", "hash1")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "alice", "hash2")
	require.ErrorIs(t, err, store.ErrDuplicate)

	u, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "hash1", u.PasswordHash)

	_, err = s.GetUser(ctx, 999)
	require.ErrorIs(t, err, store.ErrNotFound)

	newName := "alice2"
	require.NoError(t, s.UpdateUser(ctx, id, &newName, nil))
	u, err = s.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Username)
	assert.Equal(t, "hash1", u.PasswordHash)

	_, err = s.CreateUser(ctx, "bob", "hash3")
	require.NoError(t, err)
	taken := "bob"
	require.ErrorIs(t, s.UpdateUser(ctx, id, &taken, nil), store.ErrDuplicate)
}

func TestNotesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)

	first := &models.Note{UserID: uid, Filename: "a.pdf", Category: "math", Tags: []string{"algebra", "calc"}, SharedWith: []int64{2, 3}}
	_, err = s.CreateNote(ctx, first)
	require.NoError(t, err)
	second := &models.Note{UserID: uid, Filename: "b.pdf", Category: "cs"}
	_, err = s.CreateNote(ctx, second)
	require.NoError(t, err)

	notes, err := s.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "a.pdf", notes[0].Filename)
	assert.Equal(t, []string{"algebra", "calc"}, notes[0].Tags)
	assert.Equal(t, []int64{2, 3}, notes[0].SharedWith)
	assert.Empty(t, notes[1].SharedWith)

	got, err := s.GetNote(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "math", got.Category)

	_, err = s.GetNote(ctx, 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)
	note := &models.Note{UserID: uid, Filename: "a.pdf", Category: "math"}
	_, err = s.CreateNote(ctx, note)
	require.NoError(t, err)

	five := 5
	_, err = s.CreateComment(ctx, &models.Comment{NoteID: note.ID, UserID: uid, Text: "great", Rating: &five})
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, &models.Comment{NoteID: note.ID, UserID: uid, Text: "again"})
	require.NoError(t, err)

	_, err = s.CreateComment(ctx, &models.Comment{NoteID: 777, UserID: uid, Text: "nope"})
	require.ErrorIs(t, err, store.ErrNotFound)

	comments, err := s.GetComments(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.NotNil(t, comments[0].Rating)
	assert.Equal(t, 5, *comments[0].Rating)
	assert.Nil(t, comments[1].Rating)

	byNote, err := s.GetCommentsByNoteIDs(ctx, []int64{note.ID, 777})
	require.NoError(t, err)
	assert.Len(t, byNote[note.ID], 2)
	assert.Empty(t, byNote[777])
}

func TestRebind(t *testing.T) {
	s := &SQLStore{dbType: Postgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	s.dbType = SQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}
