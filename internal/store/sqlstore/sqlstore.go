package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"notehub/internal/models"
	"notehub/internal/store"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DBType represents the type of database
type DBType string

const (
	SQLite   DBType = "sqlite3"
	Postgres DBType = "postgres"
)

// SQLStore implements the Store interface for SQL databases
type SQLStore struct {
	db     *sql.DB
	dbType DBType
	logger zerolog.Logger
}

var _ store.Store = (*SQLStore)(nil)

// New creates a new SQLStore with the given driver and connection string
func New(driver, connStr string, logger zerolog.Logger) (*SQLStore, error) {
	if DBType(driver) == SQLite {
		connStr = sqliteDSN(connStr)
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLStore{
		db:     db,
		dbType: DBType(driver),
		logger: logger.With().Str("component", "store").Logger(),
	}

	if s.dbType == SQLite {
		// One connection: keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info().Str("driver", driver).Msg("store initialized")
	return s, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL
// sqliteDSN turns on foreign keys for every connection the pool opens.
func sqliteDSN(connStr string) string {
	if strings.Contains(connStr, "_foreign_keys=") || strings.Contains(connStr, "_fk=") {
		return connStr
	}
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return connStr + sep + "_foreign_keys=on"
}

func (s *SQLStore) rebind(query string) string {
	if s.dbType == SQLite {
		return query
	}
	var result strings.Builder
	argNum := 1
	for _, c := range query {
		if c == '?' {
			result.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

func (s *SQLStore) initSchema() error {
	var createUsersTable, createNotesTable, createCommentsTable string

	if s.dbType == Postgres {
		createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);`

		createNotesTable = `
		CREATE TABLE IF NOT EXISTS notes (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			filename TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			shared_with TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);`

		createCommentsTable = `
		CREATE TABLE IF NOT EXISTS comments (
			id SERIAL PRIMARY KEY,
			note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id),
			comment_text TEXT NOT NULL,
			rating INTEGER,
			created_at TIMESTAMP NOT NULL
		);`
	} else {
		createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);`

		createNotesTable = `
		CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			filename TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			shared_with TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`

		createCommentsTable = `
		CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			note_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			comment_text TEXT NOT NULL,
			rating INTEGER,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(note_id) REFERENCES notes(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`
	}

	for _, stmt := range []string{createUsersTable, createNotesTable, createCommentsTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// insertReturningID runs an INSERT and returns the new row id. PostgreSQL has
// no LastInsertId, so the query gets a RETURNING clause there.
func (s *SQLStore) insertReturningID(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	if s.dbType == Postgres {
		var id int64
		err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	result, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// User functions
func (s *SQLStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	id, err := s.insertReturningID(ctx, s.db, "INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("username %q: %w", username, store.ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, s.rebind("SELECT id, username, password_hash FROM users WHERE username = ?"), username))
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, s.rebind("SELECT id, username, password_hash FROM users WHERE id = ?"), id))
}

func (s *SQLStore) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// UpdateUser sets only the non-nil fields.
func (s *SQLStore) UpdateUser(ctx context.Context, id int64, username, passwordHash *string) error {
	var sets []string
	var args []any
	if username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *username)
	}
	if passwordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *passwordHash)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, s.rebind("UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("username %q: %w", *username, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Note functions
func (s *SQLStore) CreateNote(ctx context.Context, n *models.Note) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertReturningID(ctx, s.db,
		"INSERT INTO notes (user_id, filename, category, tags, shared_with, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		n.UserID, n.Filename, n.Category, models.JoinTags(n.Tags), models.JoinIDList(n.SharedWith), n.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting note: %w", err)
	}
	n.ID = id
	return id, nil
}

const noteColumns = "id, user_id, filename, category, tags, shared_with, created_at"

func (s *SQLStore) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+noteColumns+" FROM notes WHERE id = ?"), id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying note: %w", err)
	}
	return n, nil
}

func (s *SQLStore) ListNotes(ctx context.Context) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+noteColumns+" FROM notes ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanNote decodes the comma-separated tags and shared_with columns. A
// malformed shared_with is an error, never an empty (public) list.
func scanNote(row scanner) (*models.Note, error) {
	var n models.Note
	var tags, sharedWith string
	if err := row.Scan(&n.ID, &n.UserID, &n.Filename, &n.Category, &tags, &sharedWith, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Tags = models.ParseTags(tags)
	ids, err := models.ParseIDList(sharedWith)
	if err != nil {
		return nil, fmt.Errorf("note %d shared_with %q: %w", n.ID, sharedWith, err)
	}
	n.SharedWith = ids
	return &n, nil
}

// Comment functions
func (s *SQLStore) CreateComment(ctx context.Context, c *models.Comment) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind("SELECT 1 FROM notes WHERE id = ?"), c.NoteID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("checking note: %w", err)
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var rating sql.NullInt64
	if c.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*c.Rating), Valid: true}
	}
	id, err := s.insertReturningID(ctx, tx,
		"INSERT INTO comments (note_id, user_id, comment_text, rating, created_at) VALUES (?, ?, ?, ?, ?)",
		c.NoteID, c.UserID, c.Text, rating, c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing comment: %w", err)
	}
	c.ID = id
	return id, nil
}

const commentColumns = "id, note_id, user_id, comment_text, rating, created_at"

func (s *SQLStore) GetComments(ctx context.Context, noteID int64) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+commentColumns+" FROM comments WHERE note_id = ? ORDER BY id ASC"), noteID)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func (s *SQLStore) GetCommentsByNoteIDs(ctx context.Context, noteIDs []int64) (map[int64][]models.Comment, error) {
	result := make(map[int64][]models.Comment)
	if len(noteIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(noteIDs))
	args := make([]any, len(noteIDs))
	for i, id := range noteIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM comments WHERE note_id IN (%s) ORDER BY id ASC", commentColumns, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		result[c.NoteID] = append(result[c.NoteID], *c)
	}
	return result, rows.Err()
}

func scanComment(row scanner) (*models.Comment, error) {
	var c models.Comment
	var rating sql.NullInt64
	if err := row.Scan(&c.ID, &c.NoteID, &c.UserID, &c.Text, &rating, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("scanning comment: %w", err)
	}
	if rating.Valid {
		r := int(rating.Int64)
		c.Rating = &r
	}
	return &c, nil
}
