package models

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Note is the metadata for one uploaded file. An empty SharedWith means the
// note is public in the unfiltered index.
type Note struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Filename   string    `json:"filename"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	SharedWith []int64   `json:"shared_with"`
	CreatedAt  time.Time `json:"created_at"`

	Comments []Comment `json:"comments,omitempty"`
}

// VisibleTo reports whether the note shows up in userID's unfiltered index:
// SharedWith is empty or lists userID. The uploader is not special.
func (n Note) VisibleTo(userID int64) bool {
	return len(n.SharedWith) == 0 || slices.Contains(n.SharedWith, userID)
}

// Matches reports whether query is a case-insensitive substring of the
// filename, the category or the joined tag list. A query containing commas
// is also tried in the stored tag form, so "algebra, calc" matches the tags
// algebra and calc.
func (n Note) Matches(query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{n.Filename, n.Category, JoinTags(n.Tags)} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	if strings.Contains(q, ",") {
		if tq := JoinTags(ParseTags(q)); tq != "" {
			return strings.Contains(strings.ToLower(JoinTags(n.Tags)), tq)
		}
	}
	return false
}

type Comment struct {
	ID        int64     `json:"id"`
	NoteID    int64     `json:"note_id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"comment_text"`
	Rating    *int      `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseTags splits a comma-separated tag list, trimming blanks and dropping
// empty entries.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// ParseIDList parses a comma-separated list of user ids. Duplicates are
// dropped, first occurrence wins.
func ParseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, &ValidationError{Field: "shared_with", Message: "must be a comma-separated list of user ids"}
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func JoinIDList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
