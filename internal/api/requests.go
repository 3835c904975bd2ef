package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"notehub/internal/models"
)

// Each form is decoded into its own struct. Missing or malformed fields come
// back as *models.ValidationError.

type credentialsForm struct {
	Username string
	Password string
}

func parseCredentialsForm(r *http.Request) (credentialsForm, error) {
	if err := r.ParseForm(); err != nil {
		return credentialsForm{}, &models.ValidationError{Field: "form", Message: "could not be read"}
	}
	f := credentialsForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	if f.Username == "" {
		return f, models.Required("username")
	}
	if f.Password == "" {
		return f, models.Required("password")
	}
	return f, nil
}

type uploadForm struct {
	File       multipart.File
	Filename   string
	Category   string
	Tags       []string
	SharedWith []int64
}

// parseUploadForm expects a multipart form that has already been parsed.
func parseUploadForm(r *http.Request) (uploadForm, error) {
	var f uploadForm
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return f, models.Required("file")
	}
	if err != nil {
		return f, &models.ValidationError{Field: "file", Message: "could not be read"}
	}
	f.File = file
	f.Filename = header.Filename
	f.Category = strings.TrimSpace(r.FormValue("category"))
	f.Tags = models.ParseTags(r.FormValue("tags"))

	sharedWith, err := models.ParseIDList(r.FormValue("shared_with"))
	if err != nil {
		file.Close()
		return uploadForm{}, err
	}
	f.SharedWith = sharedWith
	return f, nil
}

type commentForm struct {
	NoteID int64
	Text   string
	Rating *int
}

func parseCommentForm(r *http.Request) (commentForm, error) {
	var f commentForm
	noteID, err := strconv.ParseInt(r.PathValue("noteID"), 10, 64)
	if err != nil {
		return f, &models.ValidationError{Field: "note_id", Message: "must be a number"}
	}
	f.NoteID = noteID

	if err := r.ParseForm(); err != nil {
		return f, &models.ValidationError{Field: "form", Message: "could not be read"}
	}
	f.Text = strings.TrimSpace(r.PostFormValue("comment_text"))
	if f.Text == "" {
		return f, models.Required("comment_text")
	}
	if raw := strings.TrimSpace(r.PostFormValue("rating")); raw != "" {
		rating, err := strconv.Atoi(raw)
		if err != nil {
			return f, &models.ValidationError{Field: "rating", Message: "must be a whole number"}
		}
		f.Rating = &rating
	}
	return f, nil
}

// accountForm leaves a field nil when the user left it blank.
type accountForm struct {
	Username *string
	Password *string
}

func parseAccountForm(r *http.Request) (accountForm, error) {
	var f accountForm
	if err := r.ParseForm(); err != nil {
		return f, &models.ValidationError{Field: "form", Message: "could not be read"}
	}
	if u := strings.TrimSpace(r.PostFormValue("username")); u != "" {
		f.Username = &u
	}
	if p := r.PostFormValue("password"); p != "" {
		f.Password = &p
	}
	if f.Username == nil && f.Password == nil {
		return f, &models.ValidationError{Field: "account", Message: "enter a new username or password"}
	}
	return f, nil
}
