package api

import (
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"notehub/internal/auth"
	"notehub/internal/blob"
	"notehub/internal/comments"
	"notehub/internal/middleware"
	"notehub/internal/models"
	"notehub/internal/notes"
	"notehub/internal/store"

	"github.com/rs/zerolog"
)

// BlobOpener reads stored note files back.
type BlobOpener interface {
	Open(name string) (*os.File, error)
}

// Deps are the request-scoped collaborators shared by every handler.
type Deps struct {
	Credentials    *auth.Credentials
	Sessions       *auth.Sessions
	Notes          *notes.Repository
	Comments       *comments.Ledger
	Blobs          BlobOpener
	FlashSigner    *auth.Signer
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

type Handlers struct {
	creds     *auth.Credentials
	sessions  *auth.Sessions
	notes     *notes.Repository
	comments  *comments.Ledger
	blobs     BlobOpener
	flash     *auth.Signer
	maxUpload int64
	logger    zerolog.Logger
	pages     map[string]*template.Template
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		creds:     d.Credentials,
		sessions:  d.Sessions,
		notes:     d.Notes,
		comments:  d.Comments,
		blobs:     d.Blobs,
		flash:     d.FlashSigner,
		maxUpload: d.MaxUploadBytes,
		logger:    d.Logger.With().Str("component", "api").Logger(),
		pages:     parsePages(),
	}
}

// Routes registers every page on a new mux. The mux does no authentication
// of its own; see Handler.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	static, _ := fs.Sub(assetsFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /register", h.RegisterPage)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /login", h.LoginPage)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /logout", h.Logout)
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("POST /upload", h.Upload)
	mux.HandleFunc("POST /add_comment/{noteID}", h.AddComment)
	mux.HandleFunc("GET /uploads/{filename}", h.ServeUpload)
	mux.HandleFunc("GET /account", h.AccountPage)
	mux.HandleFunc("POST /account", h.UpdateAccount)
	return mux
}

// Handler is Routes behind the session gate.
func (h *Handlers) Handler() http.Handler {
	return middleware.Auth(h.sessions)(h.Routes())
}

// log prefers the request logger installed by middleware.Logging.
func (h *Handlers) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.log(r).Error().Err(err).Msg(msg)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// currentUser loads the session's user. A session pointing at a missing
// user is treated as anonymous.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	u, err := h.creds.Lookup(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		h.sessions.Destroy(w, r)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	if err != nil {
		h.serverError(w, r, err, "loading current user")
		return nil, false
	}
	return u, true
}

func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register.html", pageData{Title: "Register", Flash: popFlash(w, r, h.flash)})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	form, err := parseCredentialsForm(r)
	if err == nil {
		_, err = h.creds.Register(r.Context(), form.Username, form.Password)
	}

	var verr *models.ValidationError
	switch {
	case err == nil:
		h.log(r).Info().Str("username", form.Username).Msg("user registered")
		setFlash(w, h.flash, "Registration successful. You can now log in.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, auth.ErrDuplicateUsername):
		h.render(w, r, http.StatusConflict, "register.html", pageData{Title: "Register", Flash: "That username is already taken."})
	case errors.As(err, &verr):
		h.render(w, r, http.StatusBadRequest, "register.html", pageData{Title: "Register", Flash: verr.Error()})
	default:
		h.serverError(w, r, err, "registering user")
	}
}

func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login.html", pageData{Title: "Log in", Flash: popFlash(w, r, h.flash)})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	form, err := parseCredentialsForm(r)
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		h.render(w, r, http.StatusBadRequest, "login.html", pageData{Title: "Log in", Flash: verr.Error()})
		return
	}

	u, err := h.creds.Verify(r.Context(), form.Username, form.Password)
	if errors.Is(err, auth.ErrAuthFailure) {
		h.log(r).Info().Str("username", form.Username).Msg("login failed")
		h.render(w, r, http.StatusUnauthorized, "login.html", pageData{Title: "Log in", Flash: "Invalid credentials. Try again."})
		return
	}
	if err != nil {
		h.serverError(w, r, err, "verifying credentials")
		return
	}

	// drop any session the client already holds before issuing a new one
	h.sessions.Destroy(w, r)
	h.sessions.Create(w, u.ID)
	setFlash(w, h.flash, "Logged in.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	setFlash(w, h.flash, "Logged out.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	search := r.URL.Query().Get("search")
	visible, err := h.notes.ListVisible(r.Context(), u.ID, search)
	if err != nil {
		h.serverError(w, r, err, "listing notes")
		return
	}
	if err := h.comments.Attach(r.Context(), visible); err != nil {
		h.serverError(w, r, err, "loading comments")
		return
	}

	h.render(w, r, http.StatusOK, "index.html", pageData{
		Title:  "Notes",
		Flash:  popFlash(w, r, h.flash),
		User:   u,
		Notes:  visible,
		Search: search,
	})
}

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.redirectWithFlash(w, r, "/", "File too large.")
			return
		}
		h.redirectWithFlash(w, r, "/", "Invalid upload form.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form, err := parseUploadForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, "/", err.Error())
		return
	}
	defer form.File.Close()

	note, err := h.notes.Upload(r.Context(), notes.UploadInput{
		UserID:     userID,
		Filename:   form.Filename,
		Category:   form.Category,
		Tags:       form.Tags,
		SharedWith: form.SharedWith,
	}, form.File)

	var verr *models.ValidationError
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/", "Uploaded "+note.Filename+".")
	case errors.As(err, &verr):
		h.redirectWithFlash(w, r, "/", verr.Error())
	case errors.Is(err, blob.ErrBlobExists):
		h.redirectWithFlash(w, r, "/", form.Filename+": "+err.Error()+".")
	default:
		h.serverError(w, r, err, "uploading note")
	}
}

func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	form, err := parseCommentForm(r)
	if err == nil {
		_, err = h.comments.AddComment(r.Context(), form.NoteID, userID, form.Text, form.Rating)
	}

	var verr *models.ValidationError
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/", "Comment added.")
	case errors.Is(err, notes.ErrNoteNotFound):
		http.Error(w, "Note not found", http.StatusNotFound)
	case errors.As(err, &verr):
		h.redirectWithFlash(w, r, "/", verr.Error())
	default:
		h.serverError(w, r, err, "adding comment")
	}
}

func (h *Handlers) ServeUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, err := h.blobs.Open(name)
	if errors.Is(err, blob.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err, "opening upload")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.serverError(w, r, err, "reading upload")
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *Handlers) AccountPage(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "account.html", pageData{Title: "Account", Flash: popFlash(w, r, h.flash), User: u})
}

func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	form, err := parseAccountForm(r)
	if err == nil {
		err = h.creds.Update(r.Context(), u.ID, form.Username, form.Password)
	}

	var verr *models.ValidationError
	switch {
	case err == nil:
		h.log(r).Info().Bool("username_changed", form.Username != nil).Bool("password_changed", form.Password != nil).Msg("account updated")
		h.redirectWithFlash(w, r, "/account", "Account updated.")
	case errors.Is(err, auth.ErrDuplicateUsername):
		h.render(w, r, http.StatusConflict, "account.html", pageData{Title: "Account", User: u, Flash: "That username is already taken."})
	case errors.As(err, &verr):
		h.render(w, r, http.StatusBadRequest, "account.html", pageData{Title: "Account", User: u, Flash: verr.Error()})
	default:
		h.serverError(w, r, err, "updating account")
	}
}

func (h *Handlers) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, msg string) {
	setFlash(w, h.flash, msg)
	http.Redirect(w, r, to, http.StatusSeeOther)
}
