package api

import (
	"bytes"
	"context"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"notehub/internal/auth"
	"notehub/internal/blob"
	"notehub/internal/comments"
	"notehub/internal/notes"
	"notehub/internal/store/sqlstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	server   *httptest.Server
	notes    *notes.Repository
	comments *comments.Ledger
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()

	s, err := sqlstore.New("sqlite3", filepath.Join(dir, "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	blobs, err := blob.New(filepath.Join(dir, "uploads"), blob.Reject)
	require.NoError(t, err)

	signer := auth.NewSigner("test-secret")
	app := &testApp{
		notes:    notes.NewRepository(s, blobs, zerolog.Nop()),
		comments: comments.NewLedger(s, zerolog.Nop()),
	}
	h := NewHandlers(Deps{
		Credentials:    auth.NewCredentials(s),
		Sessions:       auth.NewSessions(signer, time.Hour, false),
		Notes:          app.notes,
		Comments:       app.comments,
		Blobs:          blobs,
		FlashSigner:    signer,
		MaxUploadBytes: 1 << 20,
		Logger:         zerolog.Nop(),
	})
	app.server = httptest.NewServer(h.Handler())
	t.Cleanup(app.server.Close)
	return app
}

// browser is a client with its own cookie jar that follows redirects.
type browser struct {
	t      *testing.T
	app    *testApp
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, app: a, client: &http.Client{Jar: jar}}
}

func (b *browser) read(resp *http.Response, err error) (*http.Response, string) {
	b.t.Helper()
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	return b.read(b.client.Get(b.app.server.URL + path))
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	return b.read(b.client.PostForm(b.app.server.URL+path, form))
}

func (b *browser) register(username, password string) (*http.Response, string) {
	b.t.Helper()
	return b.post("/register", url.Values{"username": {username}, "password": {password}})
}

func (b *browser) login(username, password string) (*http.Response, string) {
	b.t.Helper()
	return b.post("/login", url.Values{"username": {username}, "password": {password}})
}

func (b *browser) upload(filename, content string, fields map[string]string) (*http.Response, string) {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(b.t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(b.t, err)
	}
	for k, v := range fields {
		require.NoError(b.t, mw.WriteField(k, v))
	}
	require.NoError(b.t, mw.Close())
	return b.read(b.client.Post(b.app.server.URL+"/upload", mw.FormDataContentType(), &buf))
}

func (b *browser) sessionCookie() string {
	b.t.Helper()
	u, err := url.Parse(b.app.server.URL)
	require.NoError(b.t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == auth.SessionCookieName {
			return c.Value
		}
	}
	return ""
}

var downloadLink = regexp.MustCompile(`href="(/uploads/[^"]+)"`)

func TestAnonymousIsRedirectedToLogin(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	for _, path := range []string{"/", "/account", "/uploads/notes.pdf"} {
		resp, _ := b.get(path)
		assert.Equal(t, "/login", resp.Request.URL.Path, path)
	}
}

func TestSignupAndLogin(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	resp, body := b.register("testuser", "password123")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/login", resp.Request.URL.Path)
	assert.Contains(t, body, "Registration successful")

	resp, body = b.register("testuser", "other")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "already taken")

	resp, body = b.login("testuser", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid credentials")

	resp, _ = b.register("", "pw")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = b.login("testuser", "password123")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "testuser")

	resp, _ = b.get("/logout")
	assert.Equal(t, "/login", resp.Request.URL.Path)
	resp, _ = b.get("/")
	assert.Equal(t, "/login", resp.Request.URL.Path)
}

func TestSharingScenario(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	bob := app.browser(t)

	alice.register("alice", "pw1")
	alice.login("alice", "pw1")
	resp, body := alice.upload("notes.pdf", "pdf bytes", map[string]string{"category": "cs", "tags": "exam", "shared_with": ""})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "notes.pdf")

	bob.register("bob", "pw2")
	_, body = bob.login("bob", "pw2")
	assert.Contains(t, body, "notes.pdf", "empty shared_with is public")

	alice.upload("private.pdf", "secret", map[string]string{"category": "cs", "shared_with": "3"})
	_, body = alice.get("/")
	assert.NotContains(t, body, "private.pdf", "uploader is not in shared_with")

	_, body = bob.get("/")
	assert.Contains(t, body, "notes.pdf")
	assert.NotContains(t, body, "private.pdf")

	// search ignores shared_with
	_, body = bob.get("/?search=private")
	assert.Contains(t, body, "private.pdf")
	assert.NotContains(t, body, "notes.pdf")

	resp, body = bob.get("/uploads/notes.pdf")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pdf bytes", body)

	resp, _ = bob.get("/uploads/missing.pdf")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadValidation(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.register("alice", "pw1")
	b.login("alice", "pw1")

	_, body := b.upload("a.pdf", "x", map[string]string{"category": ""})
	assert.Contains(t, body, "category: is required")

	_, body = b.upload("", "", map[string]string{"category": "cs"})
	assert.Contains(t, body, "file: is required")

	_, body = b.upload("a.pdf", "x", map[string]string{"category": "cs", "shared_with": "2,bob"})
	assert.Contains(t, body, "shared_with")

	b.upload("a.pdf", "x", map[string]string{"category": "cs"})
	_, body = b.upload("a.pdf", "y", map[string]string{"category": "cs"})
	assert.Contains(t, body, "already exists")

	visible, err := app.notes.ListVisible(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestCommentScenario(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "pw1")
	alice.login("alice", "pw1")
	alice.upload("notes.pdf", "pdf", map[string]string{"category": "cs", "tags": "exam"})

	visible, err := app.notes.ListVisible(context.Background(), 1, "")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	noteID := strconv.FormatInt(visible[0].ID, 10)

	resp, body := alice.post("/add_comment/"+noteID, url.Values{"comment_text": {"clear and complete"}, "rating": {"5"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "clear and complete")

	got, err := app.comments.ListForNote(context.Background(), visible[0].ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 5, *got[0].Rating)
	assert.Equal(t, int64(1), got[0].UserID)

	resp, _ = alice.post("/add_comment/999", url.Values{"comment_text": {"hello"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = alice.post("/add_comment/"+noteID, url.Values{"comment_text": {"bad rating"}, "rating": {"five"}})
	assert.Contains(t, body, "rating: must be a whole number")
}

func TestAccountUpdate(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "pw1")
	alice.register("bob", "pw2")
	alice.login("alice", "pw1")

	resp, body := alice.post("/account", url.Values{"username": {"bob"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "already taken")

	resp, _ = alice.post("/account", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = alice.post("/account", url.Values{"username": {"alicia"}, "password": {"pw-new"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/account", resp.Request.URL.Path)
	assert.Contains(t, body, "Account updated")
	assert.Contains(t, body, "alicia")

	other := app.browser(t)
	resp, _ = other.login("alice", "pw1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = other.login("alicia", "pw-new")
	assert.Equal(t, "/", resp.Request.URL.Path)
}

func TestLoginReplacesExistingSession(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.register("alice", "pw1")
	b.login("alice", "pw1")
	old := b.sessionCookie()
	require.NotEmpty(t, old)

	resp, _ := b.login("alice", "pw1")
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.NotEqual(t, old, b.sessionCookie())

	req, err := http.NewRequest(http.MethodGet, app.server.URL+"/", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: old})
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err = noRedirect.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestDownloadLinksEscapeFilenames(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.register("alice", "pw1")
	b.login("alice", "pw1")

	names := []string{"q?a.pdf", "50%.pdf", "ch#1.pdf"}
	for _, name := range names {
		resp, body := b.upload(name, "content of "+name, map[string]string{"category": "cs"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Uploaded")
	}

	_, body := b.get("/")
	links := downloadLink.FindAllStringSubmatch(body, -1)
	require.Len(t, links, len(names))
	for i, m := range links {
		resp, got := b.get(html.UnescapeString(m[1]))
		assert.Equal(t, http.StatusOK, resp.StatusCode, m[1])
		assert.Equal(t, "content of "+names[i], got, m[1])
	}
}
