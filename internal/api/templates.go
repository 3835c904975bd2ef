package api

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"notehub/internal/models"
)

//go:embed templates/*.html static/*
var assetsFS embed.FS

type pageData struct {
	Title  string
	Flash  string
	User   *models.User
	Notes  []models.Note
	Search string
}

var templateFuncs = template.FuncMap{
	"tags": models.JoinTags,
	"ids":  models.JoinIDList,
	// stored names may contain '?', '#' or '%'
	"pathescape": url.PathEscape,
}

func parsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template)
	for _, page := range []string{"login.html", "register.html", "index.html", "account.html"} {
		pages[page] = template.Must(template.New("base.html").Funcs(templateFuncs).
			ParseFS(assetsFS, "templates/base.html", "templates/"+page))
	}
	return pages
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages[page].Execute(w, data); err != nil {
		h.log(r).Error().Err(err).Str("page", page).Msg("failed to render page")
	}
}
