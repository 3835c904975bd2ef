package api

import (
	"net/http"

	"notehub/internal/auth"
)

const flashCookieName = "flash"

// setFlash stores a one-shot notice shown by the next rendered page.
func setFlash(w http.ResponseWriter, signer *auth.Signer, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    signer.Sign(msg),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending notice, if any, and clears it.
func popFlash(w http.ResponseWriter, r *http.Request, signer *auth.Signer) string {
	c, err := r.Cookie(flashCookieName)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1})
	msg, err := signer.Verify(c.Value)
	if err != nil {
		return ""
	}
	return msg
}
