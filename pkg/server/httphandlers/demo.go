package httphandlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/traego/oncesession/pkg/flash"
	"github.com/traego/oncesession/pkg/session"
)

// Messages written by the demo routes
const (
	RedirectFlash        = "Flash message from redirect!"
	ForwardRedirectFlash = "Flash message from forward redirect!"
	NameError            = "Your name is too ugly!"
)

// Page is the body rendered by the demo pages
type Page struct {
	Title   string            `json:"title"`
	Flash   *string           `json:"flash,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	PrevURL string            `json:"prev_url"`
}

// RegisterDemo mounts the demo routes that exercise the flash channel. They
// must be served behind session.Middleware and flash.Middleware.
func RegisterDemo(r chi.Router) {
	r.Get("/", HandleIndex)
	r.Get("/foo", HandleFoo)
	r.Get("/redirect", HandleRedirect)
	r.Get("/redirect/forward", HandleRedirectToForward)
	r.Get("/forward", HandleForward)
	r.Get("/backwitherrors", HandleBackWithErrors)
	r.Post("/logout", HandleLogout)
}

// HandleIndex shows the flash and errors flushed for this request
func HandleIndex(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "Home!")
}

// HandleFoo is the redirect target of the demo flows
func HandleFoo(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "Foo")
}

// HandleRedirect sets a flash message and redirects to /foo
func HandleRedirect(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}
	if err := flash.InsertFlash(s, RedirectFlash); err != nil {
		slog.ErrorContext(r.Context(), "Failed to insert flash", "error", err)
	}
	http.Redirect(w, r, "/foo", http.StatusTemporaryRedirect)
}

// HandleRedirectToForward sets a flash message and redirects to /forward,
// which carries it on to /foo
func HandleRedirectToForward(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}
	if err := flash.InsertFlash(s, ForwardRedirectFlash); err != nil {
		slog.ErrorContext(r.Context(), "Failed to insert flash", "error", err)
	}
	http.Redirect(w, r, "/forward", http.StatusTemporaryRedirect)
}

// HandleForward forwards whatever it flushed and redirects to /foo
func HandleForward(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}
	if err := flash.Forward[string, map[string]string](s, flash.FromContext(r.Context())); err != nil {
		slog.WarnContext(r.Context(), "Failed to forward flash", "error", err)
	}
	http.Redirect(w, r, "/foo", http.StatusTemporaryRedirect)
}

// HandleBackWithErrors sets a validation error and sends the client back to
// the page it came from
func HandleBackWithErrors(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}
	if err := flash.InsertErrors(s, map[string]string{"name": NameError}); err != nil {
		slog.ErrorContext(r.Context(), "Failed to insert errors", "error", err)
	}
	http.Redirect(w, r, flash.FromContext(r.Context()).PrevURL, http.StatusSeeOther)
}

// HandleLogout purges the session
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}
	s.Purge()
	w.WriteHeader(http.StatusNoContent)
}

// HandleNotFound answers unknown routes with a JSON error
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, map[string]any{
		"error":       "Page not found",
		"status_code": http.StatusNotFound,
	})
}

func renderPage(w http.ResponseWriter, r *http.Request, title string) {
	view := flash.DecodeLenient[string, map[string]string](r.Context(), flash.FromContext(r.Context()))
	page := Page{Title: title, Flash: view.Flash, PrevURL: view.PrevURL}
	if view.Errors != nil {
		page.Errors = *view.Errors
	}
	writeJSON(w, r, http.StatusOK, page)
}

func sessionOrError(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		slog.ErrorContext(r.Context(), "No session attached to request", "path", r.URL.Path)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
	}
	return s, ok
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write response", "error", err)
	}
}
