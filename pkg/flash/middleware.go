package flash

import (
	"log/slog"
	"net/http"

	"github.com/traego/oncesession/pkg/session"
)

// Middleware flushes the session's flash slots before the handler runs and
// exposes them through FromContext. It must run inside session.Middleware.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s, ok := session.FromContext(ctx)
		if !ok {
			slog.WarnContext(ctx, "flash middleware used without a session")
			next.ServeHTTP(w, r)
			return
		}

		env := Begin(s, r.URL.RequestURI())
		next.ServeHTTP(w, r.WithContext(WithEnvelope(ctx, env)))
	})
}
