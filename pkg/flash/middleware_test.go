package flash

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traego/oncesession/pkg/session"
	"github.com/traego/oncesession/pkg/session/store"
)

type shown struct {
	Flash   *string `json:"flash"`
	Errors  *string `json:"errors"`
	PrevURL string  `json:"prev_url"`
}

func newChainServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Use(session.Middleware(store.NewMemorySessionStore(), session.MiddlewareConfig{}))
	r.Use(Middleware)

	show := func(w http.ResponseWriter, r *http.Request) {
		view := DecodeLenient[string, string](r.Context(), FromContext(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(shown{Flash: view.Flash, Errors: view.Errors, PrevURL: view.PrevURL})
	}
	redirectWith := func(target string, insert func(s *session.Session) error) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s, _ := session.FromContext(r.Context())
			require.NoError(t, insert(s))
			http.Redirect(w, r, target, http.StatusSeeOther)
		}
	}

	r.Get("/foo", show)
	r.Get("/bar", show)
	r.Get("/redirect", redirectWith("/foo", func(s *session.Session) error {
		return InsertFlash(s, "hello")
	}))
	r.Get("/redirect/forward", redirectWith("/forward", func(s *session.Session) error {
		return InsertFlash(s, "hello again")
	}))
	r.Get("/forward", func(w http.ResponseWriter, r *http.Request) {
		s, _ := session.FromContext(r.Context())
		require.NoError(t, Forward[string, string](s, FromContext(r.Context())))
		http.Redirect(w, r, "/foo", http.StatusSeeOther)
	})
	r.Get("/back", func(w http.ResponseWriter, r *http.Request) {
		s, _ := session.FromContext(r.Context())
		require.NoError(t, InsertErrors(s, "try again"))
		http.Redirect(w, r, FromContext(r.Context()).PrevURL, http.StatusSeeOther)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func get(t *testing.T, c *http.Client, url string) shown {
	t.Helper()
	resp, err := c.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out shown
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestRedirectChain(t *testing.T) {
	srv := newChainServer(t)

	t.Run("flash survives exactly one hop", func(t *testing.T) {
		c := newClient(t)

		got := get(t, c, srv.URL+"/redirect")
		require.NotNil(t, got.Flash)
		assert.Equal(t, "hello", *got.Flash)
		assert.Equal(t, "/redirect", got.PrevURL)

		got = get(t, c, srv.URL+"/foo")
		assert.Nil(t, got.Flash)
		assert.Equal(t, "/foo", got.PrevURL)
	})

	t.Run("forward carries flash one more hop", func(t *testing.T) {
		c := newClient(t)

		got := get(t, c, srv.URL+"/redirect/forward")
		require.NotNil(t, got.Flash)
		assert.Equal(t, "hello again", *got.Flash)
		assert.Equal(t, "/forward", got.PrevURL)

		got = get(t, c, srv.URL+"/bar")
		assert.Nil(t, got.Flash)
	})

	t.Run("errors return to the previous page", func(t *testing.T) {
		c := newClient(t)

		get(t, c, srv.URL+"/bar")
		got := get(t, c, srv.URL+"/back")
		require.NotNil(t, got.Errors)
		assert.Equal(t, "try again", *got.Errors)
		assert.Equal(t, "/back", got.PrevURL)
	})

	t.Run("clients do not see each other's flash", func(t *testing.T) {
		a, b := newClient(t), newClient(t)

		resp, err := (&http.Client{
			Jar:           a.Jar,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}).Get(srv.URL + "/redirect")
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		assert.Nil(t, get(t, b, srv.URL+"/foo").Flash)
		got := get(t, a, srv.URL+"/foo")
		require.NotNil(t, got.Flash)
		assert.Equal(t, "hello", *got.Flash)
	})
}

func TestMiddlewareWithoutSession(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, FromContext(r.Context()).IsEmpty())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
