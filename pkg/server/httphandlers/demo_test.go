package httphandlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlersWithoutSession(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"redirect": HandleRedirect,
		"forward":  HandleForward,
		"errors":   HandleBackWithErrors,
		"logout":   HandleLogout,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
		})
	}
}

func TestRenderPageWithoutEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, "Home!", page.Title)
	assert.Nil(t, page.Flash)
	assert.Empty(t, page.Errors)
	assert.Equal(t, "/", page.PrevURL)
}

func TestHandleNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleNotFound(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Page not found")
}
