package testtarget

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTarget_Routes(t *testing.T) {
	target := New(Options{Products: 6})
	h := target.Handler()

	rec := get(t, h, "/api/products")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "success").Bool())
	assert.Equal(t, int64(6), gjson.Get(rec.Body.String(), "data.#").Int())

	rec = get(t, h, "/api/products/3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "data.id").Int())

	rec = get(t, h, "/api/products/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())

	rec = get(t, h, "/api/products/search?q=clothing")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "data.#").Int())

	assert.Equal(t, int64(4), target.Requests())
}

func TestTarget_ErrorRate(t *testing.T) {
	h := New(Options{ErrorRate: 1}).Handler()
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
