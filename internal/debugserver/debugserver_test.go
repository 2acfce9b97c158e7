package debugserver_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/debugserver"
	"github.com/robocin/framework/internal/vision/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWorldStateScatter_RendersHTML(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	srv := debugserver.New(tr)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/world-state", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.NotEmpty(t, rec.Body.String())
}

func TestHandleFilterCountsBar_RendersHTML(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	srv := debugserver.New(tr)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/filter-counts", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestHandleWorldStateScatter_NilTrackerReturnsServiceUnavailable(t *testing.T) {
	t.Parallel()

	srv := debugserver.New(nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/world-state", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
