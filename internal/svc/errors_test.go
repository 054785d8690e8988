package svc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

func withConfig(t *testing.T, cfg *cmn.Config) {
	t.Helper()
	prev := cmn.GCO.Get()
	cmn.GCO.Put(cfg)
	t.Cleanup(func() { cmn.GCO.Put(prev) })
}

func TestWriteErrDefaultBodyWithNoTemplates(t *testing.T) {
	withConfig(t, &cmn.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/a/b", nil)
	writeErr(rec, req, herr.NotFound("no such name %q", "/a/b"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such name")
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestWriteErrHonorsAcceptHTML(t *testing.T) {
	withConfig(t, &cmn.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/a/b", nil)
	req.Header.Set("Accept", "text/html")
	writeErr(rec, req, herr.Forbidden("no access"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
}

func TestRenderErrorUsesConfiguredTemplate(t *testing.T) {
	withConfig(t, &cmn.Config{
		ErrorTemplates: cmn.ErrorTemplates{
			"404": {"text/plain": "{code}: {title} - {description}"},
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/a/b", nil)
	he := herr.NotFound("missing name")
	renderError(rec, req, he)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404: Not Found - missing name", rec.Body.String())
}

func TestRenderErrorLegacyShorthand(t *testing.T) {
	withConfig(t, &cmn.Config{
		ErrorTemplates: cmn.ErrorTemplates{
			"404_html": {"default": "<h1>{title}</h1>"},
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/a/b", nil)
	req.Header.Set("Accept", "text/html")
	renderError(rec, req, herr.NotFound("missing"))

	assert.Equal(t, "<h1>Not Found</h1>", rec.Body.String())
}

func TestNegotiateErrorContentTypeDefaultsToPlain(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a/b", nil)
	req.Header.Set("Accept", "application/json")
	got := negotiateErrorContentType(req, nil, 404)
	assert.Equal(t, "text/plain", got)
}

func TestInterpolate(t *testing.T) {
	out := interpolate("{code} {title}: {description}", 404, "Not Found", "no such name")
	assert.Equal(t, "404 Not Found: no such name", out)
}
