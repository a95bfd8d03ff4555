package main

import (
	"bytes"
	"flag"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocos-map/pkg/geojson"
)

func TestMain(m *testing.M) {
	loadTranslations(content, "public_html/translations.json")
	os.Exit(m.Run())
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	fset := flag.NewFlagSet("pocos", flag.ContinueOnError)
	dbTypeF := fset.String("db-type", "sqlite", "")
	portF := fset.Int("port", 8765, "")
	intervalF := fset.Duration("refresh-interval", 5*time.Minute, "")
	require.NoError(t, fset.Parse([]string{"-port", "9000"}))

	env := map[string]string{
		"POCOS_DB_TYPE":          "pgx",
		"POCOS_PORT":             "1234",
		"POCOS_REFRESH_INTERVAL": "30s",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	require.NoError(t, applyEnv(fset, lookup))

	assert.Equal(t, "pgx", *dbTypeF)
	assert.Equal(t, 9000, *portF, "command line wins over the environment")
	assert.Equal(t, 30*time.Second, *intervalF)

	env["POCOS_REFRESH_INTERVAL"] = "soon"
	fset2 := flag.NewFlagSet("pocos", flag.ContinueOnError)
	fset2.Duration("refresh-interval", time.Minute, "")
	err := applyEnv(fset2, lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POCOS_REFRESH_INTERVAL")
}

func TestPreferredLanguage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		header, query, want string
	}{
		{"", "", "pt"},
		{"pt-BR,pt;q=0.9", "", "pt"},
		{"en-US,en;q=0.9", "", "en"},
		{"de-DE", "", "pt"},
		{"en-US", "pt", "pt"},
		{"", "en", "en"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?lang="+tc.query, nil)
		if tc.header != "" {
			r.Header.Set("Accept-Language", tc.header)
		}
		if got := getPreferredLanguage(r); got != tc.want {
			t.Errorf("header=%q lang=%q: got %q want %q", tc.header, tc.query, got, tc.want)
		}
	}
}

func TestTranslationsCoverBothLanguages(t *testing.T) {
	t.Parallel()
	for key := range translations["pt"] {
		if _, ok := translations["en"][key]; !ok {
			t.Errorf("key %q has no English text", key)
		}
	}
	assert.Equal(t, "🔄 Atualizar Dados", translate("pt", "refresh"))
	assert.Equal(t, "no_such_key", translate("en", "no_such_key"))
}

func TestWithServerHeader(t *testing.T) {
	t.Parallel()
	called := false
	h := withServerHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Server"), "pocos-map/"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestPageRenders(t *testing.T) {
	t.Parallel()
	page := &pageHandler{Version: "test", DefaultLat: -5.45, DefaultLon: -39.7, DefaultZoom: 11}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "pt-BR")
	page.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sistema de Monitoramento de Poços")
	assert.Contains(t, body, "Camada de bairros não disponível")
	assert.Contains(t, body, "bairros: null")
	assert.Equal(t, "pt", rec.Header().Get("Content-Language"))

	rec = httptest.NewRecorder()
	page.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lang=en", nil))
	assert.Contains(t, rec.Body.String(), "Well Monitoring System")

	rec = httptest.NewRecorder()
	page.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBairrosHandler(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	bairrosHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/geojson/bairros.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	layer, err := geojson.Parse([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"NM_BAIRRO":"Centro"},"geometry":{"type":"Point","coordinates":[-39.7,-5.45]}}]}`))
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	bairrosHandler(layer)(rec, httptest.NewRequest(http.MethodGet, "/geojson/bairros.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Centro")

	page := &pageHandler{Version: "test", Bairros: layer}
	rec = httptest.NewRecorder()
	page.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, rec.Body.String(), "bairros: null")
}

func TestQRPng(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	qrPngHandler(rec, httptest.NewRequest(http.MethodGet, "/qrpng?u=https://pocos.example/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), 1000)
}
