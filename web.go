package main

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"

	"golang.org/x/text/language"

	"pocos-map/pkg/geojson"
	"pocos-map/pkg/qrlogoext"
)

// =====================
// Translations
// =====================
var translations map[string]map[string]string

// Portuguese comes first so it is the fallback for unmatched browsers.
var supportedLangs = []language.Tag{language.BrazilianPortuguese, language.English}

var langMatcher = language.NewMatcher(supportedLangs)

func loadTranslations(fsys fs.FS, filename string) {
	data, err := fs.ReadFile(fsys, filename)
	if err != nil {
		log.Fatalf("Error reading translation file: %v", err)
	}
	if err := json.Unmarshal(data, &translations); err != nil {
		log.Fatalf("Error parsing translations: %v", err)
	}
}

// getPreferredLanguage returns "pt" or "en". An explicit ?lang= wins over
// the Accept-Language header.
func getPreferredLanguage(r *http.Request) string {
	tag, _ := language.MatchStrings(langMatcher, r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
	base, _ := tag.Base()
	if base.String() == "en" {
		return "en"
	}
	return "pt"
}

func translate(lang, key string) string {
	if val, ok := translations[lang][key]; ok {
		return val
	}
	if val, ok := translations["pt"][key]; ok {
		return val
	}
	return key
}

// =====================
// Dashboard page
// =====================

// pageHandler renders the dashboard shell. Everything data related is
// fetched by the page from /api.
type pageHandler struct {
	Version     string
	DefaultLat  float64
	DefaultLon  float64
	DefaultZoom int
	Bairros     *geojson.Layer
}

func (p *pageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	lang := getPreferredLanguage(r)

	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"translate": func(key string) string { return translate(lang, key) },
		"toJSON": func(data any) (template.JS, error) {
			b, err := json.Marshal(data)
			return template.JS(b), err
		},
	}).ParseFS(content, "public_html/index.html")
	if err != nil {
		log.Printf("error: parsing page template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Version      string
		Lang         string
		Translations map[string]string
		DefaultLat   float64
		DefaultLon   float64
		DefaultZoom  int
		Bairros      *geojson.Layer
		BairrosStyle map[string]any
	}{
		Version:      p.Version,
		Lang:         lang,
		Translations: translations[lang],
		DefaultLat:   p.DefaultLat,
		DefaultLon:   p.DefaultLon,
		DefaultZoom:  p.DefaultZoom,
		Bairros:      p.Bairros,
		BairrosStyle: geojson.Style,
	}

	// Render into a buffer so a template error never follows a 200.
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("error: executing template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", lang)
	if _, err := buf.WriteTo(w); err != nil {
		if isClientDisconnect(err) {
			log.Printf("client disconnected while writing response")
		} else {
			log.Printf("error: writing response: %v", err)
		}
	}
}

// bairrosHandler serves the neighborhood layer, or 404 when it failed to
// load at startup.
func bairrosHandler(layer *geojson.Layer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if layer == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = io.Copy(w, bytes.NewReader(layer.Raw))
	}
}

// =====================
// QR code
// =====================

// qrPngHandler encodes ?u= or, without it, the page the request came from.
func qrPngHandler(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("u")
	if u == "" {
		if ref := r.Referer(); ref != "" {
			u = ref
		} else {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			u = scheme + "://" + r.Host + "/"
		}
	}
	if len(u) > 2048 {
		u = u[:2048]
	}

	var buf bytes.Buffer
	opts := qrlogoext.Options{TargetPx: 1024, LogoBoxFrac: 0.28}
	if err := qrlogoext.EncodePNG(&buf, []byte(u), nil, opts); err != nil {
		http.Error(w, "QR encode: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", "inline; filename=\"pocos-qr.png\"")
	_, _ = buf.WriteTo(w)
}
