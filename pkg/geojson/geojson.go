// Package geojson loads the neighborhoods overlay drawn under the well
// markers. The file is validated once at startup so the page never receives
// a layer Leaflet cannot draw.
package geojson

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed featurecollection.schema.json
var schemaJSON []byte

const schemaURL = "featurecollection.schema.json"

// NameProperty is the feature property shown in the neighborhood tooltip.
const NameProperty = "NM_BAIRRO"

// Style of the neighborhoods layer on the map.
var Style = map[string]any{
	"color":       "#00b894",
	"weight":      2,
	"fillColor":   "#00b894",
	"fillOpacity": 0.05,
}

// Layer is a validated FeatureCollection ready to be served as is.
type Layer struct {
	Title    string   `json:"title"`
	Features int      `json:"features"`
	Names    []string `json:"names"`
	Raw      []byte   `json:"-"`
}

var compiled = jsonschema.MustCompileString(schemaURL, string(schemaJSON))

// Load reads and validates path.
func Load(path string) (*Layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw and extracts the neighborhood names.
func Parse(raw []byte) (*Layer, error) {
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("geojson: decode: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, fmt.Errorf("geojson: invalid FeatureCollection: %w", err)
	}

	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("geojson: decode features: %w", err)
	}
	seen := make(map[string]struct{})
	names := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		name, _ := f.Properties[NameProperty].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Layer{
		Title:    "Bairros de Pedra Branca",
		Features: len(fc.Features),
		Names:    names,
		Raw:      raw,
	}, nil
}
