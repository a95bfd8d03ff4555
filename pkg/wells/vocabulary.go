package wells

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Vocabulary maps the free-text answers people type into the sheet onto the
// canonical labels the filters and charts use. Keys are matched after
// trimming and lowercasing, then again with accents removed.
type Vocabulary struct {
	Monitorado   map[string]string `yaml:"monitorado"`
	Instalado    map[string]string `yaml:"instalado"`
	Status       map[string]string `yaml:"status"`
	StatusColors map[string]string `yaml:"status_colors"`
	DefaultColor string            `yaml:"default_color"`
	// StatusOrder fixes the legend order on the map.
	StatusOrder []string `yaml:"status_order"`
}

// DefaultVocabulary returns the mappings used by the Pedra Branca sheet.
func DefaultVocabulary() *Vocabulary {
	yesNo := func() map[string]string {
		return map[string]string{"sim": "Sim", "nao": "Não", "não": "Não"}
	}
	return &Vocabulary{
		Monitorado: yesNo(),
		Instalado:  yesNo(),
		Status: map[string]string{
			"instalado":     "Instalado",
			"nao_instalado": "Não instalado",
			"não_instalado": "Não instalado",
			"desativado":    "Desativado",
			"obstruido":     "Obstruído",
			"obstruído":     "Obstruído",
			"injetado":      "Injetado",
		},
		StatusColors: map[string]string{
			"Instalado":     "#00b894",
			"Não instalado": "#e17055",
			"Desativado":    "#636e72",
			"Obstruído":     "#d63031",
			"Injetado":      "#6c5ce7",
		},
		DefaultColor: "#0984e3",
		StatusOrder:  []string{"Instalado", "Não instalado", "Desativado", "Obstruído", "Injetado"},
	}
}

// LoadVocabulary reads a YAML file and layers it over DefaultVocabulary.
// Entries in the file replace or extend the defaults; nothing is removed.
func LoadVocabulary(path string) (*Vocabulary, error) {
	v := DefaultVocabulary()
	if strings.TrimSpace(path) == "" {
		return v, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var file Vocabulary
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	merge := func(dst, src map[string]string, lowerKeys bool) {
		for k, val := range src {
			if lowerKeys {
				k = strings.ToLower(strings.TrimSpace(k))
			}
			dst[k] = val
		}
	}
	merge(v.Monitorado, file.Monitorado, true)
	merge(v.Instalado, file.Instalado, true)
	merge(v.Status, file.Status, true)
	merge(v.StatusColors, file.StatusColors, false)
	if file.DefaultColor != "" {
		v.DefaultColor = file.DefaultColor
	}
	if len(file.StatusOrder) > 0 {
		v.StatusOrder = file.StatusOrder
	}
	return v, nil
}

// StatusColor returns the marker color for a canonical status.
func (v *Vocabulary) StatusColor(status string) string {
	if c, ok := v.StatusColors[status]; ok {
		return c
	}
	return v.DefaultColor
}

// remap applies one of the vocabulary maps. Unknown values pass through.
func remap(m map[string]string, value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	if out, ok := m[key]; ok {
		return out
	}
	// Several keys can fold to the same text; the first in sorted order wins.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	folded := FoldAccents(key)
	for _, k := range keys {
		if FoldAccents(k) == folded {
			return m[k]
		}
	}
	return value
}

// FoldAccents strips combining marks so "Não" and "Nao" compare equal.
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
