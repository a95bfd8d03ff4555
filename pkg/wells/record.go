// Package wells holds the groundwater well dataset and every computation the
// dashboard needs on top of it: normalization, filtering, KPI aggregation,
// the nearest-well lookup behind map clicks, gallery, charts and table.
//
// The package is pure data manipulation. It never touches the network or
// the database so handlers and tests can feed it any sheet.Table.
package wells

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Spreadsheet headers the dashboard understands. Any other column is kept in
// Record.Cells untouched so the table export can still show it.
const (
	ColAno           = "Ano"
	ColMunicipio     = "Município"
	ColLocalidade    = "Localidade"
	ColBairro        = "Bairro"
	ColProfundidade  = "Profundidade_m"
	ColVazao         = "Vazão_LH"
	ColVazaoEstimada = "Vazão_estimada_LH"
	ColCloretos      = "Cloretos"
	ColMonitorado    = "Monitorado"
	ColInstalado     = "Instalado"
	ColStatus        = "Status"
	ColObservacoes   = "Observações"
	ColCaixas        = "Caixas_apoio"
	ColDataVisita    = "Data_visita"
	ColLatitude      = "latitude"
	ColLongitude     = "longitude"
	ColLatitude2     = "Latitude_2"
	ColFoto          = "Link da Foto"

	// Derived from Data_visita during normalization.
	ColAnoVisita = "Ano_visita"
	ColMesVisita = "Mes_visita"
)

// MonthNames are the Portuguese month abbreviations used by the visit-month
// filter, in calendar order.
var MonthNames = [12]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// monthIndex returns 1..12 for a known abbreviation, 0 otherwise.
func monthIndex(name string) int {
	for i, m := range MonthNames {
		if m == name {
			return i + 1
		}
	}
	return 0
}

// Record is one spreadsheet row. Empty cells are absent from Cells, which is
// how "null" is represented throughout the package.
type Record struct {
	Row     int               `json:"row"`
	Cells   map[string]string `json:"cells"`
	Visited time.Time         `json:"visited,omitempty"`
}

// Value returns the cell for col and whether it is non-null.
func (r Record) Value(col string) (string, bool) {
	v, ok := r.Cells[col]
	return v, ok
}

// Number parses the cell for col leniently (see ToFloat).
func (r Record) Number(col string) (float64, bool) {
	v, ok := r.Cells[col]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// VisitYear is the year of Data_visita, when it was parseable.
func (r Record) VisitYear() (int, bool) {
	if r.Visited.IsZero() {
		return 0, false
	}
	return r.Visited.Year(), true
}

// VisitMonth is the Portuguese abbreviation of the Data_visita month.
func (r Record) VisitMonth() (string, bool) {
	if r.Visited.IsZero() {
		return "", false
	}
	return MonthNames[r.Visited.Month()-1], true
}

// Coordinates returns the parsed latitude/longitude pair. Both must parse.
func (r Record) Coordinates() (lat, lon float64, ok bool) {
	lat, okLat := r.Number(ColLatitude)
	lon, okLon := r.Number(ColLongitude)
	if !okLat || !okLon {
		return 0, 0, false
	}
	return lat, lon, true
}

// ToFloat parses spreadsheet numbers. Decimal commas are accepted because the
// sheet is filled in with a Brazilian locale.
func ToFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Dataset is the normalized sheet: header order plus records.
type Dataset struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`

	present map[string]bool
}

// NewDataset builds a dataset over the given header and records.
func NewDataset(columns []string, records []Record) *Dataset {
	present := make(map[string]bool, len(columns)+2)
	for _, c := range columns {
		present[c] = true
	}
	// The visit columns always exist after normalization, possibly all null.
	present[ColAnoVisita] = true
	present[ColMesVisita] = true
	return &Dataset{Columns: columns, Records: records, present: present}
}

// Has reports whether the sheet carries column col.
func (d *Dataset) Has(col string) bool {
	if d == nil {
		return false
	}
	return d.present[col]
}

// Len is the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// withRecords returns a dataset sharing d's columns with a new record slice.
func (d *Dataset) withRecords(records []Record) *Dataset {
	return &Dataset{Columns: d.Columns, Records: records, present: d.present}
}

// hasAny reports whether at least one record has a non-null value in col.
func (d *Dataset) hasAny(col string) bool {
	for _, r := range d.Records {
		if _, ok := r.Cells[col]; ok {
			return true
		}
	}
	return false
}

// distinct returns the sorted unique non-null values of col.
func (d *Dataset) distinct(col string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range d.Records {
		v, ok := r.Cells[col]
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
