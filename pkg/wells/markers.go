package wells

import (
	"math"
	"sort"
	"strconv"
)

// PopupField is one line of a marker popup.
type PopupField struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Marker is one circle on the map.
type Marker struct {
	Row     int          `json:"row"`
	Lat     float64      `json:"lat"`
	Lon     float64      `json:"lon"`
	Status  string       `json:"status,omitempty"`
	Color   string       `json:"color"`
	Tooltip string       `json:"tooltip"`
	Popup   []PopupField `json:"popup"`
}

// Bounds is the south-west / north-east box around every marker.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// LegendEntry is one row of the status legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// MarkerSet is everything the map layer needs for one filter state.
type MarkerSet struct {
	Markers []Marker      `json:"markers"`
	Bounds  *Bounds       `json:"bounds,omitempty"`
	Legend  []LegendEntry `json:"legend"`
}

var popupColumns = []struct{ col, icon string }{
	{ColLocalidade, "📍"},
	{ColVazao, "💧"},
	{ColVazaoEstimada, "📊"},
	{ColMonitorado, "🛰️"},
	{ColInstalado, "⚙️"},
	{ColStatus, "✅"},
	{ColCaixas, "📦"},
	{ColObservacoes, "📝"},
}

// OthersLabel is the legend row for statuses without a dedicated color.
const OthersLabel = "Outros"

// Markers builds one marker per record with parseable coordinates. Markers
// are empty when the sheet lacks the latitude or longitude column.
func Markers(ds *Dataset, vocab *Vocabulary) MarkerSet {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	set := MarkerSet{Markers: []Marker{}, Legend: Legend(vocab)}
	if !ds.Has(ColLatitude) || !ds.Has(ColLongitude) {
		return set
	}

	var b Bounds
	for _, r := range ds.Records {
		lat, lon, ok := r.Coordinates()
		if !ok {
			continue
		}
		status := r.Cells[ColStatus]
		set.Markers = append(set.Markers, Marker{
			Row:     r.Row,
			Lat:     lat,
			Lon:     lon,
			Status:  status,
			Color:   vocab.StatusColor(status),
			Tooltip: Tooltip(r),
			Popup:   Popup(ds, r),
		})
		if len(set.Markers) == 1 {
			b = Bounds{South: lat, West: lon, North: lat, East: lon}
			continue
		}
		b.South = math.Min(b.South, lat)
		b.North = math.Max(b.North, lat)
		b.West = math.Min(b.West, lon)
		b.East = math.Max(b.East, lon)
	}
	if len(set.Markers) > 0 {
		set.Bounds = &b
	}
	return set
}

// Tooltip is the hover text, "Localidade • Status".
func Tooltip(r Record) string {
	text, ok := r.Cells[ColLocalidade]
	if !ok {
		text = "Poço"
	}
	if status, ok := r.Cells[ColStatus]; ok {
		text += " • " + status
	}
	return text
}

// Popup lists the popup lines for r, skipping columns the sheet lacks.
func Popup(ds *Dataset, r Record) []PopupField {
	fields := make([]PopupField, 0, len(popupColumns))
	for _, pc := range popupColumns {
		if !ds.Has(pc.col) {
			continue
		}
		fields = append(fields, PopupField{Icon: pc.icon, Label: pc.col, Value: popupValue(r, pc.col)})
	}
	return fields
}

func popupValue(r Record, col string) string {
	raw, ok := r.Cells[col]
	if !ok {
		return Null
	}
	switch col {
	case ColVazao, ColVazaoEstimada:
		if v, ok := ToFloat(raw); ok {
			return FormatFlowBR(v)
		}
	case ColCaixas:
		if v, ok := ToFloat(raw); ok {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return raw
}

// Legend lists the known statuses in legend order followed by "Outros".
func Legend(vocab *Vocabulary) []LegendEntry {
	entries := make([]LegendEntry, 0, len(vocab.StatusOrder)+1)
	listed := make(map[string]bool, len(vocab.StatusOrder))
	for _, s := range vocab.StatusOrder {
		entries = append(entries, LegendEntry{Label: s, Color: vocab.StatusColor(s)})
		listed[s] = true
	}
	extra := make([]string, 0)
	for s := range vocab.StatusColors {
		if !listed[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	for _, s := range extra {
		entries = append(entries, LegendEntry{Label: s, Color: vocab.StatusColors[s]})
	}
	return append(entries, LegendEntry{Label: OthersLabel, Color: vocab.DefaultColor})
}
