// Package vegalite turns the chart series computed by package wells into
// Vega-Lite v5 specifications the browser renders with vega-embed.
package vegalite

import (
	"fmt"

	"pocos-map/pkg/wells"
)

// Schema is the Vega-Lite schema URL every spec declares.
const Schema = "https://vega.github.io/schema/vega-lite/v5.json"

const (
	font   = "Segoe UI"
	height = 300
)

// Spec is a Vega-Lite specification. It is a plain map so it marshals
// straight to the JSON vega-embed expects.
type Spec map[string]any

// Palettes per column, falling back to DefaultPalette.
var (
	Palettes = map[string][]string{
		wells.ColMonitorado: {"#74b9ff", "#0984e3", "#6c5ce7"},
		wells.ColInstalado:  {"#00b894", "#00cec9", "#55efc4"},
		wells.ColStatus:     {"#00b894", "#e17055", "#636e72", "#d63031", "#6c5ce7"},
	}
	DefaultPalette = []string{"#74b9ff", "#0984e3"}
)

// Chart is one dashboard tile: a spec when there is data, a message otherwise.
type Chart struct {
	Key     string           `json:"key"`
	Title   string           `json:"title"`
	State   wells.ChartState `json:"state"`
	Message string           `json:"message,omitempty"`
	Spec    Spec             `json:"spec,omitempty"`
}

// Dashboard builds the four tiles in display order: status by year and
// boxes by year on the first row, Monitorado and Instalado below.
func Dashboard(ds *wells.Dataset) []Chart {
	return []Chart{
		StatusChart(wells.StatusByYear(ds, wells.ColStatus), "Status"),
		BoxesChart(wells.BoxesByYear(ds)),
		DistributionChart(wells.CountBy(ds, wells.ColMonitorado), "Monitoramento"),
		DistributionChart(wells.CountBy(ds, wells.ColInstalado), "Instalação"),
	}
}

func palette(col string) []string {
	if p, ok := Palettes[col]; ok {
		return p
	}
	return DefaultPalette
}

func countMessage(state wells.ChartState, title string) string {
	switch state {
	case wells.ChartUnavailable:
		return fmt.Sprintf("📋 Dados de %s não disponíveis", title)
	case wells.ChartEmpty:
		return fmt.Sprintf("📊 Sem dados de %s para os filtros atuais", title)
	}
	return ""
}

// StatusChart stacks per-year counts of a categorical column and prints the
// yearly total above each bar.
func StatusChart(s wells.YearSeries, title string) Chart {
	c := Chart{Key: "status_ano", Title: fmt.Sprintf("Distribuição de %s por ano da visita", title), State: s.State}
	if s.State != wells.ChartOK {
		c.Message = countMessage(s.State, title)
		return c
	}

	values := make([]map[string]any, 0, len(s.Counts))
	for _, yc := range s.Counts {
		values = append(values, map[string]any{"Ano_visita": yc.Year, s.Column: yc.Value, "contagem": yc.Count})
	}
	totals := make([]map[string]any, 0, len(s.Totals))
	for _, yt := range s.Totals {
		totals = append(totals, map[string]any{"Ano_visita": yt.Year, "total": yt.Total})
	}
	xYear := map[string]any{"field": "Ano_visita", "type": "ordinal", "title": "Ano da visita"}

	bars := Spec{
		"data": map[string]any{"values": values},
		"mark": map[string]any{"type": "bar", "cornerRadius": 6},
		"encoding": map[string]any{
			"x": xYear,
			"y": map[string]any{"field": "contagem", "type": "quantitative", "title": "Quantidade de Poços"},
			"color": map[string]any{
				"field":  s.Column,
				"type":   "nominal",
				"scale":  map[string]any{"range": palette(s.Column)},
				"legend": map[string]any{"title": title},
			},
			"tooltip": []map[string]any{
				{"field": "Ano_visita", "type": "ordinal", "title": "Ano"},
				{"field": s.Column, "type": "nominal", "title": title},
				{"field": "contagem", "type": "quantitative", "title": "Poços"},
			},
		},
	}
	labels := Spec{
		"data": map[string]any{"values": totals},
		"mark": map[string]any{"type": "text", "dy": -10, "fontSize": 14, "fontWeight": "bold", "color": "#2d3436"},
		"encoding": map[string]any{
			"x":    xYear,
			"y":    map[string]any{"field": "total", "type": "quantitative"},
			"text": map[string]any{"field": "total", "type": "quantitative", "format": "d"},
		},
	}

	c.Spec = frame(c.Title, true)
	c.Spec["layer"] = []Spec{bars, labels}
	return c
}

// BoxesChart plots the summed support boxes per visit year.
func BoxesChart(s wells.YearSeries) Chart {
	c := Chart{Key: "caixas_ano", Title: "Caixas de apoio por ano da visita", State: s.State}
	switch s.State {
	case wells.ChartUnavailable:
		c.Message = "📋 Dados de Caixas de apoio por ano não disponíveis"
		return c
	case wells.ChartEmpty:
		c.Message = "📊 Sem dados de Caixas de apoio para os filtros atuais"
		return c
	case wells.ChartEmptyNumeric:
		c.Message = "📊 Sem dados numéricos de Caixas de apoio para os filtros atuais"
		return c
	}

	values := make([]map[string]any, 0, len(s.Totals))
	for _, yt := range s.Totals {
		values = append(values, map[string]any{"Ano_visita": yt.Year, "total_caixas": yt.Total})
	}
	c.Spec = frame(c.Title, false)
	c.Spec["data"] = map[string]any{"values": values}
	c.Spec["mark"] = map[string]any{"type": "bar", "cornerRadius": 6}
	c.Spec["encoding"] = map[string]any{
		"x": map[string]any{"field": "Ano_visita", "type": "ordinal", "title": "Ano da visita"},
		"y": map[string]any{"field": "total_caixas", "type": "quantitative", "title": "Total de caixas de apoio"},
		"tooltip": []map[string]any{
			{"field": "Ano_visita", "type": "ordinal", "title": "Ano"},
			{"field": "total_caixas", "type": "quantitative", "title": "Caixas de apoio"},
		},
	}
	return c
}

// DistributionChart draws one bar per value, tallest first.
func DistributionChart(s wells.CountSeries, title string) Chart {
	c := Chart{Key: s.Column, Title: "Distribuição por " + title, State: s.State}
	if s.State != wells.ChartOK {
		c.Message = countMessage(s.State, title)
		return c
	}

	values := make([]map[string]any, 0, len(s.Counts))
	for _, cnt := range s.Counts {
		values = append(values, map[string]any{s.Column: cnt.Value, "contagem": cnt.Count})
	}
	c.Spec = frame(c.Title, true)
	c.Spec["data"] = map[string]any{"values": values}
	c.Spec["mark"] = map[string]any{"type": "bar", "cornerRadius": 8}
	c.Spec["encoding"] = map[string]any{
		"x": map[string]any{
			"field": s.Column, "type": "nominal", "title": "", "sort": "-y",
			"axis": map[string]any{"labelAngle": 0},
		},
		"y": map[string]any{"field": "contagem", "type": "quantitative", "title": "Quantidade de Poços"},
		"color": map[string]any{
			"field":  s.Column,
			"type":   "nominal",
			"scale":  map[string]any{"range": palette(s.Column)},
			"legend": map[string]any{"title": title},
		},
		"tooltip": []map[string]any{
			{"field": s.Column, "type": "nominal", "title": title},
			{"field": "contagem", "type": "quantitative", "title": "Poços"},
		},
	}
	return c
}

// frame is the shared top level: schema, size, title and fonts.
func frame(title string, legend bool) Spec {
	config := map[string]any{
		"title": map[string]any{"fontSize": 16, "font": font, "anchor": "middle"},
		"axis":  map[string]any{"labelFont": font, "titleFont": font},
	}
	if legend {
		config["legend"] = map[string]any{"labelFont": font, "titleFont": font}
	}
	return Spec{
		"$schema": Schema,
		"width":   "container",
		"height":  height,
		"title":   title,
		"config":  config,
	}
}
