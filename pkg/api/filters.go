package api

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"pocos-map/pkg/wells"
)

// Filter query parameters. A selection of several values repeats the
// parameter; values are taken whole so names with commas survive.
const (
	paramAno        = "ano"
	paramMes        = "mes"
	paramMunicipio  = "municipio"
	paramBairro     = "bairro"
	paramMonitorado = "monitorado"
	paramInstalado  = "instalado"
	paramStatus     = "status"
)

var filterParams = []string{paramAno, paramMes, paramMunicipio, paramBairro, paramMonitorado, paramInstalado, paramStatus}

// ParseFilter reads the widget selections from q. Unparseable years are
// dropped.
func ParseFilter(q url.Values) wells.Filter {
	var f wells.Filter
	for _, s := range values(q, paramAno) {
		if y, err := strconv.Atoi(s); err == nil {
			f.Years = append(f.Years, y)
		}
	}
	f.Months = values(q, paramMes)
	f.Municipios = values(q, paramMunicipio)
	f.Bairros = values(q, paramBairro)
	f.Monitorado = values(q, paramMonitorado)
	f.Instalado = values(q, paramInstalado)
	f.Status = values(q, paramStatus)
	return f
}

// FilterFor is ParseFilter with the dashboard defaults applied: an absent
// municipio, bairro or status parameter means every option of ds is
// selected. Sending the parameter empty ("bairro=") clears the selection.
func FilterFor(q url.Values, ds *wells.Dataset) wells.Filter {
	f := ParseFilter(q)
	def := wells.DefaultFilter(ds)
	if _, ok := q[paramMunicipio]; !ok {
		f.Municipios = def.Municipios
	}
	if _, ok := q[paramBairro]; !ok {
		f.Bairros = def.Bairros
	}
	if _, ok := q[paramStatus]; !ok {
		f.Status = def.Status
	}
	return f
}

func values(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// filterKey is a canonical form of the filter parameters for cache keys, so
// reordered selections share an entry. A parameter sent empty is kept apart
// from an absent one since FilterFor treats them differently.
func filterKey(q url.Values) string {
	var b strings.Builder
	for _, p := range filterParams {
		if _, ok := q[p]; !ok {
			continue
		}
		vs := values(q, p)
		sort.Strings(vs)
		b.WriteString(p)
		for _, v := range vs {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
		b.WriteByte('&')
	}
	return b.String()
}
