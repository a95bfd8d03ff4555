package wells

import "sort"

// Options lists the values offered by each filter widget.
type Options struct {
	Years      []int    `json:"anos"`
	Months     []string `json:"meses"`
	Municipios []string `json:"municipios"`
	Bairros    []string `json:"bairros"`
	Monitorado []string `json:"monitorado"`
	Instalado  []string `json:"instalado"`
	Status     []string `json:"status"`
}

// FilterOptions collects the distinct values present in ds. Months come
// back in calendar order, everything else sorted.
func FilterOptions(ds *Dataset) Options {
	opts := Options{
		Years:      []int{},
		Months:     []string{},
		Municipios: ds.distinct(ColMunicipio),
		Bairros:    ds.distinct(ColBairro),
		Monitorado: ds.distinct(ColMonitorado),
		Instalado:  ds.distinct(ColInstalado),
		Status:     ds.distinct(ColStatus),
	}

	years := make(map[int]struct{})
	months := make(map[int]struct{})
	for _, r := range ds.Records {
		if y, ok := r.VisitYear(); ok {
			years[y] = struct{}{}
		}
		if !r.Visited.IsZero() {
			months[int(r.Visited.Month())] = struct{}{}
		}
	}
	for y := range years {
		opts.Years = append(opts.Years, y)
	}
	sort.Ints(opts.Years)
	for m := 1; m <= 12; m++ {
		if _, ok := months[m]; ok {
			opts.Months = append(opts.Months, MonthNames[m-1])
		}
	}
	return opts
}

// Filter is the set of widget selections. An empty selection means the
// widget imposes nothing, which is how the year, month, Monitorado and
// Instalado toggles are switched off. A non-empty selection never matches a
// null cell, so selecting every option still drops rows where the column is
// blank.
type Filter struct {
	Years      []int    `json:"anos,omitempty"`
	Months     []string `json:"meses,omitempty"`
	Municipios []string `json:"municipios,omitempty"`
	Bairros    []string `json:"bairros,omitempty"`
	Monitorado []string `json:"monitorado,omitempty"`
	Instalado  []string `json:"instalado,omitempty"`
	Status     []string `json:"status,omitempty"`
}

// DefaultFilter is the selection the dashboard opens with: every Município,
// Bairro and Status option selected, toggled widgets off. Rows with a blank
// value in one of those columns are therefore left out until the user
// clears the selection.
func DefaultFilter(ds *Dataset) Filter {
	if ds == nil {
		return Filter{}
	}
	opts := FilterOptions(ds)
	return Filter{
		Municipios: opts.Municipios,
		Bairros:    opts.Bairros,
		Status:     opts.Status,
	}
}

// IsZero reports whether the filter selects everything.
func (f Filter) IsZero() bool {
	return len(f.Years) == 0 && len(f.Months) == 0 && len(f.Municipios) == 0 &&
		len(f.Bairros) == 0 && len(f.Monitorado) == 0 && len(f.Instalado) == 0 &&
		len(f.Status) == 0
}

// Apply returns the records of ds that satisfy every active selection.
// A record with a null value never matches an active selection. Selections
// over a column the sheet lacks, or over a column with no values at all,
// are ignored.
func Apply(ds *Dataset, f Filter) *Dataset {
	if ds == nil {
		return nil
	}
	type predicate func(Record) bool
	var preds []predicate

	if len(f.Years) > 0 {
		set := make(map[int]struct{}, len(f.Years))
		for _, y := range f.Years {
			set[y] = struct{}{}
		}
		preds = append(preds, func(r Record) bool {
			y, ok := r.VisitYear()
			if !ok {
				return false
			}
			_, hit := set[y]
			return hit
		})
	}
	if len(f.Months) > 0 {
		set := stringSet(f.Months)
		preds = append(preds, func(r Record) bool {
			m, ok := r.VisitMonth()
			if !ok {
				return false
			}
			_, hit := set[m]
			return hit
		})
	}

	cellFilters := []struct {
		col string
		sel []string
	}{
		{ColMunicipio, f.Municipios},
		{ColBairro, f.Bairros},
		{ColMonitorado, f.Monitorado},
		{ColInstalado, f.Instalado},
		{ColStatus, f.Status},
	}
	for _, cf := range cellFilters {
		if len(cf.sel) == 0 || !ds.Has(cf.col) || !ds.hasAny(cf.col) {
			continue
		}
		col, set := cf.col, stringSet(cf.sel)
		preds = append(preds, func(r Record) bool {
			v, ok := r.Cells[col]
			if !ok {
				return false
			}
			_, hit := set[v]
			return hit
		})
	}

	if len(preds) == 0 {
		return ds.withRecords(append([]Record(nil), ds.Records...))
	}
	out := make([]Record, 0, len(ds.Records))
next:
	for _, r := range ds.Records {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return ds.withRecords(out)
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
