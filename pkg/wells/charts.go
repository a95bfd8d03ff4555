package wells

import "sort"

// ChartState says whether a chart has data or which empty message applies.
type ChartState string

const (
	ChartOK           ChartState = "ok"
	ChartUnavailable  ChartState = "unavailable"
	ChartEmpty        ChartState = "empty"
	ChartEmptyNumeric ChartState = "empty_numeric"
)

// Count is the number of records carrying one value.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"contagem"`
}

// YearCount is a count stratified by visit year.
type YearCount struct {
	Year  int    `json:"Ano_visita"`
	Value string `json:"value"`
	Count int    `json:"contagem"`
}

// YearTotal is a per-year total.
type YearTotal struct {
	Year  int     `json:"Ano_visita"`
	Total float64 `json:"total"`
}

// CountSeries is the data behind a plain distribution chart.
type CountSeries struct {
	Column string     `json:"column"`
	State  ChartState `json:"state"`
	Counts []Count    `json:"counts"`
}

// YearSeries is the data behind a chart stratified by visit year.
type YearSeries struct {
	Column string      `json:"column"`
	State  ChartState  `json:"state"`
	Counts []YearCount `json:"counts,omitempty"`
	Totals []YearTotal `json:"totals"`
}

// CountBy counts records per non-null value of col, largest first. Ties
// keep value order.
func CountBy(ds *Dataset, col string) CountSeries {
	s := CountSeries{Column: col, Counts: []Count{}}
	if !ds.Has(col) {
		s.State = ChartUnavailable
		return s
	}
	counts := make(map[string]int)
	for _, r := range ds.Records {
		if v, ok := r.Cells[col]; ok {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		s.State = ChartEmpty
		return s
	}
	for v, n := range counts {
		s.Counts = append(s.Counts, Count{Value: v, Count: n})
	}
	sort.Slice(s.Counts, func(i, j int) bool {
		if s.Counts[i].Count != s.Counts[j].Count {
			return s.Counts[i].Count > s.Counts[j].Count
		}
		return s.Counts[i].Value < s.Counts[j].Value
	})
	s.State = ChartOK
	return s
}

// StatusByYear counts records per (visit year, col value) and totals each
// year. Records missing either the year or the value are dropped.
func StatusByYear(ds *Dataset, col string) YearSeries {
	s := YearSeries{Column: col, Totals: []YearTotal{}}
	if !ds.Has(col) {
		s.State = ChartUnavailable
		return s
	}
	type key struct {
		year  int
		value string
	}
	counts := make(map[key]int)
	totals := make(map[int]float64)
	for _, r := range ds.Records {
		y, ok := r.VisitYear()
		if !ok {
			continue
		}
		v, ok := r.Cells[col]
		if !ok {
			continue
		}
		counts[key{y, v}]++
		totals[y]++
	}
	if len(counts) == 0 {
		s.State = ChartEmpty
		return s
	}
	for k, n := range counts {
		s.Counts = append(s.Counts, YearCount{Year: k.year, Value: k.value, Count: n})
	}
	sort.Slice(s.Counts, func(i, j int) bool {
		if s.Counts[i].Year != s.Counts[j].Year {
			return s.Counts[i].Year < s.Counts[j].Year
		}
		return s.Counts[i].Value < s.Counts[j].Value
	})
	s.Totals = sortedTotals(totals)
	s.State = ChartOK
	return s
}

// BoxesByYear sums numeric Caixas_apoio per visit year. It distinguishes a
// filter state with no box readings at all from one whose readings are all
// non-numeric.
func BoxesByYear(ds *Dataset) YearSeries {
	s := YearSeries{Column: ColCaixas, Totals: []YearTotal{}}
	if !ds.Has(ColCaixas) || !ds.Has(ColAnoVisita) {
		s.State = ChartUnavailable
		return s
	}
	seen := false
	totals := make(map[int]float64)
	for _, r := range ds.Records {
		y, ok := r.VisitYear()
		if !ok {
			continue
		}
		raw, ok := r.Cells[ColCaixas]
		if !ok {
			continue
		}
		seen = true
		if v, ok := ToFloat(raw); ok {
			totals[y] += v
		}
	}
	switch {
	case !seen:
		s.State = ChartEmpty
	case len(totals) == 0:
		s.State = ChartEmptyNumeric
	default:
		s.Totals = sortedTotals(totals)
		s.State = ChartOK
	}
	return s
}

func sortedTotals(m map[int]float64) []YearTotal {
	out := make([]YearTotal, 0, len(m))
	for y, t := range m {
		out = append(out, YearTotal{Year: y, Total: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
