package wells

import (
	"sort"
	"strconv"
	"strings"
)

// KPI holds the four headline indicators.
type KPI struct {
	TotalWells         int     `json:"totalPocos"`
	TotalFlow          float64 `json:"totalVazao"`
	TotalEstimatedFlow float64 `json:"totalVazaoEstimada"`
	TotalBoxes         float64 `json:"totalCaixas"`
}

var (
	kpiFirstColumns = []string{ColLocalidade, ColMunicipio, ColBairro, ColMonitorado, ColInstalado, ColStatus}
	kpiMaxColumns   = []string{ColVazao, ColVazaoEstimada, ColCaixas}
)

// wellKey identifies a physical well by its Latitude_2 cell. Numeric cells
// compare by value so "-5.45" and "-5,450" collapse together.
type wellKey struct {
	numeric bool
	num     float64
	text    string
}

func keyOf(raw string) wellKey {
	if v, ok := ToFloat(raw); ok {
		return wellKey{numeric: true, num: v}
	}
	return wellKey{text: strings.TrimSpace(raw)}
}

func (k wellKey) less(o wellKey) bool {
	if k.numeric != o.numeric {
		return k.numeric
	}
	if k.numeric {
		return k.num < o.num
	}
	return k.text < o.text
}

// AggregateKPI collapses repeated readings of the same well. Records sharing
// a Latitude_2 value become one record whose categorical columns take the
// first non-null value and whose flow and box columns take the maximum
// reading. Records without Latitude_2 are appended unchanged after the
// grouped ones. Without a Latitude_2 column the records are returned as is.
func AggregateKPI(ds *Dataset) []Record {
	if ds == nil {
		return nil
	}
	if !ds.Has(ColLatitude2) {
		return append([]Record(nil), ds.Records...)
	}

	type group struct {
		key    wellKey
		rec    Record
		maxima map[string]float64
	}
	groups := make(map[wellKey]*group)
	var nullPart []Record

	for _, r := range ds.Records {
		raw, ok := r.Cells[ColLatitude2]
		if !ok {
			nullPart = append(nullPart, r)
			continue
		}
		k := keyOf(raw)
		g, ok := groups[k]
		if !ok {
			g = &group{
				key:    k,
				rec:    Record{Row: r.Row, Cells: map[string]string{ColLatitude2: raw}},
				maxima: make(map[string]float64),
			}
			groups[k] = g
		}
		for _, col := range kpiFirstColumns {
			if _, set := g.rec.Cells[col]; set {
				continue
			}
			if v, ok := r.Cells[col]; ok {
				g.rec.Cells[col] = v
			}
		}
		for _, col := range kpiMaxColumns {
			v, ok := r.Number(col)
			if !ok {
				continue
			}
			if cur, seen := g.maxima[col]; !seen || v > cur {
				g.maxima[col] = v
			}
		}
		if g.rec.Visited.Before(r.Visited) {
			g.rec.Visited = r.Visited
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].key.less(ordered[j].key) })

	out := make([]Record, 0, len(ordered)+len(nullPart))
	for _, g := range ordered {
		for col, v := range g.maxima {
			g.rec.Cells[col] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		out = append(out, g.rec)
	}
	return append(out, nullPart...)
}

// ComputeKPI aggregates ds per well and totals the indicators.
func ComputeKPI(ds *Dataset) KPI {
	recs := AggregateKPI(ds)
	var k KPI
	if ds.Has(ColLocalidade) {
		for _, r := range recs {
			if _, ok := r.Cells[ColLocalidade]; ok {
				k.TotalWells++
			}
		}
	} else {
		k.TotalWells = len(recs)
	}
	k.TotalFlow = sumColumn(recs, ColVazao)
	k.TotalEstimatedFlow = sumColumn(recs, ColVazaoEstimada)
	k.TotalBoxes = sumColumn(recs, ColCaixas)
	return k
}

// sumColumn adds every parseable value of col; unparseable cells count as 0.
func sumColumn(recs []Record, col string) float64 {
	total := 0.0
	for _, r := range recs {
		if v, ok := r.Number(col); ok {
			total += v
		}
	}
	return total
}
