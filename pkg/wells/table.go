package wells

import (
	"fmt"
	"math"
	"strconv"
)

// TableColumns is the report column order. Columns missing from the sheet
// are left out.
var TableColumns = []string{
	ColAno, ColMunicipio, ColLocalidade, ColBairro, ColProfundidade,
	ColVazao, ColVazaoEstimada, ColCloretos, ColMonitorado,
	ColInstalado, ColStatus, ColObservacoes,
}

var (
	numericTableColumns = map[string]bool{ColVazao: true, ColVazaoEstimada: true, ColCloretos: true}
	gradientColumns     = []string{ColVazao, ColVazaoEstimada}
)

// TableCell is one rendered cell. Raw is the sheet text, Number is set for
// numeric report columns whose text parsed.
type TableCell struct {
	Text       string   `json:"text"`
	Raw        string   `json:"raw,omitempty"`
	Number     *float64 `json:"number,omitempty"`
	Background string   `json:"background,omitempty"`
	Color      string   `json:"color,omitempty"`
}

// TableRow is one report row.
type TableRow struct {
	Row   int         `json:"row"`
	Cells []TableCell `json:"cells"`
}

// TableView is the detailed report.
type TableView struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// Table renders the report for ds. Flow columns are shaded on a blue scale
// between the column minimum and maximum.
func Table(ds *Dataset) TableView {
	view := TableView{Columns: []string{}, Rows: []TableRow{}}
	for _, c := range TableColumns {
		if ds.Has(c) {
			view.Columns = append(view.Columns, c)
		}
	}
	if ds == nil {
		return view
	}

	for _, r := range ds.Records {
		row := TableRow{Row: r.Row, Cells: make([]TableCell, len(view.Columns))}
		for i, col := range view.Columns {
			row.Cells[i] = tableCell(r, col)
		}
		view.Rows = append(view.Rows, row)
	}

	for i, col := range view.Columns {
		for _, g := range gradientColumns {
			if col == g {
				shadeColumn(view.Rows, i)
			}
		}
	}
	return view
}

func tableCell(r Record, col string) TableCell {
	raw, ok := r.Cells[col]
	if !ok {
		return TableCell{Text: Null}
	}
	if !numericTableColumns[col] {
		return TableCell{Text: raw, Raw: raw}
	}
	v, ok := ToFloat(raw)
	if !ok {
		return TableCell{Text: Null, Raw: raw}
	}
	cell := TableCell{Raw: raw, Number: &v}
	if col == ColCloretos {
		cell.Text = strconv.FormatFloat(v, 'f', 2, 64)
	} else {
		cell.Text = FormatEN(v, 0) + " L/h"
	}
	return cell
}

func shadeColumn(rows []TableRow, idx int) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range rows {
		if n := row.Cells[idx].Number; n != nil {
			lo = math.Min(lo, *n)
			hi = math.Max(hi, *n)
		}
	}
	if math.IsInf(lo, 1) {
		return
	}
	for i := range rows {
		c := &rows[i].Cells[idx]
		if c.Number == nil {
			continue
		}
		t := 0.0
		if hi > lo {
			t = (*c.Number - lo) / (hi - lo)
		}
		c.Background, c.Color = BluesColor(t)
	}
}

// bluesStops are the nine ColorBrewer "Blues" anchors.
var bluesStops = [9][3]float64{
	{0xf7, 0xfb, 0xff},
	{0xde, 0xeb, 0xf7},
	{0xc6, 0xdb, 0xef},
	{0x9e, 0xca, 0xe1},
	{0x6b, 0xae, 0xd6},
	{0x42, 0x92, 0xc6},
	{0x21, 0x71, 0xb5},
	{0x08, 0x51, 0x9c},
	{0x08, 0x30, 0x6b},
}

// darkTextThreshold is the relative luminance below which text turns light.
const darkTextThreshold = 0.408

// BluesColor maps t in [0,1] onto the Blues scale, quantized to 256 levels,
// and picks a readable text color for that background.
func BluesColor(t float64) (background, text string) {
	t = math.Max(0, math.Min(1, t))
	level := int(t * 256)
	if level > 255 {
		level = 255
	}
	pos := float64(level) / 255 * float64(len(bluesStops)-1)
	i := int(pos)
	if i >= len(bluesStops)-1 {
		i = len(bluesStops) - 2
	}
	frac := pos - float64(i)
	var rgb [3]float64
	for k := 0; k < 3; k++ {
		rgb[k] = bluesStops[i][k] + (bluesStops[i+1][k]-bluesStops[i][k])*frac
	}
	background = fmt.Sprintf("#%02x%02x%02x", int(math.Round(rgb[0])), int(math.Round(rgb[1])), int(math.Round(rgb[2])))
	text = "#000000"
	if relativeLuminance(rgb) < darkTextThreshold {
		text = "#f1f1f1"
	}
	return background, text
}

func relativeLuminance(rgb [3]float64) float64 {
	lin := func(c float64) float64 {
		c /= 255
		if c <= 0.04045 {
			return c / 12.92
		}
		return math.Pow((c+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(rgb[0]) + 0.7152*lin(rgb[1]) + 0.0722*lin(rgb[2])
}
