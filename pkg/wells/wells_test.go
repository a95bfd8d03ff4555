package wells

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureHeader = []string{
	"\ufeffAno", "Município", "Localidade", "Bairro", "Monitorado", "Instalado",
	"Status", "Data_visita", "Vazão_LH", "Caixas_apoio", "latitude", "longitude",
	"Latitude_2", "Link da Foto",
}

var fixtureRows = [][]string{
	{"2023", "Pedra Branca", "Sítio Alto", "Centro", "sim", "SIM", "instalado", "15/03/2023", "1234,5", "2", "-5.45", "-39.70", "-5.45", "https://drive.google.com/file/d/1AbCdEfGhIjK/view"},
	{"2023", "Pedra Branca", "Sítio Alto", "Centro", "Sim", "nao", "nao_instalado", "2024-01-10", "900", "3", "-5.45", "-39.70", "-5,45", "https://drive.google.com/file/d/1AbCdEfGhIjK/view"},
	{"2024", "Pedra Branca", "Lagoa", "Norte", "NÃO", "não", " Obstruído ", "02/07/2024 10:30", "abc", "", "-5.30", "-39.60", "-5.30", "https://example.com/foto.jpg"},
	{"2024", "Mombaça", "", "Sul", "", "", "desconhecido", "", "50", "1", "x", "-39.90", "", ""},
}

func fixture(t *testing.T) *Dataset {
	t.Helper()
	return Normalize(fixtureHeader, fixtureRows, nil)
}

func TestToFloat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{" 1,5 ", 1.5, true},
		{"-5.45", -5.45, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"1.234,5", 0, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ToFloat(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ToFloat(%q)=%v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestParseVisitDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Time
	}{
		{"15/03/2023", time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-01-10", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"02/07/2024 10:30", time.Date(2024, 7, 2, 10, 30, 0, 0, time.UTC)},
		{"03/04/2024", time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)},
		{"2024-01-10 08:15:00", time.Date(2024, 1, 10, 8, 15, 0, 0, time.UTC)},
		{"ontem", time.Time{}},
		{"", time.Time{}},
	}
	for _, tc := range tests {
		if got := ParseVisitDate(tc.in); !got.Equal(tc.want) {
			t.Errorf("ParseVisitDate(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	ds := fixture(t)
	require.Equal(t, 4, ds.Len())
	assert.True(t, ds.Has(ColAno), "BOM must be stripped from the first header")
	assert.True(t, ds.Has(ColAnoVisita))
	assert.False(t, ds.Has(ColVazaoEstimada))

	r0, r1, r2, r3 := ds.Records[0], ds.Records[1], ds.Records[2], ds.Records[3]
	assert.Equal(t, "Sim", r0.Cells[ColMonitorado])
	assert.Equal(t, "Sim", r0.Cells[ColInstalado])
	assert.Equal(t, "Instalado", r0.Cells[ColStatus])
	assert.Equal(t, "Não", r1.Cells[ColInstalado])
	assert.Equal(t, "Não instalado", r1.Cells[ColStatus])
	assert.Equal(t, "Não", r2.Cells[ColMonitorado])
	assert.Equal(t, "Obstruído", r2.Cells[ColStatus])
	assert.Equal(t, "desconhecido", r3.Cells[ColStatus], "unknown values pass through")

	_, ok := r3.Value(ColLocalidade)
	assert.False(t, ok, "empty cells are null")

	m, ok := r2.VisitMonth()
	require.True(t, ok)
	assert.Equal(t, "Jul", m)
	_, ok = r3.VisitYear()
	assert.False(t, ok)
}

func TestNormalizeWithoutVisitColumn(t *testing.T) {
	t.Parallel()
	ds := Normalize([]string{"Localidade"}, [][]string{{"A"}}, nil)
	assert.True(t, ds.Has(ColAnoVisita))
	assert.True(t, ds.Has(ColMesVisita))
	opts := FilterOptions(ds)
	assert.Empty(t, opts.Years)
	assert.Empty(t, opts.Months)
}

func TestFilterOptions(t *testing.T) {
	t.Parallel()
	got := FilterOptions(fixture(t))
	want := Options{
		Years:      []int{2023, 2024},
		Months:     []string{"Jan", "Mar", "Jul"},
		Municipios: []string{"Mombaça", "Pedra Branca"},
		Bairros:    []string{"Centro", "Norte", "Sul"},
		Monitorado: []string{"Não", "Sim"},
		Instalado:  []string{"Não", "Sim"},
		Status:     []string{"Instalado", "Não instalado", "Obstruído", "desconhecido"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FilterOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	ds := fixture(t)
	tests := []struct {
		name string
		f    Filter
		want []int
	}{
		{"zero filter keeps all", Filter{}, []int{0, 1, 2, 3}},
		{"year", Filter{Years: []int{2024}}, []int{1, 2}},
		{"month", Filter{Months: []string{"Mar", "Jul"}}, []int{0, 2}},
		{"null never matches", Filter{Monitorado: []string{"Sim", "Não"}}, []int{0, 1, 2}},
		{"combined", Filter{Municipios: []string{"Pedra Branca"}, Status: []string{"Instalado", "Obstruído"}}, []int{0, 2}},
		{"bairro and instalado", Filter{Bairros: []string{"Centro"}, Instalado: []string{"Não"}}, []int{1}},
		{"no match", Filter{Years: []int{1999}}, []int{}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := make([]int, 0)
			for _, r := range Apply(ds, tc.f).Records {
				got = append(got, r.Row)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Apply rows (-want +got):\n%s", diff)
			}
		})
	}
	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{Status: []string{"x"}}.IsZero())
}

func TestDefaultFilterSelectsEveryOption(t *testing.T) {
	t.Parallel()
	ds := Normalize([]string{"Localidade", "Município", "Bairro", "Status", "Vazão_LH"}, [][]string{
		{"Sítio Alto", "Pedra Branca", "Centro", "instalado", "100"},
		{"Lagoa", "Pedra Branca", "", "obstruido", "200"},
		{"Serra", "", "Sul", "Instalado", "50"},
	}, nil)

	def := DefaultFilter(ds)
	assert.Equal(t, []string{"Pedra Branca"}, def.Municipios)
	assert.Equal(t, []string{"Centro", "Sul"}, def.Bairros)
	assert.Equal(t, []string{"Instalado", "Obstruído"}, def.Status)
	assert.Empty(t, def.Years)
	assert.Empty(t, def.Monitorado)

	// Selecting every option is not the same as selecting nothing: blank
	// cells drop out.
	assert.Equal(t, 3, Apply(ds, Filter{}).Len())
	opened := Apply(ds, def)
	require.Equal(t, 1, opened.Len())
	assert.Equal(t, "Sítio Alto", opened.Records[0].Cells[ColLocalidade])
	assert.Equal(t, 100.0, ComputeKPI(opened).TotalFlow)

	assert.Equal(t, Filter{}, DefaultFilter(nil))
}

func TestApplyIgnoresColumnWithoutValues(t *testing.T) {
	t.Parallel()
	ds := Normalize([]string{"Localidade", "Bairro"}, [][]string{{"A", ""}, {"B", ""}}, nil)
	assert.Equal(t, 2, Apply(ds, Filter{Bairros: []string{"Centro"}}).Len())
}

func TestAggregateKPI(t *testing.T) {
	t.Parallel()
	ds := fixture(t)
	recs := AggregateKPI(ds)
	require.Len(t, recs, 3)

	// Groups sort by numeric key, null Latitude_2 rows come last.
	assert.Equal(t, "Sítio Alto", recs[0].Cells[ColLocalidade])
	assert.Equal(t, "1234.5", recs[0].Cells[ColVazao])
	assert.Equal(t, "3", recs[0].Cells[ColCaixas])
	assert.Equal(t, "Sim", recs[0].Cells[ColInstalado], "first non-null wins")
	assert.Equal(t, 2024, recs[0].Visited.Year(), "latest visit is kept")
	assert.Equal(t, "Lagoa", recs[1].Cells[ColLocalidade])
	assert.Equal(t, 3, recs[2].Row)
}

func TestComputeKPI(t *testing.T) {
	t.Parallel()
	got := ComputeKPI(fixture(t))
	want := KPI{TotalWells: 2, TotalFlow: 1234.5 + 50, TotalEstimatedFlow: 0, TotalBoxes: 3 + 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ComputeKPI (-want +got):\n%s", diff)
	}

	noKey := Normalize([]string{"Vazão_LH"}, [][]string{{"10"}, {"10"}, {""}}, nil)
	got = ComputeKPI(noKey)
	assert.Equal(t, 3, got.TotalWells)
	assert.Equal(t, 20.0, got.TotalFlow)
}

func TestNearest(t *testing.T) {
	t.Parallel()
	ds := fixture(t)
	rec, ok := Nearest(ds.Records, -5.31, -39.61)
	require.True(t, ok)
	assert.Equal(t, 2, rec.Row)

	// Rows 0 and 1 share coordinates: the earliest wins.
	rec, ok = Nearest(ds.Records, -5.45, -39.70)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Row)

	_, ok = Nearest(ds.Records[3:], 0, 0)
	assert.False(t, ok, "rows without parseable coordinates are ignored")
}

func TestFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1.234,50", FormatBR(1234.5, 2))
	assert.Equal(t, "1.234,50 L/h", FormatFlowBR(1234.5))
	assert.Equal(t, "12.000", FormatBR(12000, 0))
	assert.Equal(t, "1,234", FormatEN(1234.4, 0))
}

func TestMarkers(t *testing.T) {
	t.Parallel()
	set := Markers(fixture(t), nil)
	require.Len(t, set.Markers, 3)

	m := set.Markers[0]
	assert.Equal(t, "#00b894", m.Color)
	assert.Equal(t, "Sítio Alto • Instalado", m.Tooltip)
	want := []PopupField{
		{"📍", ColLocalidade, "Sítio Alto"},
		{"💧", ColVazao, "1.234,50 L/h"},
		{"🛰️", ColMonitorado, "Sim"},
		{"⚙️", ColInstalado, "Sim"},
		{"✅", ColStatus, "Instalado"},
		{"📦", ColCaixas, "2"},
	}
	if diff := cmp.Diff(want, m.Popup); diff != "" {
		t.Fatalf("popup (-want +got):\n%s", diff)
	}
	assert.Equal(t, "abc", set.Markers[2].Popup[1].Value, "unparseable flows are shown as typed")
	assert.Equal(t, Null, set.Markers[2].Popup[5].Value)

	require.NotNil(t, set.Bounds)
	assert.Equal(t, Bounds{South: -5.45, West: -39.70, North: -5.30, East: -39.60}, *set.Bounds)

	last := set.Legend[len(set.Legend)-1]
	assert.Equal(t, LegendEntry{Label: OthersLabel, Color: "#0984e3"}, last)
}

func TestTooltipDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Poço", Tooltip(Record{Cells: map[string]string{}}))
	assert.Equal(t, "Poço • Injetado", Tooltip(Record{Cells: map[string]string{ColStatus: "Injetado"}}))
}

func TestMarkersWithoutCoordinateColumns(t *testing.T) {
	t.Parallel()
	set := Markers(Normalize([]string{"Localidade"}, [][]string{{"A"}}, nil), nil)
	assert.Empty(t, set.Markers)
	assert.Nil(t, set.Bounds)
}

func TestHeat(t *testing.T) {
	t.Parallel()
	pts := HeatPoints(fixture(t))
	want := []HeatPoint{
		{Lat: -5.45, Lon: -39.70, Weight: 1234.5},
		{Lat: -5.45, Lon: -39.70, Weight: 900},
	}
	if diff := cmp.Diff(want, pts); diff != "" {
		t.Fatalf("HeatPoints (-want +got):\n%s", diff)
	}

	cells, sums := HeatCells(pts, 5)
	require.Len(t, cells, 1)
	assert.Equal(t, 2134.5, cells[0].Weight)
	assert.Len(t, sums, 1)

	same, none := HeatCells(pts, 0)
	assert.Equal(t, pts, same)
	assert.Nil(t, none)
}

func TestDriveID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		link string
		want string
		ok   bool
	}{
		{"https://drive.google.com/file/d/1AbCdEfGhIjK/view?usp=sharing", "1AbCdEfGhIjK", true},
		{"https://drive.google.com/open?id=ABCDEFGHIJ_x", "ABCDEFGHIJ_x", true},
		{"https://drive.google.com/uc?export=view&id=zzzzzzzzzz-9", "zzzzzzzzzz-9", true},
		{"https://drive.google.com/file/d/short/view", "", false},
		{"https://example.com/foto.jpg", "", false},
	}
	for _, tc := range tests {
		got, ok := DriveID(tc.link)
		if got != tc.want || ok != tc.ok {
			t.Errorf("DriveID(%q)=%q,%v want %q,%v", tc.link, got, ok, tc.want, tc.ok)
		}
	}
}

func TestGallery(t *testing.T) {
	t.Parallel()
	ds := fixture(t)

	view := Gallery(ds, nil)
	require.Len(t, view.Items, 2, "duplicate links collapse")
	assert.Equal(t, NoticeClickToFocus, view.Notice)
	assert.False(t, view.AutoOpen)
	assert.Equal(t, GalleryItem{
		Thumb:   "https://drive.google.com/thumbnail?id=1AbCdEfGhIjK&sz=w450",
		Src:     "https://drive.google.com/thumbnail?id=1AbCdEfGhIjK&sz=w2048",
		Caption: "Sítio Alto • Centro",
	}, view.Items[0])
	assert.Equal(t, "https://example.com/foto.jpg", view.Items[1].Thumb)

	view = Gallery(ds, &Click{Lat: -5.3, Lon: -39.6})
	require.Len(t, view.Items, 1)
	assert.Equal(t, NoticeSelected, view.Notice)
	assert.True(t, view.AutoOpen)
	require.NotNil(t, view.Selected)
	assert.Equal(t, 2, view.Selected.Row)

	view = Gallery(Apply(ds, Filter{Municipios: []string{"Mombaça"}}), nil)
	assert.Empty(t, view.Items)
	assert.Equal(t, NoticeClickForPhotos, view.Notice)

	view = Gallery(Normalize([]string{"Localidade"}, nil, nil), nil)
	assert.Equal(t, NoticeColumnMissing, view.Notice)

	noCoords := Normalize([]string{"Localidade", "Link da Foto"}, [][]string{
		{"Serra", "https://example.com/a.jpg"},
	}, nil)
	view = Gallery(noCoords, &Click{Lat: -5.3, Lon: -39.6})
	require.Len(t, view.Items, 1)
	assert.Equal(t, NoticeClickToFocus, view.Notice, "a click without coordinate columns selects nothing")
	assert.False(t, view.AutoOpen)
	assert.Nil(t, view.Selected)
}

func TestCharts(t *testing.T) {
	t.Parallel()
	ds := fixture(t)

	mon := CountBy(ds, ColMonitorado)
	require.Equal(t, ChartOK, mon.State)
	assert.Equal(t, []Count{{"Sim", 2}, {"Não", 1}}, mon.Counts)

	assert.Equal(t, ChartUnavailable, CountBy(ds, "Inexistente").State)
	assert.Equal(t, ChartEmpty, CountBy(Apply(ds, Filter{Years: []int{1999}}), ColStatus).State)

	st := StatusByYear(ds, ColStatus)
	require.Equal(t, ChartOK, st.State)
	assert.Equal(t, []YearCount{
		{Year: 2023, Value: "Instalado", Count: 1},
		{Year: 2024, Value: "Não instalado", Count: 1},
		{Year: 2024, Value: "Obstruído", Count: 1},
	}, st.Counts)
	assert.Equal(t, []YearTotal{{2023, 1}, {2024, 2}}, st.Totals)

	boxes := BoxesByYear(ds)
	require.Equal(t, ChartOK, boxes.State)
	assert.Equal(t, []YearTotal{{2023, 2}, {2024, 3}}, boxes.Totals)

	words := Normalize([]string{"Caixas_apoio", "Data_visita"}, [][]string{{"duas", "01/01/2024"}}, nil)
	assert.Equal(t, ChartEmptyNumeric, BoxesByYear(words).State)
	assert.Equal(t, ChartEmpty, BoxesByYear(Normalize([]string{"Caixas_apoio"}, [][]string{{"2"}}, nil)).State)
}

func TestTable(t *testing.T) {
	t.Parallel()
	ds := Normalize(
		[]string{"Localidade", "Vazão_LH", "Cloretos", "Extra"},
		[][]string{{"A", "1234.4", "0,5", "x"}, {"B", "100", "", "y"}, {"", "oops", "abc", "z"}},
		nil,
	)
	view := Table(ds)
	assert.Equal(t, []string{ColLocalidade, ColVazao, ColCloretos}, view.Columns)
	require.Len(t, view.Rows, 3)

	a := view.Rows[0].Cells
	assert.Equal(t, "1,234 L/h", a[1].Text)
	assert.Equal(t, "0.50", a[2].Text)
	assert.Equal(t, "#08306b", a[1].Background)
	assert.Equal(t, "#f1f1f1", a[1].Color)

	b := view.Rows[1].Cells
	assert.Equal(t, "#f7fbff", b[1].Background)
	assert.Equal(t, "#000000", b[1].Color)
	assert.Equal(t, Null, b[2].Text)

	c := view.Rows[2].Cells
	assert.Equal(t, Null, c[0].Text)
	assert.Equal(t, Null, c[1].Text)
	assert.Empty(t, c[1].Background)
}

func TestLoadVocabulary(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/vocab.yaml"
	require.NoError(t, os.WriteFile(path, []byte("status:\n  Em_Teste: Em teste\nstatus_colors:\n  Em teste: \"#ffffff\"\n"), 0o600))
	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, "Em teste", remap(v.Status, "em_teste"))
	assert.Equal(t, "Instalado", remap(v.Status, "INSTALADO"))
	assert.Equal(t, "#ffffff", v.StatusColor("Em teste"))
	assert.Equal(t, "#0984e3", v.StatusColor("nada"))

	_, err = LoadVocabulary(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}

func TestRemapFoldedCollision(t *testing.T) {
	t.Parallel()
	m := map[string]string{"não": "Não", "nao": "Nao", "nÃo": "NÃO"}
	for i := 0; i < 50; i++ {
		require.Equal(t, "Nao", remap(m, "Nâo"), "iteration %d", i)
	}
	assert.Equal(t, "Não", remap(m, "NÃO"))
	assert.Equal(t, "talvez", remap(m, "talvez"))
}
