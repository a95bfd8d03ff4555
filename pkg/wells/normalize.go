package wells

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// visitLayouts are tried in order on Data_visita. Slashed dates are read
// day-first, which is how the field teams fill the sheet: 03/04/2024 is
// 3 April, never March 4. See DESIGN.md "Dates" before changing the order.
var visitLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2-1-2006",
}

// ParseVisitDate parses a Data_visita cell. The zero time means "not a date".
func ParseVisitDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range visitLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NormalizeHeader trims a header cell and composes accents into NFC so that
// "Município" typed on different keyboards maps to the same column.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return norm.NFC.String(strings.TrimSpace(h))
}

// Normalize turns raw sheet rows into a Dataset: empty cells become nulls,
// Data_visita is parsed into the visit year/month, and the Monitorado,
// Instalado and Status answers are mapped onto canonical labels.
func Normalize(header []string, rows [][]string, vocab *Vocabulary) *Dataset {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = NormalizeHeader(h)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := Record{Row: i, Cells: make(map[string]string, len(columns))}
		for j, col := range columns {
			if col == "" || j >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[j])
			if v == "" {
				continue
			}
			// First occurrence wins on duplicated headers.
			if _, dup := rec.Cells[col]; dup {
				continue
			}
			rec.Cells[col] = v
		}
		normalizeRecord(&rec, vocab)
		records = append(records, rec)
	}
	return NewDataset(columns, records)
}

func normalizeRecord(rec *Record, vocab *Vocabulary) {
	if v, ok := rec.Cells[ColDataVisita]; ok {
		rec.Visited = ParseVisitDate(v)
	}
	if v, ok := rec.Cells[ColMonitorado]; ok {
		rec.Cells[ColMonitorado] = remap(vocab.Monitorado, v)
	}
	if v, ok := rec.Cells[ColInstalado]; ok {
		rec.Cells[ColInstalado] = remap(vocab.Instalado, v)
	}
	if v, ok := rec.Cells[ColStatus]; ok {
		rec.Cells[ColStatus] = remap(vocab.Status, v)
	}
}
