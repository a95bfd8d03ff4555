package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"pocos-map/pkg/database"
	"pocos-map/pkg/wells"
)

const xlsxSheet = "Poços"

func exportName(ext string, at time.Time) string {
	return fmt.Sprintf("pocos-%s.%s", at.Format("20060102-1504"), ext)
}

// handleTableCSV writes the report as displayed, one text cell per column.
func (h *Handler) handleTableCSV(w http.ResponseWriter, r *http.Request) {
	st, ok := h.current(w)
	if !ok {
		return
	}
	if ok, wait := h.Cooldown.Allow(r.Context(), clientIP(r)+"|export"); !ok {
		tooSoon(w, wait)
		return
	}
	view := wells.Table(wells.Apply(st.Dataset, FilterFor(r.URL.Query(), st.Dataset)))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportName("csv", st.FetchedAt.In(h.Location)))
	// Excel needs the BOM to read UTF-8.
	_, _ = w.Write([]byte("\ufeff"))
	cw := csv.NewWriter(w)
	_ = cw.Write(view.Columns)
	rec := make([]string, len(view.Columns))
	for _, row := range view.Rows {
		for i, c := range row.Cells {
			rec[i] = c.Text
		}
		if err := cw.Write(rec); err != nil {
			h.logf("table csv: %v", err)
			return
		}
	}
	cw.Flush()
}

// handleTableXLSX writes the report as a workbook. Numeric columns keep their
// values as numbers and the blue shading of the flow columns is carried over.
func (h *Handler) handleTableXLSX(w http.ResponseWriter, r *http.Request) {
	st, ok := h.current(w)
	if !ok {
		return
	}
	if ok, wait := h.Cooldown.Allow(r.Context(), clientIP(r)+"|export"); !ok {
		tooSoon(w, wait)
		return
	}
	view := wells.Table(wells.Apply(st.Dataset, FilterFor(r.URL.Query(), st.Dataset)))

	f, err := tableWorkbook(view)
	if err != nil {
		h.logf("table xlsx: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportName("xlsx", st.FetchedAt.In(h.Location)))
	if err := f.Write(w); err != nil {
		h.logf("table xlsx write: %v", err)
	}
}

func tableWorkbook(view wells.TableView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E3C72"}},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	styles := make(map[string]int)
	shade := func(bg, fg string) (int, error) {
		key := bg + fg
		if id, ok := styles[key]; ok {
			return id, nil
		}
		id, err := f.NewStyle(&excelize.Style{
			Font:   &excelize.Font{Color: strings.TrimPrefix(fg, "#")},
			Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(bg, "#")}},
			NumFmt: 3, // #,##0
		})
		if err == nil {
			styles[key] = id
		}
		return id, err
	}

	for i, col := range view.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(xlsxSheet, cell, col); err != nil {
			f.Close()
			return nil, err
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(xlsxSheet, name, name, 18)
	}
	last, _ := excelize.CoordinatesToCellName(len(view.Columns), 1)
	if len(view.Columns) > 0 {
		_ = f.SetCellStyle(xlsxSheet, "A1", last, headerStyle)
	}

	for ri, row := range view.Rows {
		for ci, c := range row.Cells {
			cell, _ := excelize.CoordinatesToCellName(ci+1, ri+2)
			var v any = c.Text
			if c.Number != nil {
				v = *c.Number
			} else if c.Text == wells.Null {
				v = ""
			}
			if err := f.SetCellValue(xlsxSheet, cell, v); err != nil {
				f.Close()
				return nil, err
			}
			if c.Background != "" {
				id, err := shade(c.Background, c.Color)
				if err != nil {
					f.Close()
					return nil, err
				}
				_ = f.SetCellStyle(xlsxSheet, cell, cell, id)
			}
		}
	}
	return f, nil
}

// handleSnapshotCSV streams the raw rows of a stored snapshot.
func (h *Handler) handleSnapshotCSV(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "history disabled"})
		return
	}
	id := chi.URLParam(r, "id")
	snap, err := h.History.GetSnapshot(r.Context(), id)
	if database.IsNoSnapshot(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logf("snapshot %s: %v", id, err)
		http.Error(w, "history error", http.StatusInternalServerError)
		return
	}

	rowsCh, errCh := h.History.StreamSnapshotRows(r.Context(), snap.ID)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportName("csv", snap.Time().In(h.Location)))
	cw := csv.NewWriter(w)
	_ = cw.Write(snap.Header)
	for row := range rowsCh {
		_ = cw.Write(row.Cells)
	}
	cw.Flush()
	if err := <-errCh; err != nil {
		h.logf("snapshot %s rows: %v", id, err)
	}
}

func tooSoon(w http.ResponseWriter, wait time.Duration) {
	w.Header().Set("Retry-After", fmt.Sprint(int(wait/time.Second)+1))
	respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests, try again shortly"})
}
