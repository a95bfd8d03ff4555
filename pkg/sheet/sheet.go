// Package sheet loads the well spreadsheet, either from the Google Sheets CSV
// export or from a CSV file on disk.
package sheet

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxBody caps how much of an export we are willing to read.
const maxBody = 32 << 20

// ErrNoHeader is returned when the source has no header row at all.
var ErrNoHeader = errors.New("sheet: missing header row")

// HTTPError reports a non-2xx answer from the export endpoint.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sheet: GET %s: status %d", e.URL, e.StatusCode)
}

// Table is the raw grid: one header row and data rows padded to its width.
type Table struct {
	Header []string
	Rows   [][]string
}

// ExportURL is the CSV export address of one tab of a Google spreadsheet.
func ExportURL(sheetID, gid string) string {
	if gid == "" {
		gid = "0"
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s", sheetID, gid)
}

// Source says where the sheet lives. Path wins over URL when both are set.
type Source struct {
	URL  string
	Path string
	// Sep is the field separator, ',' when zero.
	Sep rune
	// Client defaults to a client with a one-minute timeout.
	Client *http.Client
}

var defaultClient = &http.Client{Timeout: time.Minute}

// String names the source in logs and snapshot records.
func (s Source) String() string {
	if s.Path != "" {
		return "file:" + s.Path
	}
	return s.URL
}

// IsFile reports whether the sheet is read from disk.
func (s Source) IsFile() bool { return s.Path != "" }

// Fetch reads and parses the sheet.
func (s Source) Fetch(ctx context.Context) (*Table, error) {
	if s.Path != "" {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("sheet: open %s: %w", s.Path, err)
		}
		defer f.Close()
		return Parse(f, s.Sep)
	}
	if s.URL == "" {
		return nil, errors.New("sheet: no source configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet: GET %s: %w", s.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: s.URL}
	}
	return Parse(io.LimitReader(resp.Body, maxBody), s.Sep)
}

// Parse reads CSV text. A UTF-8 BOM is dropped, short rows are padded,
// long rows are cut to the header width and rows with no content at all
// are skipped.
func Parse(r io.Reader, sep rune) (*Table, error) {
	if sep == 0 {
		sep = ','
	}
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: read header: %w", err)
	}
	t := &Table{Header: header, Rows: make([][]string, 0, 64)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: read row %d: %w", len(t.Rows)+2, err)
		}
		if blank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
