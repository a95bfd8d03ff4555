// Package api serves the dashboard data as JSON. Every view is computed from
// the dataset the refresh poller currently holds, narrowed by the filter
// query parameters.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pocos-map/pkg/database"
	"pocos-map/pkg/refresh"
	"pocos-map/pkg/vegalite"
	"pocos-map/pkg/wells"
)

// Messages shown by the page for the two no-data situations.
const (
	MsgNotLoaded  = "❌ Erro ao carregar dados da planilha. Verifique a conexão."
	MsgEmptySheet = "📋 Planilha sem dados disponíveis."
)

// Triggerer runs an immediate refresh. *refresh.Poller satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context) (refresh.Event, error)
}

// History reads stored snapshots. *database.Database satisfies it.
type History interface {
	ListSnapshots(ctx context.Context, limit int) ([]database.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (database.Snapshot, error)
	StreamSnapshotRows(ctx context.Context, id string) (<-chan database.SnapshotRow, <-chan error)
}

// Handler holds what the routes need. Only Holder is required.
type Handler struct {
	Holder     *refresh.Holder
	Refresher  Triggerer
	Bus        *refresh.Bus
	History    History
	Vocabulary *wells.Vocabulary
	Cache      *ResponseCache
	Cooldown   *Cooldown
	Location   *time.Location
	// HeatPrecision is the default geohash bucketing of /api/heatmap; 0 sends
	// raw points.
	HeatPrecision uint
	Logf          func(string, ...any)
}

// Routes builds the /api router.
func (h *Handler) Routes() http.Handler {
	if h.Vocabulary == nil {
		h.Vocabulary = wells.DefaultVocabulary()
	}
	if h.Location == nil {
		h.Location = time.UTC
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", h.handleOverview)
	r.Get("/status", h.handleStatus)
	r.Get("/options", h.handleOptions)
	r.Get("/kpi", h.handleKPI)
	r.Get("/wells", h.handleWells)
	r.Get("/heatmap", h.handleHeatmap)
	r.Get("/gallery", h.handleGallery)
	r.Get("/nearest", h.handleNearest)
	r.Get("/charts", h.handleCharts)
	r.Get("/table", h.handleTable)
	r.Get("/table.csv", h.handleTableCSV)
	r.Get("/table.xlsx", h.handleTableXLSX)
	r.Get("/snapshots", h.handleSnapshots)
	r.Get("/snapshots/{id}.csv", h.handleSnapshotCSV)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/events", h.handleEvents)
	return r
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logf != nil {
		h.Logf(format, args...)
	}
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	filters := filterParams
	with := func(extra ...string) []string {
		return append(append(make([]string, 0, len(filters)+len(extra)), filters...), extra...)
	}
	endpoint := func(method, path, desc string, query ...string) map[string]any {
		e := map[string]any{"method": method, "path": "/api" + path, "description": desc}
		if len(query) > 0 {
			e["query"] = query
		}
		return e
	}
	overview := struct {
		Filters   []string         `json:"filters"`
		Endpoints []map[string]any `json:"endpoints"`
		Status    statusView       `json:"status"`
	}{
		Filters: filters,
		Status:  h.status(h.Holder.Current()),
		Endpoints: []map[string]any{
			endpoint("GET", "/status", "Snapshot being served and the outcome of the last refresh."),
			endpoint("GET", "/options", "Values offered by each filter."),
			endpoint("GET", "/kpi", "Headline totals after per-well aggregation.", filters...),
			endpoint("GET", "/wells", "Map markers with popups, bounds and legend.", filters...),
			endpoint("GET", "/heatmap", "Heat layer points weighted by measured flow.", with("precision")...),
			endpoint("GET", "/gallery", "Photos of the filtered wells or of the well nearest to a click.", with("lat", "lng")...),
			endpoint("GET", "/nearest", "Well closest to a point.", with("lat", "lng")...),
			endpoint("GET", "/charts", "Vega-Lite chart specs.", filters...),
			endpoint("GET", "/table", "Detailed report with shading.", filters...),
			endpoint("GET", "/table.csv", "Detailed report as CSV.", filters...),
			endpoint("GET", "/table.xlsx", "Detailed report as an Excel workbook.", filters...),
			endpoint("GET", "/snapshots", "Stored sheet history, newest first.", "limit"),
			endpoint("GET", "/snapshots/{id}.csv", "Raw rows of one stored snapshot."),
			endpoint("POST", "/refresh", "Fetch the sheet now."),
			endpoint("GET", "/events", "Server-sent refresh events."),
		},
	}
	respondJSON(w, http.StatusOK, overview)
}

type statusView struct {
	Loaded         bool   `json:"loaded"`
	Empty          bool   `json:"empty"`
	SnapshotID     string `json:"snapshotId,omitempty"`
	Source         string `json:"source,omitempty"`
	FetchedAt      string `json:"fetchedAt,omitempty"`
	FetchedAtLocal string `json:"fetchedAtLocal,omitempty"`
	CheckedAt      string `json:"checkedAt,omitempty"`
	Restored       bool   `json:"restored"`
	Rows           int    `json:"rows"`
	LastError      string `json:"lastError,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (h *Handler) status(st refresh.State) statusView {
	v := statusView{
		Loaded:     st.Loaded(),
		SnapshotID: st.SnapshotID,
		Source:     st.Source,
		Restored:   st.Restored,
		LastError:  st.LastError,
		Rows:       st.Dataset.Len(),
	}
	if !st.FetchedAt.IsZero() {
		v.FetchedAt = st.FetchedAt.UTC().Format(time.RFC3339)
		v.FetchedAtLocal = st.FetchedAt.In(h.Location).Format("02/01/2006 15:04")
	}
	if !st.CheckedAt.IsZero() {
		v.CheckedAt = st.CheckedAt.UTC().Format(time.RFC3339)
	}
	switch {
	case !v.Loaded:
		v.Message = MsgNotLoaded
	case v.Rows == 0:
		v.Empty = true
		v.Message = MsgEmptySheet
	}
	return v
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	v := h.status(h.Holder.Current())
	code := http.StatusOK
	if !v.Loaded {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, v)
}

// current returns the served state or answers the request itself: 503 when
// nothing was ever loaded, 200 with empty:true when the sheet has no rows.
func (h *Handler) current(w http.ResponseWriter) (refresh.State, bool) {
	st := h.Holder.Current()
	v := h.status(st)
	if !v.Loaded {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": v.Message, "lastError": v.LastError})
		return st, false
	}
	if v.Empty {
		respondJSON(w, http.StatusOK, map[string]any{"empty": true, "message": v.Message})
		return st, false
	}
	return st, true
}

// cachedJSON serves build's result for the current snapshot and query,
// reusing an earlier rendering when the cache has one.
func (h *Handler) cachedJSON(w http.ResponseWriter, r *http.Request, extra string, build func(st refresh.State, filtered *wells.Dataset) (any, error)) {
	st, ok := h.current(w)
	if !ok {
		return
	}
	key := r.URL.Path + "?" + filterKey(r.URL.Query()) + extra
	load := func(context.Context) ([]byte, error) {
		payload, err := build(st, wells.Apply(st.Dataset, FilterFor(r.URL.Query(), st.Dataset)))
		if err != nil {
			return nil, err
		}
		return json.Marshal(payload)
	}

	data, err := h.Cache.Get(r.Context(), st.SnapshotID, key, load)
	if errors.Is(err, errCacheDisabled) || errors.Is(err, errCacheStopped) {
		data, err = load(r.Context())
	}
	if err != nil {
		var he *httpError
		if errors.As(err, &he) {
			respondJSON(w, he.code, map[string]string{"error": he.msg})
			return
		}
		h.logf("api %s: %v", r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Snapshot-Id", st.SnapshotID)
	_, _ = w.Write(data)
}

// httpError lets a builder choose the status code. It is never cached.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	// Options always describe the whole sheet.
	h.cachedJSON(w, r, "", func(st refresh.State, _ *wells.Dataset) (any, error) {
		return wells.FilterOptions(st.Dataset), nil
	})
}

type kpiView struct {
	wells.KPI
	Formatted map[string]string `json:"formatted"`
}

func (h *Handler) handleKPI(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, "", func(_ refresh.State, ds *wells.Dataset) (any, error) {
		k := wells.ComputeKPI(ds)
		return kpiView{
			KPI: k,
			Formatted: map[string]string{
				"totalPocos":         strconv.Itoa(k.TotalWells),
				"totalVazao":         wells.FormatBR(k.TotalFlow, 0) + " L/h",
				"totalVazaoEstimada": wells.FormatBR(k.TotalEstimatedFlow, 0) + " L/h",
				"totalCaixas":        strconv.Itoa(int(k.TotalBoxes)),
			},
		}, nil
	})
}

func (h *Handler) handleWells(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, "", func(_ refresh.State, ds *wells.Dataset) (any, error) {
		return wells.Markers(ds, h.Vocabulary), nil
	})
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	precision := h.HeatPrecision
	if p := r.URL.Query().Get("precision"); p != "" {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil || n > 12 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "precision must be 0..12"})
			return
		}
		precision = uint(n)
	}
	h.cachedJSON(w, r, "precision="+strconv.FormatUint(uint64(precision), 10), func(_ refresh.State, ds *wells.Dataset) (any, error) {
		points, cells := wells.HeatCells(wells.HeatPoints(ds), precision)
		return wells.NewHeatLayer(points, cells), nil
	})
}

// parseClick reads lat/lng. Both absent means no click; anything else that
// does not parse is an error.
func parseClick(r *http.Request) (*wells.Click, error) {
	q := r.URL.Query()
	latS, lngS := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lng"))
	if latS == "" && lngS == "" {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, errors.New("lat and lng must be valid coordinates")
	}
	return &wells.Click{Lat: lat, Lon: lng}, nil
}

func clickKey(c *wells.Click) string {
	if c == nil {
		return ""
	}
	return "lat=" + strconv.FormatFloat(c.Lat, 'f', -1, 64) + "&lng=" + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

func (h *Handler) handleGallery(w http.ResponseWriter, r *http.Request) {
	click, err := parseClick(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.cachedJSON(w, r, clickKey(click), func(_ refresh.State, ds *wells.Dataset) (any, error) {
		return wells.Gallery(ds, click), nil
	})
}

type nearestView struct {
	Record  wells.Record       `json:"record"`
	Tooltip string             `json:"tooltip"`
	Popup   []wells.PopupField `json:"popup"`
}

func (h *Handler) handleNearest(w http.ResponseWriter, r *http.Request) {
	click, err := parseClick(r)
	if err == nil && click == nil {
		err = errors.New("lat and lng are required")
	}
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.cachedJSON(w, r, clickKey(click), func(_ refresh.State, ds *wells.Dataset) (any, error) {
		rec, ok := wells.Nearest(ds.Records, click.Lat, click.Lon)
		if !ok {
			return nil, &httpError{code: http.StatusNotFound, msg: "no well with coordinates"}
		}
		return nearestView{Record: rec, Tooltip: wells.Tooltip(rec), Popup: wells.Popup(ds, rec)}, nil
	})
}

func (h *Handler) handleCharts(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, "", func(_ refresh.State, ds *wells.Dataset) (any, error) {
		return vegalite.Dashboard(ds), nil
	})
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, "", func(_ refresh.State, ds *wells.Dataset) (any, error) {
		return wells.Table(ds), nil
	})
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "history disabled"})
		return
	}
	limit := clampInt(parseIntDefault(r.URL.Query().Get("limit"), 20), 1, 500)
	list, err := h.History.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logf("list snapshots: %v", err)
		http.Error(w, "history error", http.StatusInternalServerError)
		return
	}
	type item struct {
		database.Snapshot
		FetchedAtLocal string `json:"fetchedAtLocal"`
	}
	out := make([]item, 0, len(list))
	for _, s := range list {
		out = append(out, item{Snapshot: s, FetchedAtLocal: s.Time().In(h.Location).Format("02/01/2006 15:04")})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"current":   h.Holder.Current().SnapshotID,
		"snapshots": out,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.Refresher == nil {
		respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "refresh disabled"})
		return
	}
	if ok, wait := h.Cooldown.Allow(r.Context(), clientIP(r)+"|refresh"); !ok {
		tooSoon(w, wait)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	ev, err := h.Refresher.Trigger(ctx)
	if err != nil {
		respondJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}
	code := http.StatusOK
	if ev.Kind == refresh.EventFailed {
		code = http.StatusBadGateway
	}
	respondJSON(w, code, map[string]any{"event": ev, "status": h.status(h.Holder.Current())})
}

// =====================
// Utility helpers
// =====================

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
