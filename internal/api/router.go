// Package api serves the register over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpattn/regwatch/internal/analytics"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/metrics"
	"github.com/rpattn/regwatch/internal/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Default orderings of the ranked listings.
const (
	DefaultAttorneyOrder = "-name_length"
	DefaultFirmOrder     = "+name"
)

// Deps are the collaborators of the router. Import and Export are optional.
type Deps struct {
	Service     *analytics.Service
	Import      http.Handler
	Export      http.Handler
	Metrics     *metrics.Metrics
	Logger      *zap.SugaredLogger
	CORSOrigins []string
	// Today overrides the clock used for default dates.
	Today func() time.Time
}

type handler struct {
	service *analytics.Service
	logger  *zap.SugaredLogger
	today   func() time.Time
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Today == nil {
		d.Today = domain.Today
	}
	h := &handler{service: d.Service, logger: d.Logger, today: d.Today}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	r := chi.NewRouter()
	r.Use(corsHandler.Handler)
	r.Use(middleware.LoggingMiddleware(d.Logger, d.Metrics))

	r.Get("/healthz", h.health)
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.DataLoaderMiddleware(d.Service))

		r.Get("/attorneys", h.attorneys)
		r.Get("/attorneys/{id}/history", h.attorneyHistory)
		r.Get("/firms", h.firms)
		r.Get("/firms/{id}/history", h.firmHistory)
		r.Get("/registrations", h.registrations)
		r.Get("/lapses", h.lapses)
		r.Get("/movements", h.movements)
		r.Get("/oldest-date", h.oldestDate)
		r.Get("/runs", h.runs)
		if d.Import != nil {
			r.Method(http.MethodPost, "/import", d.Import)
		}
		if d.Export != nil {
			r.Method(http.MethodGet, "/export/{kind}", d.Export)
		}
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.service.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) attorneys(w http.ResponseWriter, r *http.Request) {
	page, date, order, filter, ok := h.listParams(w, r, DefaultAttorneyOrder)
	if !ok {
		return
	}
	versions, err := h.service.Attorneys(r.Context(), date, order, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	env := paginate(r, page, versions)
	items, err := attorneyItems(r.Context(), env.Items)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[AttorneyItem]{Items: items, Meta: env.Meta, Links: env.Links})
}

func (h *handler) firms(w http.ResponseWriter, r *http.Request) {
	page, date, order, filter, ok := h.listParams(w, r, DefaultFirmOrder)
	if !ok {
		return
	}
	versions, err := h.service.Firms(r.Context(), date, order, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(r, page, firmItems(versions)))
}

func (h *handler) registrations(w http.ResponseWriter, r *http.Request) {
	h.windowed(w, r, h.service.Registrations)
}

func (h *handler) lapses(w http.ResponseWriter, r *http.Request) {
	h.windowed(w, r, h.service.Lapses)
}

func (h *handler) windowed(w http.ResponseWriter, r *http.Request, query func(context.Context, domain.Window, domain.Filter) ([]domain.AttorneyVersion, error)) {
	page, window, filter, ok := h.windowParams(w, r)
	if !ok {
		return
	}
	versions, err := query(r.Context(), window, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	env := paginate(r, page, versions)
	items, err := attorneyItems(r.Context(), env.Items)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[AttorneyItem]{Items: items, Meta: env.Meta, Links: env.Links})
}

func (h *handler) movements(w http.ResponseWriter, r *http.Request) {
	page, window, filter, ok := h.windowParams(w, r)
	if !ok {
		return
	}
	movements, err := h.service.Movements(r.Context(), window, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	env := paginate(r, page, movements)
	items, err := movementItems(r.Context(), env.Items)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[MovementItem]{Items: items, Meta: env.Meta, Links: env.Links})
}

type historyEntry[T any] struct {
	Version T               `json:"version"`
	Changes []domain.Change `json:"changes"`
}

func (h *handler) attorneyHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.AttorneyHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "attorney not found", http.StatusNotFound)
		return
	}
	versions := make([]domain.AttorneyVersion, len(entries))
	for i, e := range entries {
		versions[i] = e.Version
	}
	items, err := attorneyItems(r.Context(), versions)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]historyEntry[AttorneyItem], len(entries))
	for i, e := range entries {
		out[i] = historyEntry[AttorneyItem]{Version: items[i], Changes: nonNil(e.Changes)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) firmHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.FirmHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "firm not found", http.StatusNotFound)
		return
	}
	out := make([]historyEntry[FirmItem], len(entries))
	for i, e := range entries {
		out[i] = historyEntry[FirmItem]{Version: firmItem(e.Version), Changes: nonNil(e.Changes)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) oldestDate(w http.ResponseWriter, r *http.Request) {
	oldest, err := h.service.OldestDate(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"oldest_date": oldest.Format(domain.DateLayout)})
}

func (h *handler) runs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.service.Runs(r.Context(), domain.Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) listParams(w http.ResponseWriter, r *http.Request, defaultOrder string) (pageRequest, time.Time, domain.OrderBy, domain.Filter, bool) {
	q := r.URL.Query()
	page, err := parsePage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return page, time.Time{}, domain.OrderBy{}, domain.Filter{}, false
	}
	date, err := h.dateParam(q.Get("date"), h.today())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return page, time.Time{}, domain.OrderBy{}, domain.Filter{}, false
	}
	order := q.Get("orderBy")
	if order == "" {
		order = defaultOrder
	}
	return page, date, domain.ParseOrderBy(order), parseFilter(r), true
}

func (h *handler) windowParams(w http.ResponseWriter, r *http.Request) (pageRequest, domain.Window, domain.Filter, bool) {
	q := r.URL.Query()
	page, err := parsePage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return page, domain.Window{}, domain.Filter{}, false
	}
	last, err := h.dateParam(q.Get("last_date"), h.today())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return page, domain.Window{}, domain.Filter{}, false
	}
	first, err := h.dateParam(q.Get("first_date"), domain.DefaultWindow(last).First)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return page, domain.Window{}, domain.Filter{}, false
	}
	window, err := domain.NewWindow(first, last)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return page, domain.Window{}, domain.Filter{}, false
	}
	return page, window, parseFilter(r), true
}

func (h *handler) dateParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return domain.Day(fallback), nil
	}
	return domain.ParseDate(raw)
}

// parseFilter accepts repeated filter parameters and comma separated lists.
func parseFilter(r *http.Request) domain.Filter {
	return domain.ParseFilter(strings.Join(r.URL.Query()["filter"], ","))
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedKind), errors.Is(err, domain.ErrInvalidSnapshot):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorw("Request failed", "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func nonNil(changes []domain.Change) []domain.Change {
	if changes == nil {
		return []domain.Change{}
	}
	return changes
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
