package export

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rpattn/regwatch/internal/domain"
)

// Handler serves table dumps as downloads.
type Handler struct {
	service *Service
}

// NewHTTPHandler exposes GET downloads of one kind, chosen by the "kind" URL
// parameter, in the format given by the "format" query (default csv).
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind := domain.Kind(strings.TrimSuffix(strings.ToLower(chi.URLParam(r, "kind")), "s"))
	rawFormat := r.URL.Query().Get("format")
	if rawFormat == "" {
		rawFormat = string(FormatCSV)
	}
	format, err := ParseFormat(rawFormat)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if _, err := h.service.Export(r.Context(), kind, format, &buf); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnsupportedKind) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%ss.%s", kind, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
