package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brandspark/api/internal/platform/auth"
	"github.com/brandspark/api/internal/platform/httpx"
	"github.com/brandspark/api/internal/services"
)

// ExportHandlers streams CSV exports of orders and non-delivery reports.
type ExportHandlers struct {
	authn   *auth.Authenticator
	exports services.ExportService
	now     func() time.Time
}

// NewExportHandlers constructs a new ExportHandlers instance.
func NewExportHandlers(authn *auth.Authenticator, exports services.ExportService) *ExportHandlers {
	return &ExportHandlers{
		authn:   authn,
		exports: exports,
		now:     time.Now,
	}
}

// Routes registers the /exports endpoints.
func (h *ExportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(roleAdmin, roleOps))
	}
	r.Get("/orders.csv", h.exportOrders)
	r.Get("/ndrs.csv", h.exportNDRs)
}

func (h *ExportHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("export_service_unavailable", "export service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := orderListFilterFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	fields := parseFilterValues(r.URL.Query()["fields"])

	h.writeCSV(w, r, "orders", func(ctx context.Context) error {
		return h.exports.ExportOrders(ctx, w, filter, fields)
	})
}

func (h *ExportHandlers) exportNDRs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("export_service_unavailable", "export service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := orderListFilterFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	h.writeCSV(w, r, "ndrs", func(ctx context.Context) error {
		return h.exports.ExportNDRs(ctx, w, filter)
	})
}

// writeCSV sets download headers before streaming. Field validation errors are
// reported before the first row is written, so the JSON error envelope is
// still possible at that point; a failure mid-stream can only truncate.
func (h *ExportHandlers) writeCSV(w http.ResponseWriter, r *http.Request, name string, write func(context.Context) error) {
	ctx := r.Context()

	filename := fmt.Sprintf("%s-%s.csv", name, h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := write(ctx); err != nil {
		if errors.Is(err, services.ErrExportInvalidField) {
			w.Header().Del("Content-Disposition")
			w.Header().Set("Content-Type", "application/json")
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		// Rows may already be on the wire; truncating the stream is the only
		// honest failure mode left at this point.
	}
}
