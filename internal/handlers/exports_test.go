package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/brandspark/api/internal/services"
)

type stubExportService struct {
	exportOrdersFn func(context.Context, io.Writer, services.OrderListFilter, []string) error
	exportNDRsFn   func(context.Context, io.Writer, services.OrderListFilter) error
}

func (s *stubExportService) ExportOrders(ctx context.Context, w io.Writer, filter services.OrderListFilter, fields []string) error {
	if s.exportOrdersFn == nil {
		return nil
	}
	return s.exportOrdersFn(ctx, w, filter, fields)
}

func (s *stubExportService) ExportNDRs(ctx context.Context, w io.Writer, filter services.OrderListFilter) error {
	if s.exportNDRsFn == nil {
		return nil
	}
	return s.exportNDRsFn(ctx, w, filter)
}

var _ services.ExportService = (*stubExportService)(nil)

func newExportRouter(svc services.ExportService) chi.Router {
	r := chi.NewRouter()
	NewExportHandlers(nil, svc).Routes(r)
	return r
}

func TestExportOrdersStreamsCSV(t *testing.T) {
	svc := &stubExportService{
		exportOrdersFn: func(_ context.Context, w io.Writer, filter services.OrderListFilter, fields []string) error {
			if len(fields) != 2 || fields[0] != "id" || fields[1] != "status" {
				t.Fatalf("unexpected fields: %+v", fields)
			}
			if filter.Search != "asha" {
				t.Fatalf("unexpected search filter: %q", filter.Search)
			}
			_, err := io.WriteString(w, "id,status\nord_1,pending\n")
			return err
		},
	}

	rr := httptest.NewRecorder()
	newExportRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/orders.csv?fields=id,status&search=asha", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv content type, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "orders-") || !strings.Contains(cd, ".csv") {
		t.Fatalf("expected csv attachment disposition, got %q", cd)
	}
	if !strings.Contains(rr.Body.String(), "ord_1,pending") {
		t.Fatalf("expected csv rows in body, got %q", rr.Body.String())
	}
}

func TestExportOrdersRejectsUnknownField(t *testing.T) {
	svc := &stubExportService{
		exportOrdersFn: func(context.Context, io.Writer, services.OrderListFilter, []string) error {
			return fmt.Errorf("%w: items", services.ErrExportInvalidField)
		},
	}

	rr := httptest.NewRecorder()
	newExportRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/orders.csv?fields=items", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected json error envelope, got %q", ct)
	}
}

func TestExportNDRsAppliesFilter(t *testing.T) {
	svc := &stubExportService{
		exportNDRsFn: func(_ context.Context, w io.Writer, filter services.OrderListFilter) error {
			if !filter.WithNDRsOnly {
				t.Fatal("expected with_ndrs filter")
			}
			_, err := io.WriteString(w, "order_id,ndr_id\nord_1,ndr_1\n")
			return err
		},
	}

	rr := httptest.NewRecorder()
	newExportRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/ndrs.csv?with_ndrs=true", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "ord_1,ndr_1") {
		t.Fatalf("expected csv rows in body, got %q", rr.Body.String())
	}
}
