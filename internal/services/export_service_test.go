package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/repositories"
)

func exportFixtureOrders() []domain.Order {
	tracking := "AWB123"
	courier := "bluedart"
	created := time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC)
	return []domain.Order{
		{
			ID:             "ord_1",
			OrderNumber:    "BS-2026-000001",
			CustomerName:   `Smith, John "Jr"`,
			CustomerEmail:  "john@example.com",
			TotalAmount:    129900,
			Status:         domain.OrderStatusShipped,
			PaymentStatus:  domain.PaymentStatusPaid,
			Source:         "shopify",
			TrackingNumber: &tracking,
			CourierPartner: &courier,
			NDRCount:       2,
			CreatedAt:      created,
		},
		{
			ID:            "ord_2",
			OrderNumber:   "BS-2026-000002",
			CustomerName:  "Priya Sharma",
			TotalAmount:   49900,
			Status:        domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusPending,
			Source:        "manual",
			IsDuplicate:   true,
			CreatedAt:     created.Add(time.Hour),
		},
	}
}

func newTestExportService(t *testing.T, orders repositories.OrderRepository, ndrs repositories.NDRRepository) ExportService {
	t.Helper()
	if orders == nil {
		orders = &stubOrderRepo{}
	}
	if ndrs == nil {
		ndrs = &stubNDRRepo{}
	}
	svc, err := NewExportService(ExportServiceDeps{Orders: orders, NDRs: ndrs})
	if err != nil {
		t.Fatalf("failed to build export service: %v", err)
	}
	return svc
}

func TestExportOrders_QuotingRoundTrips(t *testing.T) {
	fixtures := exportFixtureOrders()
	orders := &stubOrderRepo{
		listFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: fixtures}, nil
		},
	}

	svc := newTestExportService(t, orders, nil)

	var buf bytes.Buffer
	err := svc.ExportOrders(context.Background(), &buf, OrderListFilter{},
		[]string{"order_number", "customer_name", "total_amount", "status"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("exported csv must re-parse cleanly: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(records))
	}
	if records[0][1] != "Customer Name" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if got := records[1][1]; got != `Smith, John "Jr"` {
		t.Fatalf("quoting did not round-trip, got %q", got)
	}
	if records[1][3] != "shipped" || records[2][3] != "pending" {
		t.Fatalf("unexpected status columns %v %v", records[1], records[2])
	}
}

func TestExportOrders_DefaultFieldSet(t *testing.T) {
	orders := &stubOrderRepo{
		listFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: exportFixtureOrders()}, nil
		},
	}

	svc := newTestExportService(t, orders, nil)

	var buf bytes.Buffer
	if err := svc.ExportOrders(context.Background(), &buf, OrderListFilter{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to re-parse: %v", err)
	}
	if len(records[0]) != len(exportableOrderFields) {
		t.Fatalf("expected full allow-list header, got %v", records[0])
	}
	row := records[1]
	byField := map[string]string{}
	for i, field := range exportableOrderFields {
		if records[0][i] != headerLabel(field) {
			t.Fatalf("expected column %d labelled %q, got %q", i, headerLabel(field), records[0][i])
		}
		byField[field] = row[i]
	}
	if byField["tracking_number"] != "AWB123" || byField["courier_partner"] != "bluedart" {
		t.Fatalf("unexpected tracking columns %v", byField)
	}
	if byField["ndr_count"] != "2" || byField["is_duplicate"] != "false" {
		t.Fatalf("unexpected flag columns %v", byField)
	}
	if byField["created_at"] != "2026-02-01T08:00:00Z" {
		t.Fatalf("unexpected created_at %q", byField["created_at"])
	}
}

func TestExportOrders_RejectsUnknownField(t *testing.T) {
	svc := newTestExportService(t, nil, nil)

	var buf bytes.Buffer
	err := svc.ExportOrders(context.Background(), &buf, OrderListFilter{}, []string{"items"})
	if !errors.Is(err, ErrExportInvalidField) {
		t.Fatalf("expected allow-list rejection, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("nothing should be written for a rejected request")
	}
}

func TestExportOrders_PagesThroughAllResults(t *testing.T) {
	var tokens []string
	orders := &stubOrderRepo{
		listFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			tokens = append(tokens, filter.Pagination.PageToken)
			if filter.Pagination.PageToken == "" {
				return domain.CursorPage[domain.Order]{
					Items:         exportFixtureOrders()[:1],
					NextPageToken: "page-2",
				}, nil
			}
			return domain.CursorPage[domain.Order]{Items: exportFixtureOrders()[1:]}, nil
		},
	}

	svc := newTestExportService(t, orders, nil)

	var buf bytes.Buffer
	if err := svc.ExportOrders(context.Background(), &buf, OrderListFilter{}, []string{"id"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to re-parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected both pages exported, got %d rows", len(records)-1)
	}
	if len(tokens) != 2 || tokens[1] != "page-2" {
		t.Fatalf("expected cursor advance, got %v", tokens)
	}
}

func TestExportNDRs_OneRowPerReport(t *testing.T) {
	resolvedAt := time.Date(2026, time.February, 3, 12, 0, 0, 0, time.UTC)
	orders := &stubOrderRepo{
		listFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: exportFixtureOrders()}, nil
		},
	}
	ndrs := &stubNDRRepo{
		listByOrderFn: func(ctx context.Context, orderID string) ([]domain.NDR, error) {
			if orderID != "ord_1" {
				return nil, nil
			}
			return []domain.NDR{
				{
					ID:               "ndr_1",
					OrderID:          "ord_1",
					Reason:           domain.NDRReasonCustomerNotAvailable,
					ResolutionStatus: domain.NDRResolutionResolved,
					NextAction:       "Schedule callback and retry delivery",
					ResolvedAt:       &resolvedAt,
					CreatedAt:        resolvedAt.Add(-24 * time.Hour),
				},
				{
					ID:                      "ndr_2",
					OrderID:                 "ord_1",
					Reason:                  domain.NDRReasonPhoneNotReachable,
					ResolutionStatus:        domain.NDRResolutionPending,
					AutoResolutionAttempted: true,
					CreatedAt:               resolvedAt,
				},
			}, nil
		},
	}

	svc := newTestExportService(t, orders, ndrs)

	var buf bytes.Buffer
	if err := svc.ExportNDRs(context.Background(), &buf, OrderListFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to re-parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus two report rows, got %d", len(records))
	}
	if records[1][2] != "ndr_1" || records[1][4] != "resolved" {
		t.Fatalf("unexpected first row %v", records[1])
	}
	if records[2][6] != "true" {
		t.Fatalf("expected attempted marker in export, got %v", records[2])
	}
	if records[2][9] != "" {
		t.Fatalf("unresolved report must have empty resolved_at, got %q", records[2][9])
	}
}

func TestHeaderLabel_TitleCasesWithAcronyms(t *testing.T) {
	cases := map[string]string{
		"id":             "ID",
		"order_number":   "Order Number",
		"ndr_count":      "NDR Count",
		"customer_email": "Customer Email",
		"is_duplicate":   "Is Duplicate",
	}
	for field, want := range cases {
		if got := headerLabel(field); got != want {
			t.Fatalf("headerLabel(%q) = %q, want %q", field, got, want)
		}
	}
}

func TestJoinChannels_SeparatorDistinctFromDelimiter(t *testing.T) {
	joined := JoinChannels([]Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelWhatsApp})
	if joined != "email|sms|whatsapp" {
		t.Fatalf("unexpected join %q", joined)
	}
}
