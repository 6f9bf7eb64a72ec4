package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/brandspark/api/internal/repositories"
)

// multiValueSeparator joins multi-valued fields within one CSV cell. It is
// distinct from the comma so re-parsing never splits a cell.
const multiValueSeparator = "|"

const exportPageSize = 200

// ErrExportInvalidField signals a requested field outside the allow-list.
var ErrExportInvalidField = errors.New("export: invalid field")

// exportableOrderFields is the projection allow-list for order exports, in
// default column order.
var exportableOrderFields = []string{
	"id",
	"order_number",
	"customer_name",
	"customer_email",
	"customer_phone",
	"total_amount",
	"status",
	"payment_status",
	"source",
	"priority",
	"tracking_number",
	"courier_partner",
	"created_at",
	"expected_delivery",
	"ndr_count",
	"is_duplicate",
}

var ndrExportFields = []string{
	"order_id",
	"order_number",
	"ndr_id",
	"reason",
	"resolution_status",
	"next_action",
	"auto_resolution_attempted",
	"customer_response",
	"created_at",
	"resolved_at",
}

// ExportServiceDeps bundles collaborators required to construct the export service.
type ExportServiceDeps struct {
	Orders repositories.OrderRepository
	NDRs   repositories.NDRRepository
}

type exportService struct {
	orders repositories.OrderRepository
	ndrs   repositories.NDRRepository
}

// NewExportService wires dependencies into a concrete ExportService implementation.
func NewExportService(deps ExportServiceDeps) (ExportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("export service: order repository is required")
	}
	if deps.NDRs == nil {
		return nil, errors.New("export service: ndr repository is required")
	}
	return &exportService{orders: deps.Orders, ndrs: deps.NDRs}, nil
}

func (s *exportService) ExportOrders(ctx context.Context, w io.Writer, filter OrderListFilter, fields []string) error {
	if len(fields) == 0 {
		fields = exportableOrderFields
	}
	for _, field := range fields {
		if !isExportableField(field) {
			return fmt.Errorf("%w: %s", ErrExportInvalidField, field)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(headerRow(fields)); err != nil {
		return err
	}

	err := s.eachOrder(ctx, filter, func(order Order) error {
		row := make([]string, 0, len(fields))
		for _, field := range fields {
			row = append(row, orderFieldValue(order, field))
		}
		return writer.Write(row)
	})
	if err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

func (s *exportService) ExportNDRs(ctx context.Context, w io.Writer, filter OrderListFilter) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headerRow(ndrExportFields)); err != nil {
		return err
	}

	err := s.eachOrder(ctx, filter, func(order Order) error {
		ndrs, err := s.ndrs.ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, ndr := range ndrs {
			row := []string{
				order.ID,
				order.OrderNumber,
				ndr.ID,
				ndr.Reason,
				string(ndr.ResolutionStatus),
				ndr.NextAction,
				strconv.FormatBool(ndr.AutoResolutionAttempted),
				stringValue(ndr.CustomerResponse),
				formatTime(&ndr.CreatedAt),
				formatTime(ndr.ResolvedAt),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

// eachOrder pages through the full filtered order set, invoking fn per order.
func (s *exportService) eachOrder(ctx context.Context, filter OrderListFilter, fn func(Order) error) error {
	filter.Pagination.PageSize = exportPageSize
	filter.Pagination.PageToken = ""

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.orders.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, order := range page.Items {
			if err := fn(order); err != nil {
				return err
			}
		}

		if page.NextPageToken == "" {
			return nil
		}
		filter.Pagination.PageToken = page.NextPageToken
	}
}

var headerAcronyms = map[string]string{
	"id":  "ID",
	"ndr": "NDR",
}

// headerLabel renders a snake_case field name as a spreadsheet column label,
// e.g. "order_number" becomes "Order Number" and "ndr_count" "NDR Count".
// A Caser is stateful, so each call builds its own.
func headerLabel(field string) string {
	caser := cases.Title(language.English)
	words := strings.Split(field, "_")
	for i, word := range words {
		if acronym, ok := headerAcronyms[word]; ok {
			words[i] = acronym
			continue
		}
		words[i] = caser.String(word)
	}
	return strings.Join(words, " ")
}

func headerRow(fields []string) []string {
	row := make([]string, 0, len(fields))
	for _, field := range fields {
		row = append(row, headerLabel(field))
	}
	return row
}

func isExportableField(field string) bool {
	for _, known := range exportableOrderFields {
		if known == field {
			return true
		}
	}
	return false
}

func orderFieldValue(order Order, field string) string {
	switch field {
	case "id":
		return order.ID
	case "order_number":
		return order.OrderNumber
	case "customer_name":
		return order.CustomerName
	case "customer_email":
		return order.CustomerEmail
	case "customer_phone":
		return order.CustomerPhone
	case "total_amount":
		return strconv.FormatInt(order.TotalAmount, 10)
	case "status":
		return string(order.Status)
	case "payment_status":
		return string(order.PaymentStatus)
	case "source":
		return order.Source
	case "priority":
		return strconv.Itoa(order.Priority)
	case "tracking_number":
		return stringValue(order.TrackingNumber)
	case "courier_partner":
		return stringValue(order.CourierPartner)
	case "created_at":
		return formatTime(&order.CreatedAt)
	case "expected_delivery":
		return formatTime(order.ExpectedDelivery)
	case "ndr_count":
		return strconv.Itoa(order.NDRCount)
	case "is_duplicate":
		return strconv.FormatBool(order.IsDuplicate)
	}
	return ""
}

// JoinMultiValue flattens a multi-valued field into one CSV cell.
func JoinMultiValue(values []string) string {
	return strings.Join(values, multiValueSeparator)
}

// JoinChannels flattens a channel list into one CSV cell.
func JoinChannels(channels []Channel) string {
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, string(ch))
	}
	return JoinMultiValue(parts)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
