package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brandspark/api/internal/domain"
	pfirestore "github.com/brandspark/api/internal/platform/firestore"
	"github.com/brandspark/api/internal/platform/pagination"
	"github.com/brandspark/api/internal/repositories"
)

const ordersCollection = "orders"

type orderItemDocument struct {
	ID         string `firestore:"id"`
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	TotalPrice int64  `firestore:"totalPrice"`
}

type addressDocument struct {
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderDocument struct {
	OrderNumber      string              `firestore:"orderNumber"`
	CustomerName     string              `firestore:"customerName"`
	CustomerEmail    string              `firestore:"customerEmail"`
	CustomerPhone    string              `firestore:"customerPhone"`
	ShippingAddress  *addressDocument    `firestore:"shippingAddress,omitempty"`
	TotalAmount      int64               `firestore:"totalAmount"`
	ShippingAmount   int64               `firestore:"shippingAmount"`
	Status           string              `firestore:"status"`
	PaymentStatus    string              `firestore:"paymentStatus"`
	TrackingNumber   *string             `firestore:"trackingNumber,omitempty"`
	CourierPartner   *string             `firestore:"courierPartner,omitempty"`
	Source           string              `firestore:"source"`
	Priority         int                 `firestore:"priority"`
	DeliveryAttempts int                 `firestore:"deliveryAttempts"`
	NDRCount         int                 `firestore:"ndrCount"`
	IsDuplicate      bool                `firestore:"isDuplicate"`
	DuplicateOf      *string             `firestore:"duplicateOf,omitempty"`
	ExpectedDelivery *time.Time          `firestore:"expectedDelivery,omitempty"`
	DeliveredAt      *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelReason     *string             `firestore:"cancelReason,omitempty"`
	Items            []orderItemDocument `firestore:"items"`
	Version          int64               `firestore:"version"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
}

// OrderRepository persists orders with their embedded items. Update enforces a
// compare-and-swap on the document's version field.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	_, err := r.base.Create(ctx, order.ID, fromDomainOrder(order))
	return err
}

// Update writes the order only when the stored version matches order.Version,
// then increments the version. A mismatch yields a conflict error.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	doc := fromDomainOrder(order)
	doc.Version = order.Version + 1

	write := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", order.ID, err)
		}
		if stored.Version != order.Version {
			return pfirestore.NewConflictError("orders.update",
				fmt.Errorf("order %s version %d does not match stored %d", order.ID, order.Version, stored.Version))
		}
		return tx.Set(ref, doc)
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return write(ctx, tx)
	}
	return r.provider.RunTransaction(ctx, write)
}

// FindByID loads the order by id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// List returns one page of orders matching the filter, newest first. Equality
// and range predicates run server side; the free-text search predicate is
// applied to each fetched page.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = applyOrderFilters(query, filter)
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	page := domain.CursorPage[domain.Order]{}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, doc := range docs {
		order := toDomainOrder(doc.ID, doc.Data)
		if search != "" && !matchesSearch(order, search) {
			continue
		}
		page.Items = append(page.Items, order)
	}

	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt, last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}

	return page, nil
}

func applyOrderFilters(query firestore.Query, filter repositories.OrderListFilter) firestore.Query {
	if len(filter.Status) > 0 {
		values := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			values = append(values, string(s))
		}
		query = query.Where("status", "in", values)
	}
	if len(filter.PaymentStatus) > 0 {
		values := make([]string, 0, len(filter.PaymentStatus))
		for _, s := range filter.PaymentStatus {
			values = append(values, string(s))
		}
		query = query.Where("paymentStatus", "in", values)
	}
	if partner := strings.TrimSpace(filter.CourierPartner); partner != "" {
		query = query.Where("courierPartner", "==", partner)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	if filter.AmountRange.From != nil {
		query = query.Where("totalAmount", ">=", *filter.AmountRange.From)
	}
	if filter.AmountRange.To != nil {
		query = query.Where("totalAmount", "<=", *filter.AmountRange.To)
	}
	if filter.WithNDRsOnly {
		query = query.Where("ndrCount", ">", 0)
	}
	if filter.DuplicatesOnly {
		query = query.Where("isDuplicate", "==", true)
	}
	return query
}

func matchesSearch(order domain.Order, lowered string) bool {
	if strings.Contains(strings.ToLower(order.CustomerName), lowered) {
		return true
	}
	if strings.Contains(strings.ToLower(order.CustomerEmail), lowered) {
		return true
	}
	if order.TrackingNumber != nil && strings.Contains(strings.ToLower(*order.TrackingNumber), lowered) {
		return true
	}
	return false
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:      order.OrderNumber,
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		CustomerPhone:    order.CustomerPhone,
		TotalAmount:      order.TotalAmount,
		ShippingAmount:   order.ShippingAmount,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		TrackingNumber:   order.TrackingNumber,
		CourierPartner:   order.CourierPartner,
		Source:           order.Source,
		Priority:         order.Priority,
		DeliveryAttempts: order.DeliveryAttempts,
		NDRCount:         order.NDRCount,
		IsDuplicate:      order.IsDuplicate,
		DuplicateOf:      order.DuplicateOf,
		ExpectedDelivery: order.ExpectedDelivery,
		DeliveredAt:      order.DeliveredAt,
		CancelReason:     order.CancelReason,
		Version:          order.Version,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = &addressDocument{
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		}
	}
	if len(order.Items) > 0 {
		doc.Items = make([]orderItemDocument, 0, len(order.Items))
		for _, item := range order.Items {
			doc.Items = append(doc.Items, orderItemDocument{
				ID:         item.ID,
				ProductRef: item.ProductRef,
				Name:       item.Name,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				TotalPrice: item.TotalPrice,
			})
		}
	}
	return doc
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:               id,
		OrderNumber:      doc.OrderNumber,
		CustomerName:     doc.CustomerName,
		CustomerEmail:    doc.CustomerEmail,
		CustomerPhone:    doc.CustomerPhone,
		TotalAmount:      doc.TotalAmount,
		ShippingAmount:   doc.ShippingAmount,
		Status:           domain.OrderStatus(doc.Status),
		PaymentStatus:    domain.PaymentStatus(doc.PaymentStatus),
		TrackingNumber:   doc.TrackingNumber,
		CourierPartner:   doc.CourierPartner,
		Source:           doc.Source,
		Priority:         doc.Priority,
		DeliveryAttempts: doc.DeliveryAttempts,
		NDRCount:         doc.NDRCount,
		IsDuplicate:      doc.IsDuplicate,
		DuplicateOf:      doc.DuplicateOf,
		ExpectedDelivery: doc.ExpectedDelivery,
		DeliveredAt:      doc.DeliveredAt,
		CancelReason:     doc.CancelReason,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	if doc.ShippingAddress != nil {
		order.ShippingAddress = &domain.Address{
			Street:     doc.ShippingAddress.Street,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
		}
	}
	if len(doc.Items) > 0 {
		order.Items = make([]domain.OrderItem, 0, len(doc.Items))
		for _, item := range doc.Items {
			order.Items = append(order.Items, domain.OrderItem{
				ID:         item.ID,
				OrderID:    id,
				ProductRef: item.ProductRef,
				Name:       item.Name,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				TotalPrice: item.TotalPrice,
			})
		}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
