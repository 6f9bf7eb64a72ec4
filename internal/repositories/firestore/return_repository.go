package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brandspark/api/internal/domain"
	pfirestore "github.com/brandspark/api/internal/platform/firestore"
	"github.com/brandspark/api/internal/repositories"
)

const returnsCollection = "returns"

type returnDocument struct {
	OrderID      string    `firestore:"orderId"`
	PolicyID     string    `firestore:"policyId"`
	Reason       string    `firestore:"reason"`
	Status       string    `firestore:"status"`
	QCStatus     string    `firestore:"qcStatus"`
	RefundAmount int64     `firestore:"refundAmount"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// ReturnRepository persists return records.
type ReturnRepository struct {
	base *pfirestore.BaseRepository[returnDocument]
}

// NewReturnRepository constructs a Firestore-backed return repository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[returnDocument](provider, returnsCollection, nil, nil)
	return &ReturnRepository{base: base}, nil
}

// Insert creates the return record.
func (r *ReturnRepository) Insert(ctx context.Context, ret domain.Return) error {
	if r == nil || r.base == nil {
		return errors.New("return repository not initialised")
	}
	if strings.TrimSpace(ret.ID) == "" {
		return errors.New("return id is required")
	}

	_, err := r.base.Create(ctx, ret.ID, returnDocument{
		OrderID:      ret.OrderID,
		PolicyID:     ret.PolicyID,
		Reason:       ret.Reason,
		Status:       string(ret.Status),
		QCStatus:     string(ret.QCStatus),
		RefundAmount: ret.RefundAmount,
		CreatedAt:    ret.CreatedAt,
	})
	return err
}

// FindByID loads the return by id.
func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	if r == nil || r.base == nil {
		return domain.Return{}, errors.New("return repository not initialised")
	}

	doc, err := r.base.Get(ctx, returnID)
	if err != nil {
		return domain.Return{}, err
	}
	return toDomainReturn(doc.ID, doc.Data), nil
}

// ListByOrder returns all returns for the order, newest first.
func (r *ReturnRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Return, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("return repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", strings.TrimSpace(orderID)).
			OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	returns := make([]domain.Return, 0, len(docs))
	for _, doc := range docs {
		returns = append(returns, toDomainReturn(doc.ID, doc.Data))
	}
	return returns, nil
}

func toDomainReturn(id string, doc returnDocument) domain.Return {
	return domain.Return{
		ID:           id,
		OrderID:      doc.OrderID,
		PolicyID:     doc.PolicyID,
		Reason:       doc.Reason,
		Status:       domain.ReturnStatus(doc.Status),
		QCStatus:     domain.QCStatus(doc.QCStatus),
		RefundAmount: doc.RefundAmount,
		CreatedAt:    doc.CreatedAt,
	}
}

var _ repositories.ReturnRepository = (*ReturnRepository)(nil)
