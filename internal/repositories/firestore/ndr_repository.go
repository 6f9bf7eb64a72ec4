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

const ndrsCollection = "ndrs"

type ndrDocument struct {
	OrderID                 string     `firestore:"orderId"`
	Reason                  string     `firestore:"reason"`
	CustomerResponse        *string    `firestore:"customerResponse,omitempty"`
	ResolutionStatus        string     `firestore:"resolutionStatus"`
	NextAction              string     `firestore:"nextAction"`
	AutoResolutionAttempted bool       `firestore:"autoResolutionAttempted"`
	CreatedAt               time.Time  `firestore:"createdAt"`
	ResolvedAt              *time.Time `firestore:"resolvedAt,omitempty"`
}

// NDRRepository persists non-delivery reports.
type NDRRepository struct {
	base *pfirestore.BaseRepository[ndrDocument]
}

// NewNDRRepository constructs a Firestore-backed NDR repository.
func NewNDRRepository(provider *pfirestore.Provider) (*NDRRepository, error) {
	if provider == nil {
		return nil, errors.New("ndr repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[ndrDocument](provider, ndrsCollection, nil, nil)
	return &NDRRepository{base: base}, nil
}

// Insert creates the report document.
func (r *NDRRepository) Insert(ctx context.Context, ndr domain.NDR) error {
	if r == nil || r.base == nil {
		return errors.New("ndr repository not initialised")
	}
	if strings.TrimSpace(ndr.ID) == "" {
		return errors.New("ndr id is required")
	}

	_, err := r.base.Create(ctx, ndr.ID, fromDomainNDR(ndr))
	return err
}

// Update overwrites the report document.
func (r *NDRRepository) Update(ctx context.Context, ndr domain.NDR) error {
	if r == nil || r.base == nil {
		return errors.New("ndr repository not initialised")
	}
	if strings.TrimSpace(ndr.ID) == "" {
		return errors.New("ndr id is required")
	}

	_, err := r.base.Set(ctx, ndr.ID, fromDomainNDR(ndr))
	return err
}

// FindByID loads the report by id.
func (r *NDRRepository) FindByID(ctx context.Context, ndrID string) (domain.NDR, error) {
	if r == nil || r.base == nil {
		return domain.NDR{}, errors.New("ndr repository not initialised")
	}

	doc, err := r.base.Get(ctx, ndrID)
	if err != nil {
		return domain.NDR{}, err
	}
	return toDomainNDR(doc.ID, doc.Data), nil
}

// ListByOrder returns all reports for the order, oldest first.
func (r *NDRRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.NDR, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("ndr repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", strings.TrimSpace(orderID)).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	ndrs := make([]domain.NDR, 0, len(docs))
	for _, doc := range docs {
		ndrs = append(ndrs, toDomainNDR(doc.ID, doc.Data))
	}
	return ndrs, nil
}

// ListUnattempted returns pending reports never run through auto-resolution.
// Report ids are time-ordered, so document-id order is creation order; a
// non-empty afterID resumes the listing past that report.
func (r *NDRRepository) ListUnattempted(ctx context.Context, afterID string, limit int) ([]domain.NDR, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("ndr repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("resolutionStatus", "==", string(domain.NDRResolutionPending)).
			Where("autoResolutionAttempted", "==", false).
			OrderBy(firestore.DocumentID, firestore.Asc).
			Limit(limit)
		if afterID != "" {
			query = query.StartAfter(afterID)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	ndrs := make([]domain.NDR, 0, len(docs))
	for _, doc := range docs {
		ndrs = append(ndrs, toDomainNDR(doc.ID, doc.Data))
	}
	return ndrs, nil
}

func fromDomainNDR(ndr domain.NDR) ndrDocument {
	return ndrDocument{
		OrderID:                 ndr.OrderID,
		Reason:                  ndr.Reason,
		CustomerResponse:        ndr.CustomerResponse,
		ResolutionStatus:        string(ndr.ResolutionStatus),
		NextAction:              ndr.NextAction,
		AutoResolutionAttempted: ndr.AutoResolutionAttempted,
		CreatedAt:               ndr.CreatedAt,
		ResolvedAt:              ndr.ResolvedAt,
	}
}

func toDomainNDR(id string, doc ndrDocument) domain.NDR {
	return domain.NDR{
		ID:                      id,
		OrderID:                 doc.OrderID,
		Reason:                  doc.Reason,
		CustomerResponse:        doc.CustomerResponse,
		ResolutionStatus:        domain.NDRResolutionStatus(doc.ResolutionStatus),
		NextAction:              doc.NextAction,
		AutoResolutionAttempted: doc.AutoResolutionAttempted,
		CreatedAt:               doc.CreatedAt,
		ResolvedAt:              doc.ResolvedAt,
	}
}

var _ repositories.NDRRepository = (*NDRRepository)(nil)
