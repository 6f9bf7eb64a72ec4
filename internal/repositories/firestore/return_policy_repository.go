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

const returnPoliciesCollection = "return_policies"

type returnPolicyDocument struct {
	Name               string    `firestore:"name"`
	WindowDays         int       `firestore:"windowDays"`
	AutoApprove        bool      `firestore:"autoApprove"`
	RequireQC          bool      `firestore:"requireQc"`
	RefundPercentage   int       `firestore:"refundPercentage"`
	ShippingRefundable bool      `firestore:"shippingRefundable"`
	Active             bool      `firestore:"active"`
	CreatedAt          time.Time `firestore:"createdAt"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

// ReturnPolicyRepository reads and maintains the return policy reference data.
type ReturnPolicyRepository struct {
	base *pfirestore.BaseRepository[returnPolicyDocument]
}

// NewReturnPolicyRepository constructs a Firestore-backed policy repository.
func NewReturnPolicyRepository(provider *pfirestore.Provider) (*ReturnPolicyRepository, error) {
	if provider == nil {
		return nil, errors.New("return policy repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[returnPolicyDocument](provider, returnPoliciesCollection, nil, nil)
	return &ReturnPolicyRepository{base: base}, nil
}

// FindByID loads the policy by id.
func (r *ReturnPolicyRepository) FindByID(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
	if r == nil || r.base == nil {
		return domain.ReturnPolicy{}, errors.New("return policy repository not initialised")
	}

	doc, err := r.base.Get(ctx, policyID)
	if err != nil {
		return domain.ReturnPolicy{}, err
	}
	return toDomainPolicy(doc.ID, doc.Data), nil
}

// List returns every policy ordered by name.
func (r *ReturnPolicyRepository) List(ctx context.Context) ([]domain.ReturnPolicy, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("return policy repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	policies := make([]domain.ReturnPolicy, 0, len(docs))
	for _, doc := range docs {
		policies = append(policies, toDomainPolicy(doc.ID, doc.Data))
	}
	return policies, nil
}

// Upsert writes the policy document.
func (r *ReturnPolicyRepository) Upsert(ctx context.Context, policy domain.ReturnPolicy) error {
	if r == nil || r.base == nil {
		return errors.New("return policy repository not initialised")
	}
	if strings.TrimSpace(policy.ID) == "" {
		return errors.New("return policy id is required")
	}

	_, err := r.base.Set(ctx, policy.ID, returnPolicyDocument{
		Name:               policy.Name,
		WindowDays:         policy.WindowDays,
		AutoApprove:        policy.AutoApprove,
		RequireQC:          policy.RequireQC,
		RefundPercentage:   policy.RefundPercentage,
		ShippingRefundable: policy.ShippingRefundable,
		Active:             policy.Active,
		CreatedAt:          policy.CreatedAt,
		UpdatedAt:          policy.UpdatedAt,
	})
	return err
}

func toDomainPolicy(id string, doc returnPolicyDocument) domain.ReturnPolicy {
	return domain.ReturnPolicy{
		ID:                 id,
		Name:               doc.Name,
		WindowDays:         doc.WindowDays,
		AutoApprove:        doc.AutoApprove,
		RequireQC:          doc.RequireQC,
		RefundPercentage:   doc.RefundPercentage,
		ShippingRefundable: doc.ShippingRefundable,
		Active:             doc.Active,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

var _ repositories.ReturnPolicyRepository = (*ReturnPolicyRepository)(nil)
