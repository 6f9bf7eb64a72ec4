package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brandspark/api/internal/domain"
	pfirestore "github.com/brandspark/api/internal/platform/firestore"
	"github.com/brandspark/api/internal/platform/pagination"
	"github.com/brandspark/api/internal/repositories"
)

const timelineCollection = "order_timeline"

type timelineDocument struct {
	OrderID     string         `firestore:"orderId"`
	EventType   string         `firestore:"eventType"`
	Description string         `firestore:"description"`
	EventData   map[string]any `firestore:"eventData,omitempty"`
	Actor       *string        `firestore:"actor,omitempty"`
	CreatedAt   time.Time      `firestore:"createdAt"`
}

// TimelineRepository appends to the per-order audit log.
type TimelineRepository struct {
	base *pfirestore.BaseRepository[timelineDocument]
}

// NewTimelineRepository constructs a Firestore-backed timeline repository.
func NewTimelineRepository(provider *pfirestore.Provider) (*TimelineRepository, error) {
	if provider == nil {
		return nil, errors.New("timeline repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[timelineDocument](provider, timelineCollection, nil, nil)
	return &TimelineRepository{base: base}, nil
}

// Append creates the entry. Entries are never updated or deleted.
func (r *TimelineRepository) Append(ctx context.Context, entry domain.TimelineEntry) error {
	if r == nil || r.base == nil {
		return errors.New("timeline repository not initialised")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("timeline entry id is required")
	}

	_, err := r.base.Create(ctx, entry.ID, timelineDocument{
		OrderID:     entry.OrderID,
		EventType:   entry.EventType,
		Description: entry.Description,
		EventData:   entry.EventData,
		Actor:       entry.Actor,
		CreatedAt:   entry.CreatedAt,
	})
	return err
}

// ListByOrder returns one page of the order's audit log, newest first.
func (r *TimelineRepository) ListByOrder(ctx context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.TimelineEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.TimelineEntry]{}, errors.New("timeline repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.TimelineEntry]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("orderId", "==", strings.TrimSpace(orderID)).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.TimelineEntry]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	page := domain.CursorPage[domain.TimelineEntry]{}
	for _, doc := range docs {
		page.Items = append(page.Items, domain.TimelineEntry{
			ID:          doc.ID,
			OrderID:     doc.Data.OrderID,
			EventType:   doc.Data.EventType,
			Description: doc.Data.Description,
			EventData:   doc.Data.EventData,
			Actor:       doc.Data.Actor,
			CreatedAt:   doc.Data.CreatedAt,
		})
	}

	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt, last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.TimelineEntry]{}, err
		}
		page.NextPageToken = token
	}

	return page, nil
}

var _ repositories.TimelineRepository = (*TimelineRepository)(nil)
