package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// BuildFilter constructs the scoping predicate for one store query. It fails
// closed: a missing or blank tenant id yields ErrTenantIsolation instead of a
// scope-less filter. Clauses are combined with logical AND by the store.
func BuildFilter(tenant, collectionID string, sourceIDs []string) (domain.RetrievalFilter, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return domain.RetrievalFilter{}, domain.WrapError(
			domain.ErrTenantIsolation,
			"build filter",
			fmt.Errorf("tenant id is required"),
		)
	}

	filter := domain.RetrievalFilter{
		Must: []domain.FilterClause{
			{Key: domain.FilterKeyOwner, Value: tenant},
		},
	}

	if collectionID = strings.TrimSpace(collectionID); collectionID != "" {
		filter.Must = append(filter.Must, domain.FilterClause{
			Key:   domain.FilterKeyCollection,
			Value: collectionID,
		})
	}

	switch ids := compactIDs(sourceIDs); len(ids) {
	case 0:
	case 1:
		filter.Must = append(filter.Must, domain.FilterClause{
			Key:   domain.FilterKeySource,
			Value: ids[0],
		})
	default:
		filter.Must = append(filter.Must, domain.FilterClause{
			Key:    domain.FilterKeySource,
			Values: ids,
		})
	}

	return filter, nil
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
