package domain

import "errors"

// Filter clause keys understood by the embedding store adapter.
const (
	FilterKeyOwner      = "owner_id"
	FilterKeyCollection = "collection_id"
	FilterKeySource     = "source_id"
)

// FilterClause is one predicate: equality when Value is set, set-membership
// when Values is set.
type FilterClause struct {
	Key    string
	Value  string
	Values []string
}

// RetrievalFilter is the conjunction of clauses sent to the embedding store.
// A filter without a non-empty owner clause must never reach the store.
type RetrievalFilter struct {
	Must []FilterClause
}

// Validate is the hard gate: it re-checks that the tenant clause is present
// and non-empty, independently of how the filter was constructed.
func (f RetrievalFilter) Validate() error {
	for _, clause := range f.Must {
		if clause.Key == FilterKeyOwner && clause.Value != "" {
			return nil
		}
	}
	return errors.New("retrieval filter is missing the owner clause")
}

// Tenant returns the owner clause value, empty when absent.
func (f RetrievalFilter) Tenant() string {
	for _, clause := range f.Must {
		if clause.Key == FilterKeyOwner {
			return clause.Value
		}
	}
	return ""
}
