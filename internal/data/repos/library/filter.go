package library

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visibility is the access predicate the access service compiles from the
// caller's scopes. Repos AND it into every catalog query before execution
// so paging totals reflect the access-restricted set, never a post-fetch
// filter.
type Visibility struct {
	// All short-circuits the predicate for admins.
	All  bool
	SQL  string
	Args []any
}

func (v Visibility) apply(q *gorm.DB) *gorm.DB {
	if v.All {
		return q
	}
	if v.SQL == "" {
		// No scopes resolved: match nothing rather than everything.
		return q.Where("1 = 0")
	}
	return q.Where(v.SQL, v.Args...)
}

// SearchFilters are the recognized catalog filters. Search is a
// case-insensitive substring match over title, description, tags and
// topic; Tags requires every requested tag to be present.
type SearchFilters struct {
	Search   string
	Tags     []string
	Type     string
	Topic    string
	Author   *uuid.UUID
	Category string
	Language string
	DateFrom *time.Time
	DateTo   *time.Time
}

type Paging struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

func (p Paging) normalized() Paging {
	out := p
	if out.Limit <= 0 {
		out.Limit = DefaultPageLimit
	}
	if out.Limit > MaxPageLimit {
		out.Limit = MaxPageLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// FilterOptions are the distinct filterable values within the caller's
// visible slice of the catalog.
type FilterOptions struct {
	Tags      []string    `json:"tags"`
	Types     []string    `json:"types"`
	Topics    []string    `json:"topics"`
	Authors   []uuid.UUID `json:"authors"`
	Languages []string    `json:"languages"`
}
